// Package fileutil holds file copy helpers used by the filesystem grid.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// partSuffix marks a copy in progress; readers never see a partial file
// under its final name.
const partSuffix = ".part"

// CopyVerified streams src into dst+".part", checks size and SHA-256 of
// what was written against what was read, then renames it over dst. The
// part file is removed on any failure. It returns the number of bytes
// copied.
func CopyVerified(src, dst string) (int64, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tmp := dst + partSuffix
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm()|0o600)
	if err != nil {
		return 0, fmt.Errorf("create target: %w", err)
	}
	fail := func(err error) (int64, error) {
		_ = out.Close()
		_ = os.Remove(tmp)
		return 0, err
	}

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, dstHasher), io.TeeReader(in, srcHasher))
	if err != nil {
		return fail(fmt.Errorf("copy data: %w", err))
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("close target: %w", err)
	}
	if written != srcInfo.Size() {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("commit target: %w", err)
	}
	return written, nil
}

// IsPartial reports whether name is an in-progress copy.
func IsPartial(name string) bool {
	return len(name) > len(partSuffix) && name[len(name)-len(partSuffix):] == partSuffix
}
