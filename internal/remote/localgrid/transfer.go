package localgrid

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"conveyor/internal/fileutil"
	"conveyor/internal/logging"
	"conveyor/internal/remote"
)

// endpoint pairs the path reported to callers with the filesystem path
// backing it.
type endpoint struct {
	display  string
	physical string
	logical  bool
}

func (e endpoint) join(rel string) (string, string) {
	physical := filepath.Join(e.physical, filepath.FromSlash(rel))
	if e.logical {
		return path.Join(e.display, rel), physical
	}
	return filepath.Join(e.display, filepath.FromSlash(rel)), physical
}

type fileJob struct {
	sourcePath     string
	targetPath     string
	src            string
	dst            string
	size           int64
	skipIfSameSize bool
}

// collect expands source into per-file jobs landing under the target
// collection, sorted by source path so the restart cursor compares cleanly.
func collect(source, target endpoint) ([]fileJob, error) {
	info, err := os.Stat(source.physical)
	if err != nil {
		return nil, err
	}
	base := path.Base(filepath.ToSlash(source.display))
	if !info.IsDir() {
		targetPath, dst := target.join(base)
		return []fileJob{{
			sourcePath: source.display,
			targetPath: targetPath,
			src:        source.physical,
			dst:        dst,
			size:       info.Size(),
		}}, nil
	}

	var jobs []fileJob
	err = filepath.WalkDir(source.physical, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || fileutil.IsPartial(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(source.physical, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		sourcePath, _ := source.join(rel)
		targetPath, dst := target.join(path.Join(base, rel))
		jobs = append(jobs, fileJob{
			sourcePath: sourcePath,
			targetPath: targetPath,
			src:        p,
			dst:        dst,
			size:       info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].sourcePath < jobs[j].sourcePath })
	return jobs, nil
}

// run moves jobs in order, polling control between files and reporting
// every step to sink.
func (g *Grid) run(ctx context.Context, op remote.Operation, resource string, jobs []fileJob, sink remote.Sink, control *remote.Control) error {
	if sink == nil {
		sink = remote.Discard
	}
	if control == nil {
		control = remote.NewControl(remote.ControlOptions{})
	}
	var totalBytes int64
	for _, job := range jobs {
		totalBytes += job.size
	}
	total := len(jobs)
	emit := func(s remote.Status) {
		s.Operation = op
		s.Resource = resource
		s.TotalFiles = total
		s.TotalBytes = totalBytes
		s.Time = g.now()
		sink.Progress(s)
	}

	g.logger.Debug("operation started",
		logging.String("operation", string(op)),
		logging.String("resource", resource),
		logging.Int("files", total),
	)
	emit(remote.Status{Type: remote.CallbackOverall, State: remote.StateInProgress})

	done := 0
	var moved int64
	for _, job := range jobs {
		switch control.Checkpoint(ctx) {
		case remote.StopPaused:
			emit(remote.Status{Type: remote.CallbackOverall, State: remote.StatePaused, FilesSoFar: done, BytesSoFar: moved})
			return nil
		case remote.StopCancelled:
			emit(remote.Status{Type: remote.CallbackOverall, State: remote.StateCancelled, FilesSoFar: done, BytesSoFar: moved})
			return nil
		case remote.StopTooManyErrors:
			emit(remote.Status{
				Type:       remote.CallbackOverall,
				State:      remote.StateFailure,
				FilesSoFar: done,
				BytesSoFar: moved,
				Error:      fmt.Sprintf("stopped after %d file errors", control.ErrorCount()),
			})
			return nil
		}

		file := remote.Status{
			Type:       remote.CallbackFile,
			SourcePath: job.sourcePath,
			TargetPath: job.targetPath,
			IsFile:     true,
		}
		if control.Restarting(job.sourcePath) {
			done++
			file.State = remote.StateRestarting
			file.FilesSoFar = done
			emit(file)
			continue
		}
		switch control.Decide(ctx, remote.FileRef{Operation: op, SourcePath: job.sourcePath, TargetPath: job.targetPath}) {
		case remote.FileSkip:
			done++
			file.State = remote.StateSkipped
			file.FilesSoFar = done
			emit(file)
			continue
		case remote.FileCancel:
			control.Cancel()
			emit(remote.Status{Type: remote.CallbackOverall, State: remote.StateCancelled, FilesSoFar: done, BytesSoFar: moved})
			return nil
		}

		if job.skipIfSameSize && sameSize(job.dst, job.size) {
			done++
			file.State = remote.StateSkipped
			file.FilesSoFar = done
			emit(file)
			continue
		}

		err := copyFile(job.src, job.dst)
		done++
		file.FilesSoFar = done
		if err != nil {
			control.RecordError()
			file.State = remote.StateFailure
			file.Error = err.Error()
			g.logger.Debug("file failed",
				logging.String("source", job.sourcePath),
				logging.Error(err),
			)
		} else {
			moved += job.size
			file.State = remote.StateSuccess
		}
		file.BytesSoFar = moved
		emit(file)
	}

	final := remote.Status{Type: remote.CallbackOverall, State: remote.StateSuccess, FilesSoFar: done, BytesSoFar: moved}
	if n := control.ErrorCount(); n > 0 {
		final.State = remote.StateFailure
		final.Error = fmt.Sprintf("%d file(s) failed", n)
	}
	emit(final)
	return nil
}

func sameSize(p string, size int64) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir() && info.Size() == size
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create target collection: %w", err)
	}
	_, err := fileutil.CopyVerified(src, dst)
	return err
}
