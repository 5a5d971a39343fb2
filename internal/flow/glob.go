package flow

import (
	"path"
	"strings"

	"golang.org/x/text/cases"
)

// matchGlob applies a '*' and '?' wildcard pattern with Unicode case folding.
// An empty pattern matches every value; a malformed one matches nothing.
func matchGlob(pattern, value string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || pattern == "*" {
		return true
	}
	folder := cases.Fold()
	ok, err := path.Match(folder.String(pattern), folder.String(strings.TrimSpace(value)))
	return err == nil && ok
}
