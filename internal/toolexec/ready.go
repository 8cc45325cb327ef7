package toolexec

import (
	"os/exec"

	"github.com/askiada/sherlock/internal/failure"
)

// LookPathFunc resolves an executable name, as exec.LookPath does.
type LookPathFunc func(file string) (string, error)

// VerifyReady checks that every binary resolves with lookPath, in order, and
// reports the first one that does not. A nil lookPath uses exec.LookPath.
func VerifyReady(lookPath LookPathFunc, binaries ...string) error {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	seen := make(map[string]struct{}, len(binaries))
	for _, bin := range binaries {
		if _, ok := seen[bin]; ok {
			continue
		}
		seen[bin] = struct{}{}
		if _, err := lookPath(bin); err != nil {
			return failure.MissingDependency(bin, err)
		}
	}

	return nil
}
