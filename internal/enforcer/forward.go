package enforcer

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecForwarder re-invokes the real package manager with the original argv,
// inherited stdio, and verbatim exit-code propagation.
type ExecForwarder struct {
	// SkipDirs are PATH entries ignored during lookup. The shim directory
	// lives here, otherwise wrap would recurse into itself.
	SkipDirs []string
}

// NewExecForwarder builds a forwarder that skips the sapo shim directory
func NewExecForwarder(shimDir string) *ExecForwarder {
	var skip []string
	if shimDir != "" {
		skip = append(skip, shimDir)
	}
	return &ExecForwarder{SkipDirs: skip}
}

// Forward runs the real manager and returns its exit code. The returned
// error is non-nil only when the command could not be started at all.
func (f *ExecForwarder) Forward(manager string, args []string) (int, error) {
	bin, err := f.lookupReal(manager)
	if err != nil {
		return 0, err
	}

	cmd := exec.Command(bin, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 0, err
	}
	return 0, nil
}

// lookupReal walks PATH for the manager binary, ignoring skipped directories
func (f *ExecForwarder) lookupReal(manager string) (string, error) {
	if strings.ContainsRune(manager, os.PathSeparator) {
		// Caller gave a concrete path; trust it unless it is shimmed
		if f.skipped(filepath.Dir(manager)) {
			manager = filepath.Base(manager)
		} else {
			return manager, nil
		}
	}

	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" || f.skipped(dir) {
			continue
		}
		candidate := filepath.Join(dir, manager)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s not found on PATH (outside the shim directory)", manager)
}

func (f *ExecForwarder) skipped(dir string) bool {
	clean := filepath.Clean(dir)
	for _, s := range f.SkipDirs {
		if filepath.Clean(s) == clean {
			return true
		}
	}
	return false
}
