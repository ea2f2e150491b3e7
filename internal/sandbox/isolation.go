// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package sandbox

import (
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"slices"
	"strings"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// Isolation modes accepted by the executor.
const (
	IsolationNone  = "none"
	IsolationBwrap = "bwrap"
)

var (
	bwrapPath = "bwrap"

	// targetOS allows tests to override the OS for cross-platform testing.
	targetOS = runtime.GOOS

	// checkDirExists allows tests to stub filesystem existence checks.
	checkDirExists = func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}
)

// dangerousPathChars matches characters that enable bwrap argument confusion.
var dangerousPathChars = regexp.MustCompile(`["\\();\x00-\x1f]`)

func init() {
	if p, err := exec.LookPath("bwrap"); err == nil {
		bwrapPath = p
	}
}

func validateBindPath(path string) error {
	if path == "" {
		return pawerr.New(pawerr.CodeSandboxPathInvalid, "invalid bind path: must not be empty")
	}
	if strings.HasPrefix(path, "-") {
		return pawerr.Errorf(pawerr.CodeSandboxPathInvalid, "invalid bind path %q: must not start with dash", path)
	}
	if dangerousPathChars.MatchString(path) {
		return pawerr.Errorf(pawerr.CodeSandboxPathInvalid, "invalid bind path %q: contains disallowed characters", path)
	}
	return nil
}

// wrapArgs prefixes argv with the isolation launcher, if any. With bubblewrap
// the system directories are mounted read-only, only the sandbox roots are
// writable, and the command starts in dir inside a fresh PID namespace.
func wrapArgs(isolation string, roots []string, dir string, argv []string) ([]string, error) {
	switch isolation {
	case "", IsolationNone:
		return argv, nil
	case IsolationBwrap:
	default:
		return nil, pawerr.Errorf(pawerr.CodeSandboxIsolationUnsupported, "unknown isolation mode %q", isolation)
	}

	if targetOS != "linux" {
		return nil, pawerr.Errorf(pawerr.CodeSandboxIsolationUnsupported, "bwrap isolation not supported on %s", targetOS)
	}

	args := []string{bwrapPath,
		"--ro-bind", "/usr", "/usr",
		"--ro-bind", "/lib", "/lib",
	}
	// Absent on Alpine/musl systems.
	if checkDirExists("/lib64") {
		args = append(args, "--ro-bind", "/lib64", "/lib64")
	}
	args = append(args,
		"--ro-bind", "/bin", "/bin",
		"--ro-bind", "/etc", "/etc",
		"--proc", "/proc",
		"--dev", "/dev",
		"--tmpfs", "/tmp",
		"--unshare-pid",
		"--die-with-parent",
	)

	for _, root := range roots {
		if err := validateBindPath(root); err != nil {
			return nil, err
		}
		args = append(args, "--bind", root, root)
	}
	if err := validateBindPath(dir); err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(roots, func(root string) bool { return within(root, dir) }) {
		args = append(args, "--ro-bind", dir, dir)
	}
	args = append(args, "--chdir", dir, "--")
	return append(args, argv...), nil
}

// LauncherArgs returns the isolation prefix for processes that start in dir,
// ending in "--" for bubblewrap. It is empty when isolation is none.
func LauncherArgs(isolation string, roots []string, dir string) ([]string, error) {
	return wrapArgs(isolation, roots, dir, nil)
}
