// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

//go:build !unix

package sandbox

import "os/exec"

func setProcessGroup(*exec.Cmd) {}

// killProcessGroup only reaches the direct child without process groups.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func defaultShell() []string { return []string{"cmd.exe", "/c"} }
