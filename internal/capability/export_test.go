// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package capability

import (
	"context"
	"os/exec"

	"github.com/elemarin/paw/internal/tool"
	"github.com/elemarin/paw/pkg/sdk"
)

// AttachRemote binds an already-dispensed remote the way OnLoad does after
// starting the subprocess.
func AttachRemote(ctx context.Context, m *Manifest, r sdk.Remote) ([]tool.Tool, error) {
	return newExecutableCapability(m, nil, 0).attach(ctx, r)
}

func BuildCommand(binaryPath string, sandboxCmd []string) *exec.Cmd {
	return buildCommand(binaryPath, sandboxCmd)
}
