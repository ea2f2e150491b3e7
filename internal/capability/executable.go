// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package capability

import (
	"context"
	"encoding/json"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/go-plugin"

	"github.com/elemarin/paw/internal/tool"
	pawerr "github.com/elemarin/paw/pkg/errors"
	"github.com/elemarin/paw/pkg/sdk"
)

// ClientConfig builds the go-plugin client configuration for an executable
// bundle. A non-empty sandboxCmd prefixes the binary (for example a
// bubblewrap invocation).
func ClientConfig(binaryPath string, sandboxCmd []string) *plugin.ClientConfig {
	return &plugin.ClientConfig{
		HandshakeConfig:  sdk.HandshakeConfig(),
		Plugins:          sdk.PluginMap(nil),
		Cmd:              buildCommand(binaryPath, sandboxCmd),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	}
}

func buildCommand(binaryPath string, sandboxCmd []string) *exec.Cmd {
	if len(sandboxCmd) == 0 {
		return exec.Command(binaryPath)
	}

	args := append(slices.Clone(sandboxCmd), binaryPath)
	return exec.Command(args[0], args[1:]...)
}

// executableCapability runs the bundle's binary as a go-plugin subprocess
// and forwards each tool call over net/rpc.
type executableCapability struct {
	manifest    *Manifest
	sandboxCmd  []string
	execTimeout time.Duration

	mu     sync.Mutex
	client *plugin.Client
	remote sdk.Remote
}

func newExecutableCapability(m *Manifest, sandboxCmd []string, execTimeout time.Duration) *executableCapability {
	return &executableCapability{manifest: m, sandboxCmd: sandboxCmd, execTimeout: execTimeout}
}

func (c *executableCapability) Name() string { return c.manifest.Name }

func (c *executableCapability) OnLoad(ctx context.Context) ([]tool.Tool, error) {
	client := plugin.NewClient(ClientConfig(c.manifest.EntryPath(), c.sandboxCmd))
	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, pawerr.Wrapf(err, pawerr.CodeCapabilityLoadFailure, "starting %s", c.manifest.EntryPath())
	}
	raw, err := rpcClient.Dispense(sdk.PluginName)
	if err != nil {
		client.Kill()
		return nil, pawerr.Wrap(err, pawerr.CodeCapabilityLoadFailure, "dispensing capability")
	}
	remote, ok := raw.(sdk.Remote)
	if !ok {
		client.Kill()
		return nil, pawerr.Errorf(pawerr.CodeCapabilityLoadFailure, "dispensed %T does not implement sdk.Remote", raw)
	}

	tools, err := c.attach(ctx, remote)
	if err != nil {
		client.Kill()
		return nil, err
	}
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
	return tools, nil
}

// attach lists the remote's tools and binds them to calls on remote.
func (c *executableCapability) attach(_ context.Context, remote sdk.Remote) ([]tool.Tool, error) {
	specs, err := remote.Tools()
	if err != nil {
		return nil, pawerr.Wrap(err, pawerr.CodeCapabilityLoadFailure, "listing tools")
	}
	if len(specs) == 0 {
		return nil, pawerr.New(pawerr.CodeCapabilityLoadFailure, "capability returned no tools")
	}

	c.mu.Lock()
	c.remote = remote
	c.mu.Unlock()

	tools := make([]tool.Tool, 0, len(specs))
	for _, s := range specs {
		name := s.Name
		tools = append(tools, tool.Func{
			Def: specDefinition(s),
			Fn: func(ctx context.Context, call tool.Call) (string, error) {
				return c.call(ctx, name, call.Args)
			},
		})
	}
	return tools, nil
}

func (c *executableCapability) OnUnload(context.Context) error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.remote = nil
	c.mu.Unlock()
	if client != nil {
		client.Kill()
	}
	return nil
}

func (c *executableCapability) call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	c.mu.Lock()
	remote := c.remote
	c.mu.Unlock()
	if remote == nil {
		return "", pawerr.Errorf(pawerr.CodeCapabilityRuntimeFailure, "capability %s is not loaded", c.manifest.Name)
	}
	if c.execTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.execTimeout)
		defer cancel()
	}

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := remote.Call(name, args)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.out, pawerr.Wrapf(r.err, pawerr.CodeCapabilityRuntimeFailure, "calling %s", name)
		}
		return r.out, nil
	case <-ctx.Done():
		return "", pawerr.Wrapf(ctx.Err(), pawerr.CodeToolExecuteTimeout, "%s timed out", name)
	}
}
