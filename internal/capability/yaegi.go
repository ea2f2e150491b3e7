// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/elemarin/paw/internal/tool"
	pawerr "github.com/elemarin/paw/pkg/errors"
	"github.com/elemarin/paw/pkg/sdk"
)

// interpretedPackages are the standard packages interpreted capabilities
// may import. Anything touching the filesystem, processes, or the network
// is absent, so importing it fails at load time.
var interpretedPackages = []string{
	"bytes", "encoding/base64", "encoding/hex", "encoding/json", "errors", "fmt",
	"math", "math/rand", "net/url", "path", "regexp", "sort", "strconv",
	"strings", "text/template", "time", "unicode", "unicode/utf8",
}

var sdkSymbols = interp.Exports{
	sdk.ImportPath + "/sdk": {
		"Spec": reflect.ValueOf((*sdk.Spec)(nil)),
	},
}

// allowedSymbols filters the yaegi stdlib export table down to
// interpretedPackages.
func allowedSymbols() interp.Exports {
	out := make(interp.Exports, len(interpretedPackages))
	for _, pkg := range interpretedPackages {
		name := pkg[strings.LastIndex(pkg, "/")+1:]
		key := pkg + "/" + name
		if syms, ok := stdlib.Symbols[key]; ok {
			out[key] = syms
		}
	}
	return out
}

type (
	toolsFunc = func() []sdk.Spec
	runFunc   = func(string, map[string]any) (string, error)
)

// yaegiCapability interprets the bundle's Go source. The interpreter is
// created on load and dropped on unload; calls are serialized because an
// interpreter instance is not safe for concurrent evaluation.
type yaegiCapability struct {
	manifest *Manifest
	timeout  time.Duration

	mu  sync.Mutex
	run runFunc
}

func newYaegiCapability(m *Manifest, timeout time.Duration) *yaegiCapability {
	return &yaegiCapability{manifest: m, timeout: timeout}
}

func (c *yaegiCapability) Name() string { return c.manifest.Name }

func (c *yaegiCapability) OnLoad(ctx context.Context) ([]tool.Tool, error) {
	src, err := os.ReadFile(c.manifest.EntryPath())
	if err != nil {
		return nil, pawerr.Wrap(err, pawerr.CodeCapabilityLoadFailure, "reading entry point",
			pawerr.FieldPath(c.manifest.EntryPath()))
	}
	specs, run, err := interpretWithContext(ctx, string(src))
	if err != nil {
		return nil, pawerr.With(err, pawerr.FieldCapability(c.manifest.Name))
	}

	c.mu.Lock()
	c.run = run
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

func (c *yaegiCapability) OnUnload(context.Context) error {
	c.mu.Lock()
	c.run = nil
	c.mu.Unlock()
	return nil
}

func (c *yaegiCapability) call(ctx context.Context, name string, raw json.RawMessage) (string, error) {
	args := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", pawerr.Wrapf(err, pawerr.CodeToolSchemaInvalid, "decoding arguments for %s", name)
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: pawerr.Errorf(pawerr.CodeCapabilityRuntimeFailure, "panic in %s: %v", name, r)}
			}
		}()
		if c.run == nil {
			done <- result{err: pawerr.Errorf(pawerr.CodeCapabilityRuntimeFailure, "capability %s is not loaded", c.manifest.Name)}
			return
		}
		out, err := c.run(name, args)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && pawerr.CodeOf(r.err) == "" {
			return r.out, pawerr.Wrapf(r.err, pawerr.CodeCapabilityRuntimeFailure, "%s", name)
		}
		return r.out, r.err
	case <-ctx.Done():
		return "", pawerr.Wrapf(ctx.Err(), pawerr.CodeToolExecuteTimeout, "%s timed out", name)
	}
}

// interpretWithContext runs interpret on its own goroutine and gives up
// when ctx ends. A Tools or init that never returns is abandoned; the
// interpreter goroutine is not reclaimed until it finishes on its own.
func interpretWithContext(ctx context.Context, src string) ([]sdk.Spec, runFunc, error) {
	type result struct {
		specs []sdk.Spec
		run   runFunc
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: pawerr.Errorf(pawerr.CodeCapabilityLoadFailure, "panic while interpreting: %v", r)}
			}
		}()
		specs, run, err := interpret(ctx, src)
		done <- result{specs: specs, run: run, err: err}
	}()

	select {
	case r := <-done:
		return r.specs, r.run, r.err
	case <-ctx.Done():
		return nil, nil, pawerr.Wrap(ctx.Err(), pawerr.CodeCapabilityLoadFailure, "interpreting source timed out")
	}
}

// interpret evaluates src and resolves its Tools and Run exports.
func interpret(ctx context.Context, src string) ([]sdk.Spec, runFunc, error) {
	if !strings.Contains(src, "package ") {
		src = "package main\n\n" + src
	}

	i := interp.New(interp.Options{})
	if err := i.Use(allowedSymbols()); err != nil {
		return nil, nil, pawerr.Wrap(err, pawerr.CodeCapabilityLoadFailure, "loading interpreter symbols")
	}
	if err := i.Use(sdkSymbols); err != nil {
		return nil, nil, pawerr.Wrap(err, pawerr.CodeCapabilityLoadFailure, "loading sdk symbols")
	}
	if _, err := i.EvalWithContext(ctx, src); err != nil {
		return nil, nil, pawerr.Wrap(err, pawerr.CodeCapabilityLoadFailure, "evaluating source")
	}

	toolsVal, err := i.Eval("main.Tools")
	if err != nil {
		return nil, nil, pawerr.Wrap(err, pawerr.CodeCapabilityLoadFailure, "Tools function not found")
	}
	tools, ok := toolsVal.Interface().(toolsFunc)
	if !ok {
		return nil, nil, pawerr.New(pawerr.CodeCapabilityLoadFailure,
			"Tools has incorrect signature (expected: func() []sdk.Spec)")
	}
	runVal, err := i.Eval("main.Run")
	if err != nil {
		return nil, nil, pawerr.Wrap(err, pawerr.CodeCapabilityLoadFailure, "Run function not found")
	}
	run, ok := runVal.Interface().(runFunc)
	if !ok {
		return nil, nil, pawerr.New(pawerr.CodeCapabilityLoadFailure,
			"Run has incorrect signature (expected: func(string, map[string]any) (string, error))")
	}

	specs, err := callTools(tools)
	if err != nil {
		return nil, nil, err
	}
	return specs, run, nil
}

func callTools(tools toolsFunc) (specs []sdk.Spec, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pawerr.Errorf(pawerr.CodeCapabilityLoadFailure, "panic in Tools: %v", r)
		}
	}()
	specs = tools()
	if len(specs) == 0 {
		return nil, pawerr.New(pawerr.CodeCapabilityLoadFailure, "Tools returned no tools")
	}
	for _, s := range specs {
		if s.Name == "" {
			return nil, pawerr.New(pawerr.CodeCapabilityLoadFailure, fmt.Sprintf("tool %q has no name", s.Description))
		}
	}
	return specs, nil
}
