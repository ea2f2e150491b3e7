// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package sandbox

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// Policy resolves tool-supplied paths against a fixed set of roots.
// The roots are canonicalized once in NewPolicy and never change afterwards.
type Policy struct {
	workspace string
	roots     []string
}

// NewPolicy creates the workspace and roots if they are missing and pins their
// canonical form. The workspace is always an allowed root.
func NewPolicy(workspace string, roots []string) (*Policy, error) {
	if workspace == "" {
		return nil, pawerr.New(pawerr.CodeSandboxConfigInvalid, "sandbox: workspace must not be empty")
	}

	ws, err := canonicalRoot(workspace)
	if err != nil {
		return nil, err
	}

	p := &Policy{workspace: ws, roots: []string{ws}}
	for _, r := range roots {
		if r == "" {
			continue
		}
		c, err := canonicalRoot(r)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(p.roots, c) {
			p.roots = append(p.roots, c)
		}
	}
	return p, nil
}

func canonicalRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", pawerr.Wrapf(err, pawerr.CodeSandboxConfigInvalid, "sandbox: resolving root %q", root)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", pawerr.Wrapf(err, pawerr.CodeSandboxConfigInvalid, "sandbox: creating root %q", abs)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", pawerr.Wrapf(err, pawerr.CodeSandboxConfigInvalid, "sandbox: resolving root %q", abs)
	}
	return resolved, nil
}

// Reserve fails with sandbox.config.invalid when any root equals, contains,
// or lies inside one of dirs. Tool-reachable roots must never overlap the
// directories the capability loader reads from.
func (p *Policy) Reserve(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return pawerr.Wrapf(err, pawerr.CodeSandboxConfigInvalid, "sandbox: resolving reserved dir %q", dir)
		}
		reserved, err := evalNearest(filepath.Clean(abs))
		if err != nil {
			return pawerr.Wrapf(err, pawerr.CodeSandboxConfigInvalid, "sandbox: resolving reserved dir %q", dir)
		}
		for _, root := range p.roots {
			if within(root, reserved) || within(reserved, root) {
				return pawerr.New(pawerr.CodeSandboxConfigInvalid,
					"sandbox: root "+root+" overlaps reserved directory "+reserved,
					pawerr.FieldPath(root))
			}
		}
	}
	return nil
}

// Workspace returns the canonical workspace root. Relative paths resolve here.
func (p *Policy) Workspace() string { return p.workspace }

// Roots returns a copy of the canonical allow-listed roots.
func (p *Policy) Roots() []string { return slices.Clone(p.roots) }

// Resolve returns the canonical absolute form of path, or a
// sandbox.path.denied error if it lies outside every root. Resolution never
// touches the filesystem beyond Lstat and symlink evaluation.
func (p *Policy) Resolve(path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", pawerr.New(pawerr.CodeSandboxPathInvalid, "sandbox: path contains NUL byte", pawerr.FieldPath(path))
	}
	if path == "" {
		path = "."
	}

	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(p.workspace, candidate)
	}
	candidate = filepath.Clean(candidate)

	canonical, err := evalNearest(candidate)
	if err != nil {
		return "", pawerr.Wrap(err, pawerr.CodeSandboxPathDenied,
			"sandbox: path cannot be resolved safely", pawerr.FieldPath(path))
	}

	if !p.contains(canonical) {
		return "", pawerr.New(pawerr.CodeSandboxPathDenied,
			"sandbox: path resolves outside the allowed roots", pawerr.FieldPath(path))
	}
	return canonical, nil
}

// Display renders a canonical path relative to the workspace when possible.
func (p *Policy) Display(abs string) string {
	if rel, err := filepath.Rel(p.workspace, abs); err == nil && !escapes(rel) {
		return rel
	}
	return abs
}

func (p *Policy) contains(abs string) bool {
	for _, root := range p.roots {
		if within(root, abs) {
			return true
		}
	}
	return false
}

// within reports whether abs is root or lies below it.
func within(root, abs string) bool {
	rel, err := filepath.Rel(root, abs)
	return err == nil && !escapes(rel)
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel)
}

// evalNearest resolves symlinks on path, or on its nearest existing ancestor
// when path does not exist yet, and re-appends the missing tail.
func evalNearest(path string) (string, error) {
	var tail []string
	cur := path
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		// A dangling symlink exists but cannot be followed; its target is unknown.
		if _, lerr := os.Lstat(cur); lerr == nil {
			return "", err
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}
