// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package proposal

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/elemarin/paw/internal/capability"
	"github.com/elemarin/paw/internal/store"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// BinarySource is the source document of a wasm or executable plugin
// proposal: the base64 module plus, for wasm, its tool declarations.
type BinarySource struct {
	Tools  []capability.ToolSpec `yaml:"tools,omitempty"`
	Module string                `yaml:"module"`
}

// WriteBundle materializes a plugin proposal as dir/<name> and returns
// the bundle directory.
func WriteBundle(dir string, p *store.Proposal) (string, error) {
	bundle := filepath.Join(dir, p.Name)
	if err := writeBundleFiles(bundle, p); err != nil {
		return "", err
	}
	return bundle, nil
}

// InstallBundle writes p into a staging directory under dir and swaps it
// into place, so the loader never observes a half-written bundle.
func InstallBundle(dir string, p *store.Proposal) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(dir, "_staging-"+p.Name+"-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if err := writeBundleFiles(staging, p); err != nil {
		return err
	}
	dest := filepath.Join(dir, p.Name)
	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	return os.Rename(staging, dest)
}

func writeBundleFiles(bundle string, p *store.Proposal) error {
	if err := os.MkdirAll(bundle, 0o750); err != nil {
		return err
	}
	m := &capability.Manifest{
		Name:        p.Name,
		Description: p.Description,
		Version:     "0.1.0",
		Runtime:     capability.Runtime(p.Runtime),
	}

	var entry []byte
	mode := os.FileMode(0o600)
	switch m.Runtime {
	case capability.RuntimeYaegi:
		m.EntryPoint = "main.go"
		entry = []byte(p.Source)
	case capability.RuntimeWasm, capability.RuntimeExecutable:
		src, err := decodeBinarySource(p.Source)
		if err != nil {
			return err
		}
		if m.Runtime == capability.RuntimeWasm {
			m.EntryPoint = "main.wasm"
			m.Tools = src.tools
		} else {
			m.EntryPoint = "capability"
			mode = 0o700
		}
		entry = src.module
	default:
		return pawerr.Errorf(pawerr.CodeProposalInputInvalid, "runtime %q cannot be bundled", p.Runtime)
	}

	manifest, err := capability.MarshalManifest(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(bundle, capability.ManifestFiles[0]), manifest, 0o600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(bundle, m.EntryPoint), entry, mode)
}

type decodedSource struct {
	tools  []capability.ToolSpec
	module []byte
}

func decodeBinarySource(source string) (*decodedSource, error) {
	var doc BinarySource
	if err := yaml.Unmarshal([]byte(source), &doc); err != nil {
		return nil, pawerr.Errorf(pawerr.CodeProposalInputInvalid, "binary source is not a YAML document: %s", err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(doc.Module), ""))
	if err != nil {
		return nil, pawerr.Errorf(pawerr.CodeProposalInputInvalid, "module is not valid base64: %s", err)
	}
	if len(raw) == 0 {
		return nil, pawerr.New(pawerr.CodeProposalInputInvalid, "module must not be empty")
	}
	return &decodedSource{tools: doc.Tools, module: raw}, nil
}
