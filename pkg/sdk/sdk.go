// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

// Package sdk provides public types for capability authors.
//
// Interpreted (yaegi) capabilities import this package and export two
// functions from package main:
//
//	func Tools() []sdk.Spec
//	func Run(tool string, args map[string]any) (string, error)
//
// Executable capabilities implement Remote and call Serve from main.
package sdk

// Spec describes one tool a capability contributes.
type Spec struct {
	Name        string
	Description string
	// Schema is a JSON Schema for the tool's arguments. Empty means an
	// object with no declared properties.
	Schema string
}

// Remote is implemented by executable capabilities served over RPC.
type Remote interface {
	Tools() ([]Spec, error)
	Call(tool string, argsJSON []byte) (string, error)
}

// ImportPath is the path interpreted capabilities import this package by.
const ImportPath = "github.com/elemarin/paw/pkg/sdk"
