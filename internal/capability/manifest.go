// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package capability

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// Runtime selects how a bundle's entry point is executed.
type Runtime string

const (
	RuntimeBuiltin    Runtime = "builtin"
	RuntimeYaegi      Runtime = "yaegi"
	RuntimeWasm       Runtime = "wasm"
	RuntimeExecutable Runtime = "executable"
)

// ManifestFiles are the file names recognized as a bundle manifest, in
// lookup order.
var ManifestFiles = []string{"capability.yaml", "plugin.yaml"}

var defaultEntryPoints = map[Runtime]string{
	RuntimeYaegi:      "main.go",
	RuntimeWasm:       "main.wasm",
	RuntimeExecutable: "capability",
}

// nameRe matches capability and tool names.
var nameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-]{0,63}$`)

// semverRe matches strict semver (no "v" prefix): MAJOR.MINOR.PATCH[-prerelease][+build].
var semverRe = regexp.MustCompile(
	`^(?:0|[1-9]\d*)\.(?:0|[1-9]\d*)\.(?:0|[1-9]\d*)` +
		`(?:-(?:[0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?` +
		`(?:\+(?:[0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`,
)

// Manifest is the parsed capability.yaml of one bundle.
type Manifest struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string  `yaml:"version,omitempty" json:"version,omitempty"`
	EntryPoint  string  `yaml:"entry_point,omitempty" json:"entry_point,omitempty"`
	Runtime     Runtime `yaml:"runtime,omitempty" json:"runtime,omitempty"`
	HotReload   *bool   `yaml:"hot_reload,omitempty" json:"hot_reload,omitempty"`
	// Tools declares the tools of a wasm bundle.
	Tools []ToolSpec `yaml:"tools,omitempty" json:"tools,omitempty"`

	// Dir is the bundle directory the manifest was read from.
	Dir string `yaml:"-" json:"-"`
}

// ValidName reports whether name is usable as a capability name.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// ParseManifest parses YAML data into a Manifest, fills defaults, and
// validates it.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, pawerr.Errorf(pawerr.CodeCapabilityManifestInvalid, "manifest parse: %s", err)
	}

	m.applyDefaults()

	if errs := m.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}
	return &m, nil
}

// ReadManifest loads the manifest of the bundle in dir.
func ReadManifest(dir string) (*Manifest, error) {
	path, err := FindManifest(dir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pawerr.Wrap(err, pawerr.CodeCapabilityManifestInvalid, "reading manifest",
			pawerr.FieldPath(path))
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, pawerr.With(err, pawerr.FieldPath(path))
	}
	m.Dir = dir
	return m, nil
}

// FindManifest returns the path of the manifest inside dir.
func FindManifest(dir string) (string, error) {
	for _, name := range ManifestFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", pawerr.Wrap(err, pawerr.CodeCapabilityManifestInvalid, "stat manifest",
				pawerr.FieldPath(path))
		}
	}
	return "", pawerr.New(pawerr.CodeCapabilityManifestInvalid, "no capability.yaml or plugin.yaml found",
		pawerr.FieldPath(dir))
}

func (m *Manifest) applyDefaults() {
	if m.Runtime == "" {
		m.Runtime = inferRuntime(m.EntryPoint)
	}
	if m.EntryPoint == "" {
		m.EntryPoint = defaultEntryPoints[m.Runtime]
	}
	if m.Version == "" {
		m.Version = "0.1.0"
	}
}

func inferRuntime(entry string) Runtime {
	if entry == "" {
		return RuntimeYaegi
	}
	switch strings.ToLower(filepath.Ext(entry)) {
	case ".go":
		return RuntimeYaegi
	case ".wasm":
		return RuntimeWasm
	default:
		return RuntimeExecutable
	}
}

// HotReloadable reports whether the bundle may be replaced while running.
// Bundles are hot-reloadable unless the manifest says otherwise.
func (m *Manifest) HotReloadable() bool {
	return m.HotReload == nil || *m.HotReload
}

// EntryPath is the absolute location of the entry point.
func (m *Manifest) EntryPath() string {
	return filepath.Join(m.Dir, m.EntryPoint)
}

// Validate checks the manifest for correctness and returns all errors found.
func (m *Manifest) Validate() []error {
	var errs []error

	if m.Name == "" {
		errs = append(errs, pawerr.New(pawerr.CodeCapabilityManifestInvalid, "name is required"))
	} else if !nameRe.MatchString(m.Name) {
		errs = append(errs, pawerr.Errorf(pawerr.CodeCapabilityManifestInvalid,
			"name %q must start with a letter and contain only letters, digits, '_' or '-'", m.Name))
	}

	if m.Version != "" && !semverRe.MatchString(m.Version) {
		errs = append(errs, pawerr.Errorf(pawerr.CodeCapabilityManifestInvalid,
			"version %q is not valid semver", m.Version))
	}

	switch m.Runtime {
	case RuntimeBuiltin, RuntimeYaegi, RuntimeWasm, RuntimeExecutable:
	default:
		errs = append(errs, pawerr.Errorf(pawerr.CodeCapabilityManifestInvalid,
			"runtime %q is not one of builtin, yaegi, wasm, executable", m.Runtime))
	}

	if m.EntryPoint != "" {
		if filepath.IsAbs(m.EntryPoint) || strings.HasPrefix(filepath.Clean(m.EntryPoint), "..") {
			errs = append(errs, pawerr.Errorf(pawerr.CodeCapabilityManifestInvalid,
				"entry_point %q must stay inside the bundle directory", m.EntryPoint))
		}
	}

	return errs
}

// MarshalManifest renders m as YAML for writing into a bundle.
func MarshalManifest(m *Manifest) ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, pawerr.Wrap(err, pawerr.CodeCapabilityManifestInvalid, "encoding manifest")
	}
	return data, nil
}
