// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package tool

import (
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

type entry struct {
	tool   Tool
	def    Definition
	schema *jsonschema.Schema
}

// Registry maps tool names to tools. Reads take a shared lock; every mutation
// takes the single write lock, so a name is never bound to two tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*entry)}
}

// Register adds t. A name already in use returns tool.registry.conflict and
// leaves the registry unchanged.
func (r *Registry) Register(t Tool) error {
	return r.RegisterAll([]Tool{t})
}

// RegisterAll adds every tool or none of them.
func (r *Registry) RegisterAll(tools []Tool) error {
	prepared := make([]*entry, 0, len(tools))
	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		e, err := prepare(t)
		if err != nil {
			return err
		}
		if seen[e.def.Name] {
			return conflictErr(e.def.Name, e.def.Owner)
		}
		seen[e.def.Name] = true
		prepared = append(prepared, e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range prepared {
		if existing, ok := r.tools[e.def.Name]; ok {
			return pawerr.With(conflictErr(e.def.Name, e.def.Owner),
				pawerr.Field("existing_owner", existing.def.Owner))
		}
	}
	for _, e := range prepared {
		r.tools[e.def.Name] = e
	}
	return nil
}

func prepare(t Tool) (*entry, error) {
	if t == nil {
		return nil, pawerr.New(pawerr.CodeToolDefinitionInvalid, "tool must not be nil")
	}
	def := t.Definition()
	if strings.TrimSpace(def.Name) == "" {
		return nil, pawerr.New(pawerr.CodeToolDefinitionInvalid, "tool name must not be empty")
	}
	if def.Owner == "" {
		def.Owner = OwnerBuiltin
	}
	switch def.Class {
	case "":
		def.Class = ClassOther
	case ClassOther:
	case ClassFile, ClassCommand:
		if def.Owner != OwnerBuiltin {
			return nil, pawerr.New(pawerr.CodeToolDefinitionInvalid,
				"tool "+def.Name+": class "+string(def.Class)+" is reserved for builtin tools",
				pawerr.FieldTool(def.Name), pawerr.FieldCapability(def.Owner))
		}
	default:
		return nil, pawerr.New(pawerr.CodeToolDefinitionInvalid,
			"tool "+def.Name+": unknown class "+string(def.Class), pawerr.FieldTool(def.Name))
	}
	if len(def.Schema) == 0 {
		def.Schema = emptyObjectSchema
	}
	sch, err := compileSchema(def.Name, def.Schema)
	if err != nil {
		return nil, err
	}
	return &entry{tool: t, def: def, schema: sch}, nil
}

func conflictErr(name, owner string) error {
	return pawerr.New(pawerr.CodeToolRegistryConflict, "tool "+name+" is already registered",
		pawerr.FieldTool(name), pawerr.FieldCapability(owner))
}

// Unregister removes a tool by name. It reports whether the tool existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tools[name]
	delete(r.tools, name)
	return ok
}

// UnregisterOwner removes every tool registered by owner and returns their names.
func (r *Registry) UnregisterOwner(owner string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for name, e := range r.tools {
		if e.def.Owner == owner {
			removed = append(removed, name)
			delete(r.tools, name)
		}
	}
	sort.Strings(removed)
	return removed
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e, ok
}

// Definitions returns all definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defs := make([]Definition, 0, len(r.tools))
	for _, e := range r.tools {
		defs = append(defs, e.def)
	}
	r.mu.RUnlock()

	slices.SortFunc(defs, func(a, b Definition) int { return strings.Compare(a.Name, b.Name) })
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
