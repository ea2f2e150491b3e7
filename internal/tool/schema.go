// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package tool

import (
	"bytes"
	"encoding/json"
	"errors"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

var emptyObjectSchema = json.RawMessage(`{"type":"object"}`)

var reflector = invopop.Reflector{
	Anonymous:      true,
	DoNotReference: true,
	ExpandedStruct: true,
}

// SchemaFor derives a JSON schema from the exported, json-tagged fields of T.
// Fields without omitempty are required; `jsonschema:"enum=a,enum=b"` and
// `jsonschema:"description=..."` tags are honoured.
func SchemaFor[T any]() json.RawMessage {
	var zero T
	raw, err := json.Marshal(reflector.Reflect(zero))
	if err != nil {
		// Reflect only produces marshalable values.
		panic(err)
	}
	return raw
}

// DecodeArgs unmarshals call arguments into T. Schema validation has already
// run, so a failure here means the schema and T disagree.
func DecodeArgs[T any](call Call) (T, error) {
	var out T
	args := call.Args
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, &out); err != nil {
		return out, pawerr.Wrapf(err, pawerr.CodeToolSchemaInvalid, "decoding arguments for %s", call.Name)
	}
	return out, nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = emptyObjectSchema
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := "mem://tools/" + name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeToolDefinitionInvalid, "tool %q: parsing schema", name)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeToolDefinitionInvalid, "tool %q: compiling schema", name)
	}
	return sch, nil
}

func validateArgs(sch *jsonschema.Schema, call Call) error {
	args := call.Args
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return pawerr.Wrapf(err, pawerr.CodeToolSchemaInvalid, "arguments for %s are not valid JSON", call.Name)
	}
	if err := sch.Validate(v); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return pawerr.New(pawerr.CodeToolSchemaInvalid,
				"invalid arguments for "+call.Name+": "+leafMessage(verr), pawerr.FieldTool(call.Name))
		}
		return pawerr.Wrapf(err, pawerr.CodeToolSchemaInvalid, "invalid arguments for %s", call.Name)
	}
	return nil
}

// leafMessage flattens a validation tree into "location: message" pairs.
func leafMessage(verr *jsonschema.ValidationError) string {
	if len(verr.Causes) == 0 {
		loc := verr.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return loc + ": " + verr.Message
	}
	var buf bytes.Buffer
	for i, c := range verr.Causes {
		if i > 0 {
			buf.WriteString("; ")
		}
		buf.WriteString(leafMessage(c))
	}
	return buf.String()
}
