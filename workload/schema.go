package workload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/poiesic/docflow/queue"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

type fieldType string

const (
	stringField fieldType = "string"
	objectField fieldType = "object"
)

type field struct {
	name     string
	typ      fieldType
	required bool
}

// payloadFields lists the fields each kind's schema declares.
var payloadFields = map[Kind][]field{
	KindOCR: {
		{"document_id", stringField, true},
		{"knowledge_base_id", stringField, true},
		{"staging_key", stringField, true},
		{"filename", stringField, true},
		{"mime_type", stringField, true},
		{"content_hash", stringField, false},
	},
	KindEmbed: {
		{"document_id", stringField, true},
		{"knowledge_base_id", stringField, true},
		{"content_hash", stringField, false},
	},
	KindProfiling: {
		{"document_id", stringField, true},
		{"knowledge_base_id", stringField, false},
		{"content_hash", stringField, false},
	},
	KindFeedExecution: {
		{"plugin_name", stringField, true},
		{"schedule_id", stringField, true},
		{"execution_id", stringField, true},
		{"knowledge_base_id", stringField, false},
		{"params", objectField, false},
	},
	KindExperienceExecution: {
		{"experience_id", stringField, true},
		{"run_id", stringField, true},
		{"user_id", stringField, true},
	},
}

func schemaDocument(kind Kind, fields []field) map[string]any {
	properties := map[string]any{
		ActionKey: map[string]any{"type": "string"},
	}
	required := []string{}
	for _, f := range fields {
		prop := map[string]any{"type": string(f.typ)}
		if f.typ == stringField && f.required {
			prop["minLength"] = 1
		}
		properties[f.name] = prop
		if f.required {
			required = append(required, f.name)
		}
	}
	return map[string]any{
		"$id":        fmt.Sprintf("docflow://workload/%s.json", kind),
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

var (
	schemasOnce sync.Once
	schemas     map[Kind]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() (map[Kind]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		out := make(map[Kind]*jsonschema.Schema, len(payloadFields))
		for kind, fields := range payloadFields {
			doc, err := json.Marshal(schemaDocument(kind, fields))
			if err != nil {
				schemasErr = fmt.Errorf("marshal %s schema: %w", kind, err)
				return
			}
			url := fmt.Sprintf("docflow://workload/%s.json", kind)
			if err := compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
				schemasErr = fmt.Errorf("add %s schema: %w", kind, err)
				return
			}
			schema, err := compiler.Compile(url)
			if err != nil {
				schemasErr = fmt.Errorf("compile %s schema: %w", kind, err)
				return
			}
			out[kind] = schema
		}
		schemas = out
	})
	return schemas, schemasErr
}

// RequiredFields returns the names of the fields kind requires.
func RequiredFields(kind Kind) []string {
	var names []string
	for _, f := range payloadFields[kind] {
		if f.required {
			names = append(names, f.name)
		}
	}
	return names
}

// Validate checks payload against the schema for kind. Absent, null or empty
// required fields produce a ValidationError naming the field.
func Validate(kind Kind, payload *queue.Payload) error {
	fields, ok := payloadFields[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	for _, f := range fields {
		if !f.required {
			continue
		}
		v, present := payload.Get(f.name)
		if !present || v == nil || v == "" {
			return missingField(kind, f.name)
		}
	}

	compiled, err := compileSchemas()
	if err != nil {
		return err
	}
	if err := compiled[kind].Validate(payload.Map()); err != nil {
		return schemaError(kind, err)
	}
	return nil
}

func schemaError(kind Kind, err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &ValidationError{Kind: kind, Reason: err.Error()}
	}
	// Report the most specific cause
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return &ValidationError{
		Kind:   kind,
		Field:  strings.TrimPrefix(ve.InstanceLocation, "/"),
		Reason: ve.Message,
	}
}
