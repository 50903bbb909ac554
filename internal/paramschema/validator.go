package paramschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/metakeggweb/mekeweserver/internal/apperrors"
	"github.com/metakeggweb/mekeweserver/internal/model"
)

// Which selects a subset of a method's descriptors to validate against.
type Which string

const (
	WhichFile    Which = "file"
	WhichNonFile Which = "non-file"
	WhichAll     Which = "all"
)

var schemaResourceSeq int64

// Validator checks a parameter map against a compiled JSON Schema built
// from a method's descriptor set. Built on
// github.com/santhosh-tekuri/jsonschema/v5 instead of a hand-rolled type
// switch.
type Validator struct {
	schema      *jsonschema.Schema
	descriptors []model.ParameterDescriptor
}

// BuildValidator compiles a Validator for method's descriptors restricted
// to which, honoring the create/update required-field asymmetry
// (forUpdate=true relaxes the four "identity" fields to optional).
func BuildValidator(method string, which Which, forUpdate bool) (*Validator, error) {
	all := append(GlobalDescriptors(), MethodDescriptors(method)...)

	var selected []model.ParameterDescriptor
	for _, d := range all {
		isFile := d.Type == model.ParamFile
		switch which {
		case WhichFile:
			if isFile {
				selected = append(selected, d)
			}
		case WhichNonFile:
			if !isFile {
				selected = append(selected, d)
			}
		case WhichAll:
			selected = append(selected, d)
		default:
			return nil, fmt.Errorf("unknown which %q", which)
		}
	}

	schemaDoc := map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"additionalProperties": false,
		"properties":           map[string]any{},
	}
	properties := schemaDoc["properties"].(map[string]any)
	var required []string
	for _, d := range selected {
		properties[d.Name] = jsonSchemaForDescriptor(d)
		if d.Required && !(forUpdate && updateOptionalNames[d.Name]) {
			required = append(required, d.Name)
		}
	}
	if len(required) > 0 {
		schemaDoc["required"] = required
	}

	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	url := fmt.Sprintf("mem://paramschema/%d", atomic.AddInt64(&schemaResourceSeq, 1))
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{schema: schema, descriptors: selected}, nil
}

func jsonSchemaForDescriptor(d model.ParameterDescriptor) map[string]any {
	base := baseJSONType(d.Type)
	if d.IsList {
		return map[string]any{"type": "array", "items": map[string]any{"type": base}}
	}
	return map[string]any{"type": []any{base, "null"}}
}

func baseJSONType(t model.ParamType) string {
	switch t {
	case model.ParamInt:
		return "integer"
	case model.ParamFloat:
		return "number"
	case model.ParamBool:
		return "boolean"
	case model.ParamFile:
		return "string"
	default:
		return "string"
	}
}

// Validate checks params (already-decoded JSON values) against the
// compiled schema: required/optional, declared types, recognized-keys-only.
// Values are checked, not converted: a value of the wrong JSON type is
// rejected rather than coerced to the declared type.
func (v *Validator) Validate(params map[string]any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return apperrors.BadParameter("cannot encode parameters: %v", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return apperrors.BadParameter("cannot decode parameters: %v", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return apperrors.BadParameter("parameter validation failed: %v", err)
	}
	return nil
}

// Descriptors returns the descriptor subset this validator was built from.
func (v *Validator) Descriptors() []model.ParameterDescriptor {
	out := make([]model.ParameterDescriptor, len(v.descriptors))
	copy(out, v.descriptors)
	return out
}
