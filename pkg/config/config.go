// Package config turns untyped configuration bags into a typed RunConfig.
//
// Bags come from files (YAML or JSON), CLI overrides or request bodies. A Validator
// resolves a bag against a schema.Schema and decodes the result with mapstructure,
// so either a complete RunConfig is returned or none at all.
package config

import (
	"fmt"
	"maps"

	"github.com/aretw0/onestep/pkg/schema"
	"github.com/mitchellh/mapstructure"
)

// Recognized option keys.
const (
	KeyTaskID    = "task_id"
	KeyModelName = "model_name"
	KeyStep      = "step"
)

// DefaultTaskID is the task identifier used when a bag does not name one.
const DefaultTaskID = "2997$10071"

// RunConfig is the validated configuration of a single run.
// It is a value type: pass it by value and never mutate a shared copy.
type RunConfig struct {
	TaskID    string `mapstructure:"task_id" json:"task_id"`
	ModelName string `mapstructure:"model_name" json:"model_name,omitempty"`
	Step      string `mapstructure:"step" json:"step"`

	// Extra holds declared options without a dedicated field.
	Extra map[string]any `mapstructure:",remain" json:"extra,omitempty"`

	// resolved is the bag Validate decoded this config from.
	resolved map[string]any
}

// Bag converts the config back into an untyped bag. A config produced by Validate
// returns a copy of the exact bag it was decoded from, explicit empty values included.
// For a config built by hand, zero-valued fields are left out, so re-validating it
// reports them as missing.
func (c RunConfig) Bag() map[string]any {
	if c.resolved != nil {
		return maps.Clone(c.resolved)
	}
	bag := make(map[string]any, 3+len(c.Extra))
	maps.Copy(bag, c.Extra)
	if c.TaskID != "" {
		bag[KeyTaskID] = c.TaskID
	}
	if c.ModelName != "" {
		bag[KeyModelName] = c.ModelName
	}
	if c.Step != "" {
		bag[KeyStep] = c.Step
	}
	return bag
}

// BaseSchema declares the options every step understands.
func BaseSchema(defaultStep string) schema.Schema {
	return schema.Schema{
		KeyTaskID: schema.Optional(schema.String(), DefaultTaskID),
		KeyStep:   schema.Optional(schema.String(), defaultStep),
	}
}

// Validator validates bags against a fixed schema.
type Validator struct {
	schema schema.Schema
}

// NewValidator creates a validator for the given schema.
func NewValidator(s schema.Schema) *Validator {
	return &Validator{schema: s}
}

// Schema returns the declared fields.
func (v *Validator) Schema() schema.Schema {
	return v.schema
}

// Validate resolves raw against the schema and decodes it into a RunConfig.
// The returned error is the *schema.AggregateError describing every failing field.
func (v *Validator) Validate(raw map[string]any) (RunConfig, error) {
	bag, err := schema.Resolve(v.schema, raw)
	if err != nil {
		return RunConfig{}, err
	}

	var cfg RunConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &cfg,
		TagName: "mapstructure",
	})
	if err != nil {
		return RunConfig{}, fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(bag); err != nil {
		return RunConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.resolved = bag
	return cfg, nil
}

// Overlay merges bags left to right; later values win.
func Overlay(bags ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, b := range bags {
		maps.Copy(out, b)
	}
	return out
}
