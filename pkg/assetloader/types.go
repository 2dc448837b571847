package assetloader

import (
	"cuelang.org/go/cue"
)

const (
	// ModelMetaName is the base name of the generated model metadata
	ModelMetaName = "model-meta"

	// PolicyName is the base name of the generated access policy definition
	PolicyName = "policy"

	// ZodSchemasName is the base name of the generated zod schema set
	ZodSchemasName = "zod"
)

// Asset is a resolved and decoded generated artifact
type Asset struct {
	// Name is the asset base name (model-meta, policy or zod)
	Name string

	// Source describes where the asset was loaded from
	// For load paths and the working directory: file:///abs/path/model-meta.json
	// For the runtime location: runtime://.zenstack/model-meta.json
	Source string

	// Digest is a content-based identifier of the raw bytes
	Digest string

	// Content is the raw file content. Directory assets hold the
	// concatenation of their files in lexical order.
	Content []byte

	// Value is the decoded asset. It is never inspected by this package.
	Value cue.Value
}

// ModelMeta is the generated description of the data model
type ModelMeta struct {
	Asset
}

// PolicyDef is the generated description of the access-control rules
type PolicyDef struct {
	Asset
}

// SchemaSet is the generated set of validation schemas keyed by model name
type SchemaSet struct {
	Asset

	// Models maps each top-level field of the decoded value to its schema.
	// It is nil when the value is not a struct.
	Models map[string]cue.Value
}

// Schema returns the schema for the given model
func (s *SchemaSet) Schema(model string) (cue.Value, bool) {
	if s == nil {
		return cue.Value{}, false
	}
	v, ok := s.Models[model]
	return v, ok
}

// LoadOptions selects how Load obtains each asset
type LoadOptions struct {
	// LoadPath overrides the default location. Relative paths are
	// resolved against the working directory.
	LoadPath string

	// ModelMeta, when set, is returned as is and nothing is resolved
	ModelMeta *ModelMeta

	// ZodSchemas, when set, is returned as is
	ZodSchemas *SchemaSet

	// DefaultZodSchemas requests the schema set from the default
	// location. A missing schema set becomes ErrZodSchemasUnavailable.
	// Ignored when ZodSchemas is set.
	DefaultZodSchemas bool
}

// Bundle is the result of Load
type Bundle struct {
	ModelMeta *ModelMeta

	// ZodSchemas is nil when schemas were not requested
	ZodSchemas *SchemaSet
}
