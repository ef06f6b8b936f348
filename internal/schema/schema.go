// Package schema holds the process-wide content and relation tables:
// type prefixes, required fields, enum memberships, defaults, status
// transition graphs, uniqueness policies, and relation key specs.
//
// The tables are declared in an embedded CUE file and loaded once at
// startup. After Load returns, the configuration is never mutated, so
// it is safe for concurrent read-only access.
package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaCUE []byte

// ContentSpec describes one content type.
type ContentSpec struct {
	// Prefix is prepended to generated IDs ("post" -> "post_<uuid>").
	Prefix string `json:"prefix"`

	// Required lists header fields that must be present on create.
	Required []string `json:"required"`

	// Unique lists fields checked against all existing non-deleted
	// records of the type.
	Unique []string `json:"unique"`

	// Enums maps field name to its allowed values.
	Enums map[string][]string `json:"enums"`

	// Defaults maps field name to the value applied when unset on create.
	Defaults map[string]any `json:"defaults"`

	// Transitions maps field name to its directed transition graph:
	// state -> declared successors.
	Transitions map[string]map[string][]string `json:"transitions"`

	// SoftDelete marks types that are soft-deleted instead of removed
	// (interactions, to preserve history for cache replay).
	SoftDelete bool `json:"soft_delete"`
}

// RelationSpec describes one relation type.
type RelationSpec struct {
	// Keys are the composite natural key fields, all required on create.
	Keys []string `json:"keys"`

	// Refs maps key fields to the content type they reference.
	Refs map[string]string `json:"refs"`

	// DynamicRefs maps key fields whose referenced content type is named
	// by another field of the same relation (target_id -> target_type).
	DynamicRefs map[string]string `json:"dynamic_refs"`

	// Enums maps attribute name to its allowed values.
	Enums map[string][]string `json:"enums"`

	// Defaults maps attribute name to the value applied when unset.
	Defaults map[string]any `json:"defaults"`
}

// Config is the full loaded table set.
type Config struct {
	Content   map[string]*ContentSpec  `json:"content"`
	Relations map[string]*RelationSpec `json:"relations"`
}

// ContentSpec returns the spec for a content type.
func (c *Config) ContentSpec(typ string) (*ContentSpec, bool) {
	s, ok := c.Content[typ]
	return s, ok
}

// RelationSpec returns the spec for a relation type.
func (c *Config) RelationSpec(typ string) (*RelationSpec, bool) {
	s, ok := c.Relations[typ]
	return s, ok
}

// Load parses and validates the embedded CUE tables.
func Load() (*Config, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate schema: %w", err)
	}

	cfg := &Config{}
	if err := v.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := checkTables(cfg); err != nil {
		return nil, fmt.Errorf("check schema tables: %w", err)
	}
	return cfg, nil
}

var (
	defaultOnce sync.Once
	defaultCfg  *Config
	defaultErr  error
)

// Default returns the process-wide configuration, loading it on first use.
func Default() (*Config, error) {
	defaultOnce.Do(func() {
		defaultCfg, defaultErr = Load()
	})
	return defaultCfg, defaultErr
}

// MustDefault returns the process-wide configuration or panics.
// The embedded tables are part of the binary; failing to load them is a
// build defect, not a runtime condition.
func MustDefault() *Config {
	cfg, err := Default()
	if err != nil {
		panic(err)
	}
	return cfg
}

// checkTables verifies cross-references the CUE schema cannot express.
func checkTables(cfg *Config) error {
	prefixes := make(map[string]string)
	for typ, spec := range cfg.Content {
		if prev, dup := prefixes[spec.Prefix]; dup {
			return fmt.Errorf("content %s: prefix %q already used by %s", typ, spec.Prefix, prev)
		}
		prefixes[spec.Prefix] = typ

		for field, graph := range spec.Transitions {
			values, ok := spec.Enums[field]
			if !ok {
				return fmt.Errorf("content %s: transition field %q has no enum", typ, field)
			}
			allowed := toSet(values)
			for from, succs := range graph {
				if !allowed[from] {
					return fmt.Errorf("content %s: transition state %q not in enum %q", typ, from, field)
				}
				for _, to := range succs {
					if !allowed[to] {
						return fmt.Errorf("content %s: transition successor %q not in enum %q", typ, to, field)
					}
				}
			}
		}

		for field, value := range spec.Defaults {
			values, ok := spec.Enums[field]
			if !ok {
				continue
			}
			s, isString := value.(string)
			if !isString || !toSet(values)[s] {
				return fmt.Errorf("content %s: default %v not in enum %q", typ, value, field)
			}
		}
	}

	for typ, spec := range cfg.Relations {
		if len(spec.Keys) == 0 {
			return fmt.Errorf("relation %s: no key fields", typ)
		}
		for field, target := range spec.Refs {
			if _, ok := cfg.Content[target]; !ok {
				return fmt.Errorf("relation %s: ref %s points at unknown content type %q", typ, field, target)
			}
		}
		for field, typeField := range spec.DynamicRefs {
			values, ok := spec.Enums[typeField]
			if !ok {
				return fmt.Errorf("relation %s: dynamic ref %s names non-enum field %q", typ, field, typeField)
			}
			for _, target := range values {
				if _, ok := cfg.Content[target]; !ok {
					return fmt.Errorf("relation %s: dynamic ref %s allows unknown content type %q", typ, field, target)
				}
			}
		}
	}

	return nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
