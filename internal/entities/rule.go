package entities

import (
	"encoding/json"
	"fmt"
	"time"
)

// RuleSpecVersion is the current version of the persisted rule format
const RuleSpecVersion = 1

// RuleSpec is the portable serialized form of a rule predicate.
// Kind selects a predicate factory registered with the rule registry;
// Config is passed verbatim to the factory. Version guards against
// reading a payload written by a newer format.
type RuleSpec struct {
	Version int             `json:"version"`
	Kind    string          `json:"kind"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// Validate checks if the rule spec is valid
func (s *RuleSpec) Validate() error {
	if s.Version != RuleSpecVersion {
		return fmt.Errorf("unsupported rule spec version: %d", s.Version)
	}
	if s.Kind == "" {
		return fmt.Errorf("rule kind is required")
	}
	return nil
}

// Rule is a named, reusable predicate attached to auth items for
// conditional grants. The executable logic lives in the rule registry;
// the entity carries only the portable spec.
type Rule struct {
	Name      string    `json:"name"`
	Spec      RuleSpec  `json:"spec"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRule creates a transient rule with the current spec version
func NewRule(name string, kind string, config json.RawMessage) *Rule {
	return &Rule{
		Name: name,
		Spec: RuleSpec{
			Version: RuleSpecVersion,
			Kind:    kind,
			Config:  config,
		},
	}
}

// Validate checks if the rule is valid
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if err := r.Spec.Validate(); err != nil {
		return fmt.Errorf("invalid rule spec: %w", err)
	}
	return nil
}
