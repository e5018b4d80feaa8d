// ABOUTME: Field projection and page bounds shared by both store implementations
// ABOUTME: Project keeps only the requested fields of a Reaction

package store

import (
	"errors"
	"fmt"
)

// Page bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// ErrUnknownField is returned when a projection names a field Reaction does not have.
var ErrUnknownField = errors.New("unknown field")

// Field names accepted by Project. They match the JSON names of Reaction.
const (
	FieldID            = "id"
	FieldReactableType = "reactable_type"
	FieldReactableID   = "reactable_id"
	FieldUserID        = "user_id"
	FieldReaction      = "reaction"
	FieldMeta          = "meta"
	FieldCreatedAt     = "created_at"
	FieldUpdatedAt     = "updated_at"
)

var projectors = map[string]func(dst, src *Reaction){
	FieldID:            func(d, s *Reaction) { d.ID = s.ID },
	FieldReactableType: func(d, s *Reaction) { d.ReactableType = s.ReactableType },
	FieldReactableID:   func(d, s *Reaction) { d.ReactableID = s.ReactableID },
	FieldUserID:        func(d, s *Reaction) { d.UserID = s.UserID },
	FieldReaction:      func(d, s *Reaction) { d.Reaction = s.Reaction },
	FieldMeta:          func(d, s *Reaction) { d.Meta = s.Meta },
	FieldCreatedAt:     func(d, s *Reaction) { d.CreatedAt = s.CreatedAt },
	FieldUpdatedAt:     func(d, s *Reaction) { d.UpdatedAt = s.UpdatedAt },
}

// ValidateProjection checks that every name in fields is a Reaction field.
func ValidateProjection(fields []string) error {
	for _, f := range fields {
		if _, ok := projectors[f]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
	}
	return nil
}

// Project returns a copy of r holding only the named fields. An empty
// projection returns r unchanged.
func Project(r *Reaction, fields []string) (*Reaction, error) {
	if len(fields) == 0 {
		return r, nil
	}
	out := &Reaction{}
	for _, f := range fields {
		p, ok := projectors[f]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
		p(out, r)
	}
	return out, nil
}

// Normalize applies the default and maximum limit and clamps skip at zero.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	return p
}
