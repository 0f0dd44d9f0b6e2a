package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrIdentityConflict matches *IdentityConflictError
	ErrIdentityConflict = errors.New("identity conflict")
	// ErrInsufficientIdentity matches *InsufficientIdentityError
	ErrInsufficientIdentity = errors.New("insufficient identity")
	// ErrInvalidFieldValue matches *InvalidFieldValueError
	ErrInvalidFieldValue = errors.New("invalid field value")
	// ErrEmptyOverride is returned by Override when no field is chosen
	ErrEmptyOverride = errors.New("override needs at least one field choice")
)

// IdentityConflictError is returned when the identity keys of one sighting
// belong to two or more distinct existing assets. Nothing is written.
type IdentityConflictError struct {
	// Keys maps each matching identity key to the assets owning it
	Keys     map[string][]uuid.UUID `json:"keys"`
	AssetIDs []uuid.UUID            `json:"asset_ids"`
}

func (e *IdentityConflictError) Error() string {
	parts := make([]string, 0, len(e.Keys))
	for _, k := range sortedKeys(e.Keys) {
		ids := make([]string, 0, len(e.Keys[k]))
		for _, id := range e.Keys[k] {
			ids = append(ids, id.String())
		}
		parts = append(parts, fmt.Sprintf("%s->%s", k, strings.Join(ids, "|")))
	}
	return fmt.Sprintf("identity conflict: keys resolve to %d different assets (%s)", len(e.AssetIDs), strings.Join(parts, ", "))
}

// Is makes errors.Is(err, ErrIdentityConflict) work
func (e *IdentityConflictError) Is(target error) bool { return target == ErrIdentityConflict }

// InsufficientIdentityError is returned when a record carries no usable
// identity key and no model or type hint, so no asset may be created.
type InsufficientIdentityError struct {
	// Blacklisted lists identity values that were present but rejected
	Blacklisted []string `json:"blacklisted,omitempty"`
}

func (e *InsufficientIdentityError) Error() string {
	if len(e.Blacklisted) > 0 {
		return fmt.Sprintf("insufficient identity: no usable identity key and no model/type hint (blacklisted: %s)", strings.Join(e.Blacklisted, ", "))
	}
	return "insufficient identity: no usable identity key and no model/type hint"
}

// Is makes errors.Is(err, ErrInsufficientIdentity) work
func (e *InsufficientIdentityError) Is(target error) bool { return target == ErrInsufficientIdentity }

// InvalidFieldValueError describes a reported value that failed validation.
// The field is dropped from the merge; the sighting continues.
type InvalidFieldValueError struct {
	Source    string      `json:"source"`
	Component string      `json:"component,omitempty"`
	Field     string      `json:"field"`
	Value     interface{} `json:"value"`
	Reason    string      `json:"reason"`
}

func (e *InvalidFieldValueError) Error() string {
	where := e.Field
	if e.Component != "" {
		where = e.Component + "." + e.Field
	}
	return fmt.Sprintf("invalid value %v for %s from %s: %s", e.Value, where, e.Source, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidFieldValue) work
func (e *InvalidFieldValueError) Is(target error) bool { return target == ErrInvalidFieldValue }
