package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrGenerationFailed = errors.New("generation failed")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrVersionConflict  = errors.New("version conflict")
	ErrValidation       = errors.New("validation failed")
)

// OpError attaches the entity and id an operation failed on.
// errors.Is matches against Kind.
type OpError struct {
	Kind   error
	Entity string
	ID     string
	Reason string
	Err    error
}

func (e *OpError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func NotFound(entity, id string) error {
	return &OpError{Kind: ErrNotFound, Entity: entity, ID: id}
}

func InvalidState(entity, id, reason string) error {
	return &OpError{Kind: ErrInvalidState, Entity: entity, ID: id, Reason: reason}
}

func Unauthorized(entity, id string) error {
	return &OpError{Kind: ErrUnauthorized, Entity: entity, ID: id, Reason: "owned by another user"}
}

func GenerationFailed(entity, id string, cause error) error {
	return &OpError{Kind: ErrGenerationFailed, Entity: entity, ID: id, Err: cause}
}

func VersionConflict(diagramID string, number int) error {
	return &OpError{Kind: ErrVersionConflict, Entity: "diagram", ID: diagramID, Reason: fmt.Sprintf("version %d already exists", number)}
}
