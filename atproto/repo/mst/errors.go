package mst

import (
	"errors"
	"fmt"
)

var (
	ErrKeyNotFound   = errors.New("MST does not contain key")
	ErrKeyExists     = errors.New("MST already contains key")
	ErrInvalidKey    = errors.New("not a valid MST key")
	ErrInvalidTree   = errors.New("invalid MST structure")
	ErrSerialization = errors.New("malformed MST node data")
)

// Returned when a key fails syntax validation. Matches [ErrInvalidKey] with errors.Is.
type KeyFormatError struct {
	Key string
}

func (e *KeyFormatError) Error() string {
	return fmt.Sprintf("not a valid MST key: %q", e.Key)
}

func (e *KeyFormatError) Is(target error) bool {
	return target == ErrInvalidKey
}

// Returned when node data decodes fine, but describes a tree which violates MST layout rules. Matches [ErrInvalidTree].
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string {
	return "invalid MST structure: " + e.Reason
}

func (e *StructuralError) Is(target error) bool {
	return target == ErrInvalidTree
}

func structuralErrorf(format string, args ...any) error {
	return &StructuralError{Reason: fmt.Sprintf(format, args...)}
}

// Wraps failures to parse node bytes as canonical NodeData CBOR. Matches [ErrSerialization].
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return "malformed MST node data: " + e.Err.Error()
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

func (e *SerializationError) Is(target error) bool {
	return target == ErrSerialization
}
