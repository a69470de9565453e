package loader

import (
	"errors"
	"fmt"

	"tariffmaster/internal/source"
)

var (
	// ErrUnresolvedParent matches every *ReferenceError.
	ErrUnresolvedParent = errors.New("unresolved parent reference")
	// ErrMissingSource is returned when a full rebuild lacks a required kind.
	ErrMissingSource = errors.New("missing source")
)

// ReferenceError reports a child record whose mandatory parent is absent.
type ReferenceError struct {
	Kind       source.Kind
	ID         string
	ParentKind source.Kind
	ParentID   int64
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %s references missing %s %d", e.Kind, e.ID, e.ParentKind, e.ParentID)
}

func (e *ReferenceError) Is(target error) bool {
	return target == ErrUnresolvedParent
}
