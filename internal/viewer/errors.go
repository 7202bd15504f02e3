package viewer

import (
	"errors"
	"fmt"
)

// ErrSuperseded is returned by a layout pass whose page generation changed
// while it was running. Its result was discarded.
var ErrSuperseded = errors.New("layout pass superseded")

// ErrInvalidColor rejects a link color the painter could not draw.
var ErrInvalidColor = errors.New("invalid color")

// ErrInvalidArgument rejects a call with a missing or malformed argument.
var ErrInvalidArgument = errors.New("invalid argument")

// NotFoundError reports an unknown span, entity, link, page or document.
// No state is modified when it is returned.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func notFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// RenderDependencyError wraps a raster page handle failure. Only the named
// page is affected.
type RenderDependencyError struct {
	Page int
	Err  error
}

func (e *RenderDependencyError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
}

func (e *RenderDependencyError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
