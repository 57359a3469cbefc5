package geom

import (
	"errors"
	"fmt"
)

// Common errors returned by this package.
var (
	ErrUnsupportedType = errors.New("geom: unsupported geometry type")
	ErrInvalidWKB      = errors.New("geom: invalid WKB")
)

// ErrInvalidGeometry indicates a geometry that violates structural rules
type ErrInvalidGeometry struct {
	Type   Type
	Reason string
}

func (e *ErrInvalidGeometry) Error() string {
	if e.Type != Unknown {
		return fmt.Sprintf("invalid geometry (%v): %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("invalid geometry: %s", e.Reason)
}

// ErrTransformFailed indicates the coordinate transformation rejected a geometry
type ErrTransformFailed struct {
	Points int
	Err    error
}

func (e *ErrTransformFailed) Error() string {
	return fmt.Sprintf("failed to transform %d points: %v", e.Points, e.Err)
}

func (e *ErrTransformFailed) Unwrap() error {
	return e.Err
}
