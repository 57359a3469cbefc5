package translate

import (
	"errors"
	"fmt"
)

// ErrInterrupted is returned when the progress callback or the context
// stops a run.
var ErrInterrupted = errors.New("translate: interrupted")

// UsageError reports options that cannot work together. It is returned
// before any I/O.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return "usage: " + e.Msg
}

func usagef(format string, args ...any) *UsageError {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// SetupKind classifies a SetupError.
type SetupKind int

const (
	// NoSourceCRS: reprojection was requested and no source CRS is known.
	NoSourceCRS SetupKind = iota + 1
	// TransformConstruction: no transformer exists for the CRS pair.
	TransformConstruction
	LayerNotFound
	AttributeFilter
	// ClipGeometry: a clip area could not be loaded or is not usable.
	ClipGeometry
	// DestinationOpen: the destination dataset could not be opened or created.
	DestinationOpen
	// ListSplit: list columns cannot be split for this source.
	ListSplit
)

func (k SetupKind) String() string {
	switch k {
	case NoSourceCRS:
		return "no source CRS"
	case TransformConstruction:
		return "transform construction"
	case LayerNotFound:
		return "layer not found"
	case AttributeFilter:
		return "attribute filter"
	case ClipGeometry:
		return "clip geometry"
	case DestinationOpen:
		return "destination"
	case ListSplit:
		return "list split"
	default:
		return fmt.Sprintf("SetupKind(%d)", int(k))
	}
}

// SetupError reports a problem found while preparing a layer or the run.
type SetupError struct {
	Kind  SetupKind
	Layer string
	Msg   string
	Err   error
}

func (e *SetupError) Error() string {
	s := e.Msg
	if e.Layer != "" {
		s = fmt.Sprintf("layer %s: %s", e.Layer, e.Msg)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *SetupError) Unwrap() error { return e.Err }

// RecordError reports a record that could not be translated. Op is "map",
// "reproject" or "write".
type RecordError struct {
	FID   int64
	Layer string
	Op    string
	Err   error
}

func (e *RecordError) Error() string {
	var what string
	switch e.Op {
	case "map":
		what = "unable to translate feature"
	case "reproject":
		what = "failed to reproject feature"
	default:
		what = "unable to write feature"
	}
	return fmt.Sprintf("%s %d from layer %s: %v", what, e.FID, e.Layer, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
