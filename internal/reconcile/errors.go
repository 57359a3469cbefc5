package reconcile

import "fmt"

// Kind classifies a SetupError.
type Kind int

const (
	// NoLayerCreation: the layer is missing and the destination cannot
	// create layers.
	NoLayerCreation Kind = iota + 1
	// LayerExists: the layer exists and neither append nor overwrite was
	// requested, or it could not be replaced.
	LayerExists
	MultiGeomUnsupported
	// FieldCreation: a column could not be created, or the driver reported
	// success without adding it.
	FieldCreation
	// FieldMissing: a selected column does not exist in the source.
	FieldMissing
	// RemapInvalid: an explicit field map has the wrong length or targets a
	// column that does not exist.
	RemapInvalid
)

func (k Kind) String() string {
	switch k {
	case NoLayerCreation:
		return "no layer creation"
	case LayerExists:
		return "layer exists"
	case MultiGeomUnsupported:
		return "multiple geometry fields unsupported"
	case FieldCreation:
		return "field creation"
	case FieldMissing:
		return "field missing"
	case RemapInvalid:
		return "invalid field map"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// SetupError reports why a layer pair could not be reconciled.
type SetupError struct {
	Kind  Kind
	Layer string
	Msg   string
	Err   error
}

func (e *SetupError) Error() string {
	s := fmt.Sprintf("layer %s: %s", e.Layer, e.Msg)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *SetupError) Unwrap() error { return e.Err }
