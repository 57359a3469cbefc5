package reconcile

import (
	"fmt"
	"log"
	"strings"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// Dropped marks a source column that has no destination column.
const Dropped = -1

// AccessMode selects how an existing destination is treated.
type AccessMode int

const (
	// Create writes into a new destination.
	Create AccessMode = iota
	// Update opens an existing destination and adds new layers to it.
	Update
	// Append adds records to existing layers, creating missing ones.
	Append
	// Overwrite deletes and recreates existing layers.
	Overwrite
)

func (m AccessMode) String() string {
	switch m {
	case Create:
		return "create"
	case Update:
		return "update"
	case Append:
		return "append"
	case Overwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("AccessMode(%d)", int(m))
	}
}

// CoordDim forces the coordinate dimension of output geometries.
type CoordDim int

const (
	CoordDimUnchanged CoordDim = iota
	CoordDim2
	CoordDim3
	CoordDimXYM
	CoordDimXYZM
	// CoordDimLayer matches each geometry to its destination column.
	CoordDimLayer
)

// ParseCoordDim accepts 2, 3, XY, XYZ, XYM, XYZM and layer_dim.
func ParseCoordDim(s string) (CoordDim, error) {
	switch strings.ToUpper(s) {
	case "", "UNCHANGED":
		return CoordDimUnchanged, nil
	case "2", "XY":
		return CoordDim2, nil
	case "3", "XYZ":
		return CoordDim3, nil
	case "XYM":
		return CoordDimXYM, nil
	case "4", "XYZM":
		return CoordDimXYZM, nil
	case "LAYER_DIM":
		return CoordDimLayer, nil
	}
	return CoordDimUnchanged, fmt.Errorf("invalid coordinate dimension %q", s)
}

// Request carries the options that shape one destination layer.
type Request struct {
	// NewLayerName overrides the source layer name.
	NewLayerName string
	Mode         AccessMode
	// NewDataset is set when the destination was created by this run.
	NewDataset   bool
	SkipFailures bool

	LayerCreationOptions map[string]string

	// SelectFields lists source column and geometry column names to carry,
	// in output order. Nil selects everything.
	SelectFields []string
	// FieldMap is an explicit source to destination index map, honored
	// when appending. FieldMapIdentity is the shorthand for i -> i.
	FieldMap         []int
	FieldMapIdentity bool

	// FieldTypesToString holds type names, or "All", whose columns are
	// created as String.
	FieldTypesToString []string
	// MapFieldType maps a source type name, or "All", to a destination
	// type name.
	MapFieldType map[string]string

	UnsetFieldWidth     bool
	ForceNullable       bool
	UnsetDefault        bool
	AddMissingFields    bool
	ExactFieldNameMatch bool

	// ForceGeomType makes GeomType the declared type of created layers.
	ForceGeomType      bool
	GeomType           geom.Type
	GeomConversion     geom.Conversion
	ExplodeCollections bool
	ZField             string
	CoordDim           CoordDim

	OutputSRS        *srs.CRS
	NullifyOutputSRS bool

	PreserveFID  bool
	UnsetFID     bool
	CopyMetadata bool

	// Where is the source attribute filter. Its columns are never hidden
	// by the ignored-fields hint.
	Where string

	Logger *log.Logger
	Debug  bool
}

// GeomTarget is the per destination geometry column state. The transform
// fields are filled lazily by the translation pipeline.
type GeomTarget struct {
	// SrcIndex is the source geometry column feeding this column, or -1.
	SrcIndex int
	Type     geom.Type
	CRS      *srs.CRS

	Transform srs.Transformer
	// SrcCRS is the source CRS Transform was built for.
	SrcCRS   *srs.CRS
	Wrap     geom.WrapOptions
	Resolved bool
	// PerRecord is set when the source CRS is only known from geometry
	// values, so the transform is checked for every record.
	PerRecord bool
}

// TargetLayerInfo is everything the pipeline needs to move records from
// Src to Dst.
type TargetLayerInfo struct {
	Src     vector.Layer
	Dst     vector.WritableLayer
	Created bool

	// FieldMap holds, for each source column, its destination column or
	// Dropped.
	FieldMap []int
	Geoms    []GeomTarget

	// ZField is the source column supplying Z values, or -1.
	ZField int
	// SrcFIDField is the source column whose value becomes the FID, or -1.
	SrcFIDField int
	// RequestedSrcGeomField is the one source geometry column selected by
	// name, or -1.
	RequestedSrcGeomField int
	PreserveFID           bool

	// CanAvoidCopy is set when source and destination schemas line up
	// exactly and records can be moved whole.
	CanAvoidCopy bool
	// DateTimeFields lists destination DateTime columns.
	DateTimeFields []int

	SrcCaps     vector.LayerCapabilities
	DstCaps     vector.LayerCapabilities
	DatasetCaps vector.DatasetCapabilities

	// PerRecordCT is set once any geometry column needs per record
	// transform resolution.
	PerRecordCT  bool
	FeaturesRead int64
}
