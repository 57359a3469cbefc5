package translate

import (
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/reconcile"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

// AccessMode selects how an existing destination is treated.
type AccessMode = reconcile.AccessMode

const (
	Create    = reconcile.Create
	Update    = reconcile.Update
	Append    = reconcile.Append
	Overwrite = reconcile.Overwrite
)

// CoordDim forces the coordinate dimension of output geometries.
type CoordDim = reconcile.CoordDim

// Unlimited as GroupTransactions keeps each layer, or the whole dataset, in
// one transaction.
const Unlimited = -1

// ProgressFunc receives the overall fraction done. Returning false stops
// the run with ErrInterrupted.
type ProgressFunc func(fraction float64, message string) bool

// ClipSpec names a clip area. Exactly one of Geometry, WKT, File or
// SpatExtent is used, in that order of precedence.
type ClipSpec struct {
	Geometry *geom.Geometry
	WKT      string

	// File is a dataset whose polygons are collected into the clip area.
	// Layer selects a layer by name, the first one by default. Where
	// filters its features.
	File  string
	Layer string
	Where string

	// SpatExtent clips to the spatial filter, in SpatSRS when set.
	SpatExtent bool
}

func (c *ClipSpec) empty() bool {
	return c.Geometry == nil && c.WKT == "" && c.File == "" && !c.SpatExtent
}

// Options configures a translation. A run never modifies the Options it
// is given.
type Options struct {
	// AccessMode is Create by default. With Update the destination must
	// exist; Append and Overwrite create it when it does not.
	AccessMode AccessMode
	// Format is the destination driver name. Empty selects the driver by
	// file extension.
	Format                 string
	DatasetCreationOptions map[string]string
	LayerCreationOptions   map[string]string

	// SkipFailures logs and skips records that fail to map, reproject or
	// write, and layers that fail to set up. It forces GroupTransactions
	// to 1 so a failed record only loses itself.
	SkipFailures bool
	// GroupTransactions is the number of records per transaction.
	// Unlimited uses one transaction; 0 disables transactions. Default is
	// 100000.
	GroupTransactions int
	// LayerTransaction selects per-layer transactions (true) or one
	// dataset transaction (false). Nil derives it: dataset transactions
	// when the destination supports them and the source is not read
	// interleaved, layer transactions otherwise.
	LayerTransaction *bool
	// ForceTransaction asks the destination to emulate dataset
	// transactions when it has no native support.
	ForceTransaction bool

	// Layers names the source layers to translate. Empty means all.
	Layers       []string
	NewLayerName string
	// Where is an attribute filter applied to every source layer.
	Where string
	// FIDToFetch translates the single record with this FID. NullFID
	// disables it.
	FIDToFetch int64
	// Limit caps the number of records read per layer. Negative values
	// disable it.
	Limit int64

	// SelectFields lists the source columns to carry, geometry columns
	// included, in output order.
	SelectFields []string
	// FieldMap is the source to destination column map used when
	// appending. FieldMapIdentity maps column i to column i.
	FieldMap            []int
	FieldMapIdentity    bool
	FieldTypesToString  []string
	MapFieldType        map[string]string
	UnsetFieldWidth     bool
	ForceNullable       bool
	UnsetDefault        bool
	AddMissingFields    bool
	ExactFieldNameMatch bool
	EmptyStrAsNull      bool
	// DateTimeTZ converts DateTime values with a known zone to a fixed
	// offset: "UTC", "UTC+hh:mm" or "UTC-hh:mm".
	DateTimeTZ string

	// GeomField selects the source geometry column the spatial filter
	// applies to.
	GeomField string
	// SelectGeomFields names source geometry columns to carry in addition
	// to those in SelectFields.
	SelectGeomFields []string
	// ForceGeomType makes GeomType the output geometry type.
	ForceGeomType      bool
	GeomType           geom.Type
	GeomConversion     geom.Conversion
	CoordDim           CoordDim
	ExplodeCollections bool
	// ZField names a source column whose value becomes the Z of every
	// vertex.
	ZField string
	// Segmentize and Simplify are mutually exclusive thresholds; zero
	// disables them.
	Segmentize float64
	Simplify   float64

	// SourceSRS overrides the CRS of the source layers.
	SourceSRS *srs.CRS
	// OutputSRS is the destination CRS. Geometries are reprojected into it
	// when Reproject is set and only tagged with it otherwise.
	OutputSRS        *srs.CRS
	Reproject        bool
	NullifyOutputSRS bool
	// SpatSRS is the CRS of SpatialFilter.
	SpatSRS *srs.CRS
	// GCPs georeference source coordinates before any reprojection.
	// GCPOrder is 1 to 3, or srs.TPS for a thin plate spline. Zero picks
	// order 1.
	GCPs           []srs.GCP
	GCPOrder       int
	WrapDateline   bool
	DatelineOffset float64

	SpatialFilter *geom.Geometry
	ClipSrc       *ClipSpec
	ClipDst       *ClipSpec

	PreserveFID bool
	UnsetFID    bool

	// SplitListFields exposes list columns as scalar columns, at most
	// MaxSplitListSubfields each. Non positive values mean no cap.
	SplitListFields       bool
	MaxSplitListSubfields int

	// CopyMetadata copies dataset and layer metadata. Metadata is set on
	// a newly created destination dataset.
	CopyMetadata bool
	Metadata     map[string]string

	// Upsert replaces records with the same FID instead of inserting.
	Upsert bool

	Progress ProgressFunc
	// ProgressSampleEvery is the record interval between byte offset
	// progress reports.
	ProgressSampleEvery int

	// ErrorLog receives warnings and errors. Nil discards them. Logger
	// takes precedence when set.
	ErrorLog io.Writer
	Logger   *log.Logger
	Debug    bool

	// Factory builds CRS transformers. Nil uses srs.DefaultFactory.
	Factory srs.Factory
}

// DefaultOptions returns default options.
func DefaultOptions() Options {
	return Options{
		AccessMode:            Create,
		GroupTransactions:     100000,
		FIDToFetch:            -1,
		Limit:                 -1,
		DatelineOffset:        geom.DefaultDatelineOffset,
		MaxSplitListSubfields: -1,
		CopyMetadata:          true,
		ProgressSampleEvery:   1000,
	}
}

// Validate reports combinations of options that cannot work together. It
// makes no I/O and every error it returns is a *UsageError.
func (o *Options) Validate() error {
	fieldMap := o.FieldMap != nil || o.FieldMapIdentity
	switch {
	case o.PreserveFID && o.ExplodeCollections:
		return usagef("cannot preserve FIDs and explode collections at the same time")
	case fieldMap && o.AccessMode != Append:
		return usagef("a field map requires append mode")
	case fieldMap && o.AddMissingFields:
		return usagef("a field map cannot be combined with adding missing fields")
	case o.FieldMap != nil && o.FieldMapIdentity:
		return usagef("an explicit field map and the identity field map are exclusive")
	case o.SelectFields != nil && o.AccessMode == Append && !o.AddMissingFields:
		return usagef("selected fields cannot be used when appending; use a field map instead")
	case o.FieldTypesToString != nil && o.MapFieldType != nil:
		return usagef("field types to string and field type mapping are exclusive")
	case o.SourceSRS != nil && o.OutputSRS == nil && o.SpatSRS == nil:
		return usagef("a source CRS requires an output CRS or a spatial filter CRS")
	case o.Reproject && o.OutputSRS == nil:
		return usagef("reprojection requires an output CRS")
	case o.Reproject && o.NullifyOutputSRS:
		return usagef("cannot reproject and nullify the output CRS")
	case o.Segmentize > 0 && o.Simplify > 0:
		return usagef("segmentize and simplify are exclusive")
	case o.Segmentize < 0 || o.Simplify < 0:
		return usagef("segmentize and simplify thresholds must be positive")
	case o.GroupTransactions < Unlimited:
		return usagef("invalid transaction group size %d", o.GroupTransactions)
	case o.ForceTransaction && o.LayerTransaction != nil && *o.LayerTransaction:
		return usagef("forced dataset transactions and layer transactions are exclusive")
	case o.SpatSRS != nil && o.SpatialFilter == nil:
		return usagef("a spatial filter CRS requires a spatial filter")
	case o.GCPOrder != 0 && o.GCPOrder != srs.TPS && (o.GCPOrder < 1 || o.GCPOrder > 3):
		return usagef("GCP polynomial order must be 1, 2 or 3, got %d", o.GCPOrder)
	case o.GCPOrder != 0 && len(o.GCPs) == 0:
		return usagef("a GCP order requires ground control points")
	case o.DatelineOffset < 0 || o.DatelineOffset >= 180:
		return usagef("dateline offset must be in [0, 180)")
	}

	if o.ClipSrc != nil && o.ClipSrc.empty() {
		return usagef("source clip needs a geometry, WKT, a dataset or the spatial extent")
	}
	if o.ClipSrc != nil && o.ClipSrc.SpatExtent && o.ClipSrc.Geometry == nil && o.ClipSrc.WKT == "" &&
		o.ClipSrc.File == "" && o.SpatialFilter == nil {
		return usagef("clipping to the spatial extent requires a spatial filter")
	}
	if o.ClipDst != nil && (o.ClipDst.empty() || o.ClipDst.Geometry == nil && o.ClipDst.WKT == "" && o.ClipDst.File == "") {
		return usagef("destination clip needs a geometry, WKT or a dataset")
	}
	if _, err := parseTZ(o.DateTimeTZ); err != nil {
		return &UsageError{Msg: err.Error()}
	}
	for _, t := range o.FieldTypesToString {
		if !strings.EqualFold(t, "All") && !isFieldTypeName(t) {
			return usagef("unknown field type %q", t)
		}
	}
	for src, dst := range o.MapFieldType {
		if !strings.EqualFold(src, "All") && !isFieldTypeName(src) {
			return usagef("unknown field type %q", src)
		}
		if !isFieldTypeName(dst) {
			return usagef("unknown field type %q", dst)
		}
	}
	return nil
}

// groupSize is GroupTransactions after the skip-failures override.
func (o *Options) groupSize() int {
	if o.SkipFailures {
		return 1
	}
	return o.GroupTransactions
}

// parseTZ returns the offset in seconds of a DateTimeTZ value, or nil
// when s is empty.
func parseTZ(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	u := strings.ToUpper(s)
	if u == "UTC" {
		off := 0
		return &off, nil
	}
	if len(u) != len("UTC+hh:mm") || !strings.HasPrefix(u, "UTC") || (u[3] != '+' && u[3] != '-') || u[6] != ':' {
		return nil, fmt.Errorf("invalid time zone %q, expected UTC, UTC+hh:mm or UTC-hh:mm", s)
	}
	hh, err1 := strconv.Atoi(u[4:6])
	mm, err2 := strconv.Atoi(u[7:9])
	if err1 != nil || err2 != nil || hh > 14 || mm > 59 || mm%15 != 0 {
		return nil, fmt.Errorf("invalid time zone %q", s)
	}
	off := hh*3600 + mm*60
	if u[3] == '-' {
		off = -off
	}
	return &off, nil
}

func isFieldTypeName(s string) bool {
	_, err := vector.ParseFieldType(s)
	return err == nil
}
