package ogrtranslate

import (
	"context"
	"errors"

	// Drivers register themselves with the format registry.
	_ "github.com/beetlebugorg/ogrtranslate/internal/drivers/geojson"
	_ "github.com/beetlebugorg/ogrtranslate/internal/drivers/memory"
	_ "github.com/beetlebugorg/ogrtranslate/internal/drivers/sqldb"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/reconcile"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/translate"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

type (
	// Options configures a translation. See DefaultOptions.
	Options = translate.Options
	// Result summarizes a run, per layer and in total.
	Result     = translate.Result
	LayerStats = translate.LayerStats
	// ClipSpec names a clip area: a geometry, WKT, a dataset or the
	// spatial filter extent.
	ClipSpec     = translate.ClipSpec
	AccessMode   = translate.AccessMode
	CoordDim     = translate.CoordDim
	ProgressFunc = translate.ProgressFunc

	UsageError  = translate.UsageError
	SetupError  = translate.SetupError
	RecordError = translate.RecordError

	Dataset      = vector.Dataset
	Layer        = vector.Layer
	Feature      = vector.Feature
	Geometry     = geom.Geometry
	GeometryType = geom.Type
	CRS          = srs.CRS
	GCP          = srs.GCP
)

// Access modes.
const (
	Create    = translate.Create
	Update    = translate.Update
	Append    = translate.Append
	Overwrite = translate.Overwrite
)

// Coordinate dimensions for Options.CoordDim.
const (
	CoordDimUnchanged = reconcile.CoordDimUnchanged
	CoordDimXY        = reconcile.CoordDim2
	CoordDimXYZ       = reconcile.CoordDim3
	CoordDimXYM       = reconcile.CoordDimXYM
	CoordDimXYZM      = reconcile.CoordDimXYZM
	// CoordDimLayer matches each geometry to its destination column.
	CoordDimLayer = reconcile.CoordDimLayer
)

const (
	// Unlimited as Options.GroupTransactions uses a single transaction.
	Unlimited = translate.Unlimited
	// TPS as Options.GCPOrder fits a thin plate spline.
	TPS = srs.TPS
)

// ErrInterrupted is returned when the progress callback or the context
// stops a run. Committed groups stay in the destination.
var ErrInterrupted = translate.ErrInterrupted

// DefaultOptions returns options with the default transaction group size,
// no record limit and metadata copy enabled.
func DefaultOptions() Options {
	return translate.DefaultOptions()
}

// Translate copies src into an already open destination dataset. The
// destination is left open.
func Translate(ctx context.Context, dst Dataset, src Dataset, opts Options) (*Result, error) {
	_, res, err := translate.Translate(ctx, translate.Destination{Dataset: dst}, src, &opts)
	return res, err
}

// TranslatePath copies src into the dataset at dstPath, opened or created
// according to opts.AccessMode with the driver named by opts.Format or
// matching the path extension. On success the caller owns the returned
// dataset and must close it.
func TranslatePath(ctx context.Context, dstPath string, src Dataset, opts Options) (Dataset, *Result, error) {
	return translate.Translate(ctx, translate.Destination{Path: dstPath, Format: opts.Format}, src, &opts)
}

// OpenSource opens a dataset for reading, picking the driver from the path
// extension.
//
//	src, err := ogrtranslate.OpenSource("roads.geojson")
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
func OpenSource(path string) (Dataset, error) {
	return OpenSourceFormat(path, "")
}

// OpenSourceFormat opens a dataset for reading with the named driver.
func OpenSourceFormat(path, format string) (Dataset, error) {
	return vector.Open(path, format, false)
}

// Drivers lists the registered format names.
func Drivers() []string {
	return vector.Drivers()
}

// ParseCRS parses a CRS definition such as "EPSG:4326" or "CRS84".
func ParseCRS(def string) (*CRS, error) {
	return srs.Parse(def)
}

// ParseWKT parses a Well-Known Text geometry, e.g. for a spatial filter.
func ParseWKT(wkt string) (*Geometry, error) {
	return geom.ParseWKT(wkt)
}

// ParseGeometryType parses an OGC geometry type name such as
// "MultiPolygon Z", for Options.GeomType.
func ParseGeometryType(name string) (GeometryType, error) {
	return geom.ParseType(name)
}

// IsUsageError reports whether err comes from options that cannot work
// together. Such errors are returned before any I/O.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}
