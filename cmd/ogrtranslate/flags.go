package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/beetlebugorg/ogrtranslate/pkg/ogrtranslate"
)

func addTranslateFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("format", "f", "", "output format name (default: from the destination extension)")
	f.String("src-format", "", "source format name (default: from the source extension)")
	f.Bool("update", false, "open the destination in update mode")
	f.Bool("append", false, "append to existing layers")
	f.Bool("overwrite", false, "replace existing layers")
	f.StringToString("dsco", nil, "dataset creation option NAME=VALUE")
	f.StringToString("lco", nil, "layer creation option NAME=VALUE")

	f.Bool("skipfailures", false, "skip records and layers that fail")
	f.String("gt", "", "records per transaction, or 'unlimited'")
	f.Bool("ds-transaction", false, "force a dataset transaction")

	f.StringArray("layer", nil, "source layer to translate (repeatable, default: all)")
	f.String("nln", "", "new layer name")
	f.String("where", "", "attribute filter")
	f.Int64("fid", -1, "translate only the record with this FID")
	f.Int64("limit", -1, "maximum number of records per layer")

	f.StringSlice("select", nil, "comma separated list of fields to copy")
	f.String("fieldmap", "", "'identity' or comma separated destination field indexes")
	f.StringSlice("fieldTypeToString", nil, "field types converted to String, or All")
	f.StringToString("mapFieldType", nil, "field type conversion SRC=DST")
	f.Bool("unsetFieldWidth", false, "unset field width and precision")
	f.Bool("forceNullable", false, "do not propagate not-null constraints")
	f.Bool("unsetDefault", false, "do not propagate default values")
	f.Bool("addfields", false, "add source fields missing from the destination layer")
	f.Bool("exactFieldNameMatch", false, "match appended field names case sensitively")
	f.Bool("emptyStrAsNull", false, "write empty strings as null")
	f.String("dateTimeTo", "", "convert DateTime values to UTC or UTC(+|-)hh:mm")

	f.String("geomfield", "", "geometry field the spatial filter applies to")
	f.StringSlice("select-geom", nil, "geometry fields to copy")
	f.String("nlt", "", "output geometry type and/or conversions such as PROMOTE_TO_MULTI")
	f.String("dim", "", "coordinate dimension: XY, XYZ, XYM, XYZM or layer_dim")
	f.Bool("explodecollections", false, "write each part of a collection as its own record")
	f.String("zfield", "", "field whose value becomes the Z coordinate")
	f.Float64("segmentize", 0, "maximum distance between vertices")
	f.Float64("simplify", 0, "simplification tolerance")

	f.String("s_srs", "", "source CRS override")
	f.String("t_srs", "", "reproject into this CRS")
	f.String("a_srs", "", "assign this CRS without reprojecting, or NULL")
	f.String("spat_srs", "", "CRS of the spatial filter")
	f.StringArray("gcp", nil, "ground control point 'pixel line x y [z]' (repeatable)")
	f.Int("order", 0, "GCP polynomial order (1 to 3)")
	f.Bool("tps", false, "thin plate spline GCP transformation")
	f.Bool("wrapdateline", false, "split geometries crossing the antimeridian")
	f.Float64("datelineoffset", 10, "dateline offset in degrees")

	f.Float64Slice("spat", nil, "spatial filter box xmin,ymin,xmax,ymax")
	f.String("spat-wkt", "", "spatial filter geometry as WKT")
	f.String("clipsrc", "", "source clip: xmin,ymin,xmax,ymax, WKT, a datasource or 'spat_extent'")
	f.String("clipsrclayer", "", "layer of the source clip datasource")
	f.String("clipsrcwhere", "", "filter of the source clip datasource")
	f.String("clipdst", "", "destination clip: xmin,ymin,xmax,ymax, WKT or a datasource")
	f.String("clipdstlayer", "", "layer of the destination clip datasource")
	f.String("clipdstwhere", "", "filter of the destination clip datasource")

	f.Bool("preserve_fid", false, "keep source FIDs")
	f.Bool("unsetFid", false, "do not carry the source FID column name")
	f.Bool("splitlistfields", false, "split list fields into scalar fields")
	f.Int("maxsubfields", -1, "maximum number of subfields per split list field")
	f.Bool("nomd", false, "do not copy metadata")
	f.StringToString("mo", nil, "metadata item NAME=VALUE")
	f.Bool("upsert", false, "replace records with the same FID")
}

// jobOptions reads the translation flags into their textual form.
func jobOptions(cmd *cobra.Command) (ogrtranslate.JobOptions, error) {
	a := newAction(cmd)
	var jo ogrtranslate.JobOptions

	modes := 0
	for _, m := range []string{"update", "append", "overwrite"} {
		if a.getBool(m) {
			jo.AccessMode = m
			modes++
		}
	}
	if modes > 1 {
		return jo, errors.New("--update, --append and --overwrite are exclusive")
	}
	jo.Format = a.getString("format")
	jo.DSCO = a.getStringMap("dsco")
	jo.LCO = a.getStringMap("lco")

	jo.SkipFailures = a.getBool("skipfailures")
	jo.GroupTransactions = a.getString("gt")
	jo.ForceTransaction = a.getBool("ds-transaction")

	jo.Layers = a.getStringArray("layer")
	jo.NewLayerName = a.getString("nln")
	jo.Where = a.getString("where")
	if a.changed("fid") {
		fid := a.getInt64("fid")
		jo.FID = &fid
	}
	if a.changed("limit") {
		limit := a.getInt64("limit")
		jo.Limit = &limit
	}

	jo.Select = a.getStringSlice("select")
	jo.FieldMap = a.getString("fieldmap")
	jo.FieldTypesToString = a.getStringSlice("fieldTypeToString")
	jo.MapFieldType = a.getStringMap("mapFieldType")
	jo.UnsetFieldWidth = a.getBool("unsetFieldWidth")
	jo.ForceNullable = a.getBool("forceNullable")
	jo.UnsetDefault = a.getBool("unsetDefault")
	jo.AddMissingFields = a.getBool("addfields")
	jo.ExactFieldNameMatch = a.getBool("exactFieldNameMatch")
	jo.EmptyStrAsNull = a.getBool("emptyStrAsNull")
	jo.DateTimeTZ = a.getString("dateTimeTo")

	jo.GeomField = a.getString("geomfield")
	jo.SelectGeomFields = a.getStringSlice("select-geom")
	jo.GeomType = a.getString("nlt")
	jo.Dim = a.getString("dim")
	jo.Explode = a.getBool("explodecollections")
	jo.ZField = a.getString("zfield")
	jo.Segmentize = a.getFloat64("segmentize")
	jo.Simplify = a.getFloat64("simplify")

	jo.SourceSRS = a.getString("s_srs")
	jo.TargetSRS = a.getString("t_srs")
	jo.AssignSRS = a.getString("a_srs")
	jo.SpatSRS = a.getString("spat_srs")
	for _, s := range a.getStringArray("gcp") {
		gcp, err := parseGCP(s)
		if err != nil {
			return jo, err
		}
		jo.GCPs = append(jo.GCPs, gcp)
	}
	jo.Order = a.getInt("order")
	jo.TPS = a.getBool("tps")
	jo.WrapDateline = a.getBool("wrapdateline")
	if a.changed("datelineoffset") {
		off := a.getFloat64("datelineoffset")
		jo.DatelineOffset = &off
	}

	jo.Spat = a.getFloat64Slice("spat")
	jo.SpatWKT = a.getString("spat-wkt")
	var err error
	if jo.ClipSrc, err = parseClip(a.getString("clipsrc"), a.getString("clipsrclayer"), a.getString("clipsrcwhere")); err != nil {
		return jo, errors.Wrap(err, "--clipsrc")
	}
	if jo.ClipDst, err = parseClip(a.getString("clipdst"), a.getString("clipdstlayer"), a.getString("clipdstwhere")); err != nil {
		return jo, errors.Wrap(err, "--clipdst")
	}

	jo.PreserveFID = a.getBool("preserve_fid")
	jo.UnsetFID = a.getBool("unsetFid")
	jo.SplitListFields = a.getBool("splitlistfields")
	if a.changed("maxsubfields") {
		n := a.getInt("maxsubfields")
		jo.MaxSubfields = &n
	}
	jo.NoMetadata = a.getBool("nomd")
	jo.Metadata = a.getStringMap("mo")
	jo.Upsert = a.getBool("upsert")
	jo.Debug = a.getBool("debug")
	return jo, nil
}
