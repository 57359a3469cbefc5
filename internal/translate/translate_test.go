package translate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/ogrtranslate/internal/drivers/memory"
	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

func pointSchema(crs *srs.CRS) *vector.Schema {
	return &vector.Schema{
		Fields: []vector.FieldDefn{
			vector.NewFieldDefn("id", vector.Integer),
			vector.NewFieldDefn("name", vector.String),
		},
		GeomFields: []vector.GeomFieldDefn{{Name: "geom", Type: geom.Point, Nullable: true, CRS: crs}},
	}
}

// pointSource returns a dataset with one layer "points" holding n records
// with id i, name "p<i>" and point (i, i).
func pointSource(t *testing.T, n int) (*memory.Dataset, *memory.Layer) {
	t.Helper()
	ds := memory.New("src", memory.DefaultOptions())
	l := ds.AddLayer("points", pointSchema(srs.WGS84()))
	for i := 0; i < n; i++ {
		f := vector.NewFeature(l.Schema())
		f.Set(0, vector.IntValue(int64(i)))
		f.Set(1, vector.StringValue(fmt.Sprintf("p%d", i)))
		f.SetGeometry(0, geom.NewPoint(float64(i), float64(i)))
		require.NoError(t, l.CreateFeature(f))
	}
	return ds, l
}

func run(t *testing.T, dst vector.Dataset, src vector.Dataset, o Options) (*Result, error) {
	t.Helper()
	_, res, err := Translate(context.Background(), Destination{Dataset: dst}, src, &o)
	return res, err
}

func mustRun(t *testing.T, dst vector.Dataset, src vector.Dataset, o Options) *Result {
	t.Helper()
	res, err := run(t, dst, src, o)
	require.NoError(t, err)
	return res
}

func layerOf(t *testing.T, ds vector.Dataset, name string) *memory.Layer {
	t.Helper()
	l := ds.LayerByName(name)
	require.NotNil(t, l, "layer %s missing", name)
	return l.(*memory.Layer)
}

func TestRecordCountPreserved(t *testing.T) {
	src, _ := pointSource(t, 25)
	dst := memory.New("dst", memory.DefaultOptions())

	res := mustRun(t, dst, src, DefaultOptions())
	assert.EqualValues(t, 25, res.Read)
	assert.EqualValues(t, 25, res.Written)
	require.Len(t, res.Layers, 1)
	assert.Equal(t, "points", res.Layers[0].Destination)
	assert.NotEmpty(t, res.RunID)

	feats := layerOf(t, dst, "points").Features()
	require.Len(t, feats, 25)
	for i, f := range feats {
		assert.EqualValues(t, i, f.Field(0).Int(), spew.Sdump(f))
		assert.Equal(t, fmt.Sprintf("p%d", i), f.Field(1).String())
		require.NotNil(t, f.Geometry(0))
		assert.Equal(t, float64(i), f.Geometry(0).Coords[0].X)
	}
}

func TestAppendIdentityMatchesCreate(t *testing.T) {
	src, _ := pointSource(t, 5)
	created := memory.New("created", memory.DefaultOptions())
	mustRun(t, created, src, DefaultOptions())

	appended := memory.New("appended", memory.DefaultOptions())
	appended.AddLayer("points", pointSchema(srs.WGS84()))
	o := DefaultOptions()
	o.AccessMode = Append
	o.FieldMapIdentity = true
	mustRun(t, appended, src, o)

	want := layerOf(t, created, "points").Features()
	got := layerOf(t, appended, "points").Features()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Field(0).Int(), got[i].Field(0).Int(), spew.Sdump(want[i], got[i]))
		assert.Equal(t, want[i].Field(1).String(), got[i].Field(1).String())
		assert.Equal(t, want[i].Geometry(0).Coords, got[i].Geometry(0).Coords)
	}
}

func TestAppendWithRemap(t *testing.T) {
	src, _ := pointSource(t, 3)
	dst := memory.New("dst", memory.DefaultOptions())
	dst.AddLayer("points", &vector.Schema{
		Fields: []vector.FieldDefn{
			vector.NewFieldDefn("label", vector.String),
			vector.NewFieldDefn("key", vector.Integer),
		},
		GeomFields: []vector.GeomFieldDefn{{Name: "geom", Type: geom.Point, Nullable: true}},
	})

	o := DefaultOptions()
	o.AccessMode = Append
	o.FieldMap = []int{1, 0}
	mustRun(t, dst, src, o)

	feats := layerOf(t, dst, "points").Features()
	require.Len(t, feats, 3)
	for i, f := range feats {
		assert.Equal(t, fmt.Sprintf("p%d", i), f.Field(0).String(), spew.Sdump(f))
		assert.EqualValues(t, i, f.Field(1).Int())
	}
}

func TestReprojectToWebMercator(t *testing.T) {
	src := memory.New("src", memory.DefaultOptions())
	l := src.AddLayer("points", pointSchema(srs.WGS84()))
	f := vector.NewFeature(l.Schema())
	f.Set(0, vector.IntValue(1))
	f.SetGeometry(0, geom.NewPoint(10, 0))
	require.NoError(t, l.CreateFeature(f))

	dst := memory.New("dst", memory.DefaultOptions())
	o := DefaultOptions()
	o.OutputSRS = srs.WebMercator()
	o.Reproject = true
	mustRun(t, dst, src, o)

	out := layerOf(t, dst, "points")
	assert.True(t, out.Schema().GeomFields[0].CRS.IsSame(srs.WebMercator()))
	feats := out.Features()
	require.Len(t, feats, 1)
	g := feats[0].Geometry(0)
	assert.InDelta(t, 1113194.9079, g.Coords[0].X, 1e-3)
	assert.InDelta(t, 0, g.Coords[0].Y, 1e-6)
	assert.True(t, g.CRS.IsSame(srs.WebMercator()))
}

func TestReprojectionRoundTrip(t *testing.T) {
	src, _ := pointSource(t, 10)
	mid := memory.New("mid", memory.DefaultOptions())
	o := DefaultOptions()
	o.OutputSRS = srs.WebMercator()
	o.Reproject = true
	mustRun(t, mid, src, o)

	back := memory.New("back", memory.DefaultOptions())
	o.OutputSRS = srs.WGS84()
	mustRun(t, back, mid, o)

	feats := layerOf(t, back, "points").Features()
	require.Len(t, feats, 10)
	for i, f := range feats {
		c := f.Geometry(0).Coords[0]
		assert.InDelta(t, float64(i), c.X, 1e-7)
		assert.InDelta(t, float64(i), c.Y, 1e-7)
	}
}

func TestReprojectWithoutSourceCRS(t *testing.T) {
	src := memory.New("src", memory.DefaultOptions())
	l := src.AddLayer("points", pointSchema(nil))
	f := vector.NewFeature(l.Schema())
	f.SetGeometry(0, geom.NewPoint(1, 1))
	require.NoError(t, l.CreateFeature(f))

	o := DefaultOptions()
	o.OutputSRS = srs.WebMercator()
	o.Reproject = true
	_, err := run(t, memory.New("dst", memory.DefaultOptions()), src, o)
	var se *SetupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, NoSourceCRS, se.Kind)
}

func polygonSource(t *testing.T, polys ...*geom.Geometry) *memory.Dataset {
	t.Helper()
	ds := memory.New("src", memory.DefaultOptions())
	l := ds.AddLayer("areas", &vector.Schema{
		Fields:     []vector.FieldDefn{vector.NewFieldDefn("id", vector.Integer)},
		GeomFields: []vector.GeomFieldDefn{{Name: "geom", Type: geom.Polygon, Nullable: true}},
	})
	for i, p := range polys {
		f := vector.NewFeature(l.Schema())
		f.Set(0, vector.IntValue(int64(i)))
		f.SetGeometry(0, p)
		require.NoError(t, l.CreateFeature(f))
	}
	return ds
}

func box(minX, minY, maxX, maxY float64) *geom.Geometry {
	return geom.NewPolygon([]geom.Coord{{X: minX, Y: minY}, {X: maxX, Y: minY}, {X: maxX, Y: maxY}, {X: minX, Y: maxY}, {X: minX, Y: minY}})
}

func TestClipIsIdempotent(t *testing.T) {
	src := polygonSource(t, box(0, 0, 10, 10), box(20, 20, 30, 30))
	o := DefaultOptions()
	o.ClipSrc = &ClipSpec{WKT: "POLYGON ((5 5, 15 5, 15 15, 5 15, 5 5))"}

	once := memory.New("once", memory.DefaultOptions())
	res := mustRun(t, once, src, o)
	assert.EqualValues(t, 1, res.Dropped)
	assert.EqualValues(t, 1, res.Written)

	twice := memory.New("twice", memory.DefaultOptions())
	mustRun(t, twice, once, o)

	a := layerOf(t, once, "areas").Features()
	b := layerOf(t, twice, "areas").Features()
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, geom.Envelope{MinX: 5, MinY: 5, MaxX: 10, MaxY: 10}, a[0].Geometry(0).Envelope())
	assert.Equal(t, a[0].Geometry(0).Envelope(), b[0].Geometry(0).Envelope(), spew.Sdump(a[0].Geometry(0), b[0].Geometry(0)))
	assert.Equal(t, a[0].Geometry(0).Flat(), b[0].Geometry(0).Flat())
}

func TestClipDestination(t *testing.T) {
	src, _ := pointSource(t, 10)
	o := DefaultOptions()
	o.ClipDst = &ClipSpec{Geometry: box(2.5, 2.5, 6.5, 6.5)}
	dst := memory.New("dst", memory.DefaultOptions())
	res := mustRun(t, dst, src, o)
	assert.EqualValues(t, 4, res.Written)
	assert.EqualValues(t, 6, res.Dropped)
}

func TestClipNonConvexArea(t *testing.T) {
	src, _ := pointSource(t, 5)
	o := DefaultOptions()
	o.ClipSrc = &ClipSpec{WKT: "POLYGON ((0 0, 4 0, 4 2, 2 2, 2 4, 0 4, 0 0))"}
	dst := memory.New("dst", memory.DefaultOptions())
	res := mustRun(t, dst, src, o)

	// (0 0), (1 1) and (2 2) are inside the L, (3 3) is in its notch
	assert.EqualValues(t, 3, res.Written)
	assert.EqualValues(t, 2, res.Dropped)
	for _, f := range layerOf(t, dst, "points").Features() {
		assert.Equal(t, geom.Point, f.Geometry(0).Type, spew.Sdump(f))
	}
}

func TestClipOverlappingMembers(t *testing.T) {
	src, _ := pointSource(t, 5)
	o := DefaultOptions()
	o.ClipSrc = &ClipSpec{Geometry: geom.NewCollection(geom.MultiPolygon, box(0, 0, 2.5, 2.5), box(0.5, 0.5, 3, 3))}
	dst := memory.New("dst", memory.DefaultOptions())
	res := mustRun(t, dst, src, o)

	assert.EqualValues(t, 4, res.Written)
	feats := layerOf(t, dst, "points").Features()
	require.Len(t, feats, 4)
	for i, f := range feats {
		g := f.Geometry(0)
		require.Equal(t, geom.Point, g.Type, spew.Sdump(f))
		assert.Equal(t, float64(i), g.Coords[0].X)
	}
}

func TestClipSplitsConcavePolygon(t *testing.T) {
	u := geom.NewPolygon([]geom.Coord{
		{X: 0, Y: 0}, {X: 3, Y: 0}, {X: 3, Y: 3}, {X: 2, Y: 3}, {X: 2, Y: 1},
		{X: 1, Y: 1}, {X: 1, Y: 3}, {X: 0, Y: 3}, {X: 0, Y: 0},
	})
	src := polygonSource(t, u)
	o := DefaultOptions()
	o.ClipSrc = &ClipSpec{Geometry: box(-1, 2, 4, 4)}
	o.GeomConversion = geom.PromoteToMulti
	dst := memory.New("dst", memory.DefaultOptions())
	mustRun(t, dst, src, o)

	feats := layerOf(t, dst, "areas").Features()
	require.Len(t, feats, 1)
	g := feats[0].Geometry(0)
	require.Equal(t, geom.MultiPolygon, g.Type, spew.Sdump(g))
	assert.Len(t, g.Parts, 2)
	assert.True(t, geom.IsValidArea(g))
}

func TestSimplifyKeepsPolygonsValid(t *testing.T) {
	shell := []geom.Coord{
		{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 6, Y: 10},
		{X: 5, Y: 10.9}, {X: 4, Y: 10}, {X: 0, Y: 10}, {X: 0, Y: 0},
	}
	hole := []geom.Coord{
		{X: 4.8, Y: 10.2}, {X: 5.2, Y: 10.2}, {X: 5.2, Y: 10.5}, {X: 4.8, Y: 10.5}, {X: 4.8, Y: 10.2},
	}
	src := polygonSource(t, geom.NewPolygon(shell, hole), box(0, 0, 1, 1))
	o := DefaultOptions()
	o.Simplify = 1
	dst := memory.New("dst", memory.DefaultOptions())
	res := mustRun(t, dst, src, o)
	assert.EqualValues(t, 2, res.Written)

	for _, f := range layerOf(t, dst, "areas").Features() {
		assert.True(t, geom.IsValidArea(f.Geometry(0)), spew.Sdump(f))
	}
}

func TestExplodeCollections(t *testing.T) {
	src := memory.New("src", memory.DefaultOptions())
	l := src.AddLayer("multi", &vector.Schema{
		Fields:     []vector.FieldDefn{vector.NewFieldDefn("id", vector.Integer)},
		GeomFields: []vector.GeomFieldDefn{{Name: "geom", Type: geom.MultiPoint, Nullable: true}},
	})
	single := geom.NewCollection(geom.MultiPoint, geom.NewPoint(1, 1))
	triple := geom.NewCollection(geom.MultiPoint, geom.NewPoint(2, 2), geom.NewPoint(3, 3), geom.NewPoint(4, 4))
	for i, g := range []*geom.Geometry{single, triple} {
		f := vector.NewFeature(l.Schema())
		f.Set(0, vector.IntValue(int64(i)))
		f.SetGeometry(0, g)
		require.NoError(t, l.CreateFeature(f))
	}

	dst := memory.New("dst", memory.DefaultOptions())
	o := DefaultOptions()
	o.ExplodeCollections = true
	res := mustRun(t, dst, src, o)
	assert.EqualValues(t, 2, res.Read)
	assert.EqualValues(t, 4, res.Written)

	out := layerOf(t, dst, "multi")
	assert.Equal(t, geom.Point, out.Schema().GeomFields[0].Type.Flat())
	feats := out.Features()
	require.Len(t, feats, 4, spew.Sdump(feats))
	assert.Equal(t, geom.Point, feats[0].Geometry(0).Flat())
	assert.Equal(t, []geom.Coord{{X: 1, Y: 1}}, feats[0].Geometry(0).Coords)
	for i, want := range []int64{0, 1, 1, 1} {
		assert.Equal(t, want, feats[i].Field(0).Int())
	}
}

func TestSplitListWithCapOne(t *testing.T) {
	src := memory.New("src", memory.DefaultOptions())
	l := src.AddLayer("soundings", &vector.Schema{
		Fields: []vector.FieldDefn{vector.NewFieldDefn("depths", vector.IntegerList)},
	})
	f := vector.NewFeature(l.Schema())
	f.Set(0, vector.IntListValue([]int64{3, 4, 5}))
	require.NoError(t, l.CreateFeature(f))

	dst := memory.New("dst", memory.DefaultOptions())
	o := DefaultOptions()
	o.SplitListFields = true
	o.MaxSplitListSubfields = 1
	mustRun(t, dst, src, o)

	out := layerOf(t, dst, "soundings")
	require.Len(t, out.Schema().Fields, 1)
	assert.Equal(t, "depths", out.Schema().Fields[0].Name)
	assert.False(t, out.Schema().Fields[0].Type.IsList())
	feats := out.Features()
	require.Len(t, feats, 1)
	assert.EqualValues(t, 3, feats[0].Field(0).Int())
}

// failingDestination returns a destination whose "points" layer rejects
// the record with id 4.
func failingDestination() *memory.Dataset {
	dst := memory.New("dst", memory.DefaultOptions())
	l := dst.AddLayer("points", pointSchema(srs.WGS84()))
	l.WriteHook = func(f *vector.Feature) error {
		if f.Field(0).Int() == 4 {
			return errors.New("rejected")
		}
		return nil
	}
	return dst
}

func TestSkipFailures(t *testing.T) {
	src, _ := pointSource(t, 10)
	dst := failingDestination()

	var buf bytes.Buffer
	o := DefaultOptions()
	o.AccessMode = Append
	o.SkipFailures = true
	o.Logger = log.New(&buf, "", 0)
	res := mustRun(t, dst, src, o)

	assert.EqualValues(t, 10, res.Read)
	assert.EqualValues(t, 9, res.Written)
	assert.EqualValues(t, 1, res.Skipped)
	assert.Len(t, layerOf(t, dst, "points").Features(), 9)
	assert.Contains(t, buf.String(), "unable to write feature")
}

func TestWriteFailureRollsBackDataset(t *testing.T) {
	src, _ := pointSource(t, 10)
	dst := failingDestination()

	o := DefaultOptions()
	o.AccessMode = Append
	_, err := run(t, dst, src, o)

	var re *RecordError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "write", re.Op)
	assert.Empty(t, layerOf(t, dst, "points").Features())
}

func TestLayerTransactionGroups(t *testing.T) {
	src, _ := pointSource(t, 10)
	dst := failingDestination()

	yes := true
	o := DefaultOptions()
	o.AccessMode = Append
	o.LayerTransaction = &yes
	o.GroupTransactions = 3
	_, err := run(t, dst, src, o)
	require.Error(t, err)

	// the first group was committed before the failing one started
	feats := layerOf(t, dst, "points").Features()
	require.Len(t, feats, 2, spew.Sdump(feats))
	assert.EqualValues(t, 0, feats[0].Field(0).Int())
	assert.EqualValues(t, 1, feats[1].Field(0).Int())
}

func TestLimitAndFIDToFetch(t *testing.T) {
	src, _ := pointSource(t, 10)

	dst := memory.New("dst", memory.DefaultOptions())
	o := DefaultOptions()
	o.Limit = 3
	res := mustRun(t, dst, src, o)
	assert.EqualValues(t, 3, res.Written)

	dst = memory.New("dst", memory.DefaultOptions())
	o = DefaultOptions()
	o.FIDToFetch = 4
	res = mustRun(t, dst, src, o)
	assert.EqualValues(t, 1, res.Written)
	feats := layerOf(t, dst, "points").Features()
	require.Len(t, feats, 1)
	assert.EqualValues(t, 3, feats[0].Field(0).Int())

	dst = memory.New("dst", memory.DefaultOptions())
	o.FIDToFetch = 99
	res = mustRun(t, dst, src, o)
	assert.EqualValues(t, 0, res.Written)
}

func TestWhereFilter(t *testing.T) {
	src, _ := pointSource(t, 10)
	dst := memory.New("dst", memory.DefaultOptions())
	o := DefaultOptions()
	o.Where = "id >= 5"
	res := mustRun(t, dst, src, o)
	assert.EqualValues(t, 5, res.Written)

	o.Where = "nope = 1"
	_, err := run(t, memory.New("dst", memory.DefaultOptions()), src, o)
	var se *SetupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, AttributeFilter, se.Kind)
}

func TestSpatialFilterIsReprojected(t *testing.T) {
	src, _ := pointSource(t, 10)
	dst := memory.New("dst", memory.DefaultOptions())
	o := DefaultOptions()
	o.SpatialFilter = box(-1e5, -1e5, 5e5, 5e5)
	o.SpatSRS = srs.WebMercator()
	res := mustRun(t, dst, src, o)
	assert.EqualValues(t, 5, res.Written)
}

func TestUpsertReplaces(t *testing.T) {
	src, _ := pointSource(t, 3)
	dst := memory.New("dst", memory.DefaultOptions())
	mustRun(t, dst, src, DefaultOptions())

	l := src.LayerByName("points").(*memory.Layer)
	f, err := l.GetFeature(2)
	require.NoError(t, err)
	f.Set(1, vector.StringValue("renamed"))
	require.NoError(t, l.UpsertFeature(f))

	o := DefaultOptions()
	o.AccessMode = Append
	o.PreserveFID = true
	o.Upsert = true
	mustRun(t, dst, src, o)

	feats := layerOf(t, dst, "points").Features()
	require.Len(t, feats, 3)
	assert.Equal(t, "renamed", feats[1].Field(1).String())
}

func TestFIDNotPreservedWarning(t *testing.T) {
	src, _ := pointSource(t, 2)
	dst := memory.New("dst", memory.DefaultOptions())
	mustRun(t, dst, src, DefaultOptions())

	var buf bytes.Buffer
	o := DefaultOptions()
	o.AccessMode = Append
	o.PreserveFID = true
	o.Logger = log.New(&buf, "", 0)
	mustRun(t, dst, src, o)

	assert.Len(t, layerOf(t, dst, "points").Features(), 4)
	assert.Contains(t, buf.String(), "Feature id 1 not preserved")
	assert.Contains(t, buf.String(), "Feature id 2 not preserved")
}

func TestEmptyStringAsNull(t *testing.T) {
	src := memory.New("src", memory.DefaultOptions())
	l := src.AddLayer("points", pointSchema(nil))
	f := vector.NewFeature(l.Schema())
	f.Set(0, vector.IntValue(1))
	f.Set(1, vector.StringValue(""))
	require.NoError(t, l.CreateFeature(f))

	dst := memory.New("dst", memory.DefaultOptions())
	o := DefaultOptions()
	o.EmptyStrAsNull = true
	mustRun(t, dst, src, o)

	feats := layerOf(t, dst, "points").Features()
	require.Len(t, feats, 1)
	assert.True(t, feats[0].Field(1).IsNull())
}

func TestDateTimeTZ(t *testing.T) {
	src := memory.New("src", memory.DefaultOptions())
	l := src.AddLayer("events", &vector.Schema{
		Fields: []vector.FieldDefn{vector.NewFieldDefn("at", vector.DateTime)},
	})
	zoned := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("", 2*3600))
	wall := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, v := range []vector.Value{
		vector.TimeValue(vector.DateTime, zoned, vector.TZFixed),
		vector.TimeValue(vector.DateTime, wall, vector.TZUnknown),
	} {
		f := vector.NewFeature(l.Schema())
		f.Set(0, v)
		require.NoError(t, l.CreateFeature(f))
	}

	dst := memory.New("dst", memory.DefaultOptions())
	o := DefaultOptions()
	o.DateTimeTZ = "UTC"
	mustRun(t, dst, src, o)

	feats := layerOf(t, dst, "events").Features()
	require.Len(t, feats, 2)
	got, flag := feats[0].Field(0).Time()
	assert.Equal(t, vector.TZFixed, flag)
	assert.Equal(t, 10, got.Hour())
	_, offset := got.Zone()
	assert.Equal(t, 0, offset)

	got, flag = feats[1].Field(0).Time()
	assert.Equal(t, vector.TZUnknown, flag)
	assert.Equal(t, 12, got.Hour())
}

func TestInterleavedSource(t *testing.T) {
	src := memory.NewInterleaved("src", memory.DefaultOptions())
	a := src.AddLayer("a", pointSchema(nil))
	b := src.AddLayer("b", pointSchema(nil))
	for i, l := range []*memory.Layer{a, b, a, b, b} {
		f := vector.NewFeature(l.Schema())
		f.Set(0, vector.IntValue(int64(i)))
		f.SetGeometry(0, geom.NewPoint(float64(i), 0))
		require.NoError(t, l.CreateFeature(f))
	}

	dst := memory.New("dst", memory.DefaultOptions())
	res := mustRun(t, dst, src, DefaultOptions())
	assert.EqualValues(t, 5, res.Written)
	assert.Len(t, layerOf(t, dst, "a").Features(), 2)
	assert.Len(t, layerOf(t, dst, "b").Features(), 3)

	o := DefaultOptions()
	o.SplitListFields = true
	_, err := run(t, memory.New("dst", memory.DefaultOptions()), src, o)
	var se *SetupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ListSplit, se.Kind)
}

func TestInterruptRollsBack(t *testing.T) {
	src, _ := pointSource(t, 10)
	dst := memory.New("dst", memory.DefaultOptions())
	o := DefaultOptions()
	calls := 0
	o.Progress = func(float64, string) bool {
		calls++
		return calls < 3
	}
	_, err := run(t, dst, src, o)
	require.ErrorIs(t, err, ErrInterrupted)
	assert.Empty(t, layerOf(t, dst, "points").Features())
}

func TestProgressReachesOne(t *testing.T) {
	src, _ := pointSource(t, 10)
	var r recorder
	o := DefaultOptions()
	o.Progress = r.fn
	mustRun(t, memory.New("dst", memory.DefaultOptions()), src, o)
	require.NotEmpty(t, r.values)
	assertMonotonic(t, r.values)
	assert.Equal(t, 1.0, r.values[len(r.values)-1])
}

func TestUsageErrorBeforeIO(t *testing.T) {
	src, _ := pointSource(t, 1)
	dst := memory.New("dst", memory.DefaultOptions())
	o := DefaultOptions()
	o.Segmentize = 1
	o.Simplify = 1
	_, err := run(t, dst, src, o)
	var ue *UsageError
	require.ErrorAs(t, err, &ue)
	assert.Zero(t, dst.LayerCount())
}

func TestMissingLayer(t *testing.T) {
	src, _ := pointSource(t, 1)
	o := DefaultOptions()
	o.Layers = []string{"nope"}
	_, err := run(t, memory.New("dst", memory.DefaultOptions()), src, o)
	var se *SetupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, LayerNotFound, se.Kind)

	o.Layers = []string{"nope", "points"}
	o.SkipFailures = true
	res := mustRun(t, memory.New("dst", memory.DefaultOptions()), src, o)
	assert.EqualValues(t, 1, res.Written)
}

func TestZFieldAndSegmentize(t *testing.T) {
	src := memory.New("src", memory.DefaultOptions())
	l := src.AddLayer("lines", &vector.Schema{
		Fields:     []vector.FieldDefn{vector.NewFieldDefn("elev", vector.Real)},
		GeomFields: []vector.GeomFieldDefn{{Name: "geom", Type: geom.LineString, Nullable: true}},
	})
	f := vector.NewFeature(l.Schema())
	f.Set(0, vector.RealValue(42))
	f.SetGeometry(0, geom.NewLineString(geom.Coord{X: 0, Y: 0}, geom.Coord{X: 10, Y: 0}))
	require.NoError(t, l.CreateFeature(f))

	dst := memory.New("dst", memory.DefaultOptions())
	o := DefaultOptions()
	o.ZField = "elev"
	o.Segmentize = 1
	mustRun(t, dst, src, o)

	feats := layerOf(t, dst, "lines").Features()
	require.Len(t, feats, 1)
	g := feats[0].Geometry(0)
	assert.True(t, g.HasZ())
	assert.GreaterOrEqual(t, len(g.Coords), 11)
	for _, c := range g.Coords {
		assert.Equal(t, 42.0, c.Z)
	}
}

func TestGCPGeoreferencing(t *testing.T) {
	src := memory.New("src", memory.DefaultOptions())
	l := src.AddLayer("pixels", pointSchema(nil))
	f := vector.NewFeature(l.Schema())
	f.SetGeometry(0, geom.NewPoint(1, 1))
	require.NoError(t, l.CreateFeature(f))

	dst := memory.New("dst", memory.DefaultOptions())
	o := DefaultOptions()
	o.GCPs = []srs.GCP{
		{Pixel: 0, Line: 0, X: 10, Y: 10},
		{Pixel: 1, Line: 0, X: 12, Y: 10},
		{Pixel: 0, Line: 1, X: 10, Y: 13},
	}
	mustRun(t, dst, src, o)

	feats := layerOf(t, dst, "pixels").Features()
	require.Len(t, feats, 1)
	c := feats[0].Geometry(0).Coords[0]
	assert.InDelta(t, 12, c.X, 1e-6)
	assert.InDelta(t, 13, c.Y, 1e-6)
}

func TestNullifyOutputSRS(t *testing.T) {
	src, _ := pointSource(t, 1)
	dst := memory.New("dst", memory.DefaultOptions())
	o := DefaultOptions()
	o.NullifyOutputSRS = true
	mustRun(t, dst, src, o)
	assert.Nil(t, layerOf(t, dst, "points").Schema().GeomFields[0].CRS)
}

func TestMetadataOnNewDataset(t *testing.T) {
	src, _ := pointSource(t, 1)
	require.NoError(t, src.SetMetadata(map[string]string{"AGENCY": "NOAA"}))

	o := DefaultOptions()
	o.Format = memory.DriverName
	o.Metadata = map[string]string{"EDITION": "3"}
	ds, res, err := Translate(context.Background(), Destination{Path: "out"}, src, &o)
	require.NoError(t, err)
	defer ds.Close()

	assert.EqualValues(t, 1, res.Written)
	assert.Equal(t, map[string]string{"AGENCY": "NOAA", "EDITION": "3"}, ds.Metadata())
}

func TestUpdateNeedsExistingDestination(t *testing.T) {
	src, _ := pointSource(t, 1)
	o := DefaultOptions()
	o.Format = memory.DriverName
	o.AccessMode = Update
	_, _, err := Translate(context.Background(), Destination{Path: "missing"}, src, &o)
	var se *SetupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, DestinationOpen, se.Kind)
	assert.True(t, strings.Contains(err.Error(), "missing"))
}
