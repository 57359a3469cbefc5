package geojson

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

const collection = `{
  "type": "FeatureCollection",
  "name": "wrecks",
  "features": [
    {"type": "Feature", "id": 7, "properties": {"name": "Alpha", "depth": 12, "tags": ["a", "b"], "seen": "2024-03-01"},
     "geometry": {"type": "Point", "coordinates": [-70.5, 41.25]}},
    {"type": "Feature", "properties": {"name": "Bravo", "depth": 3.5, "extra": {"k": 1}},
     "geometry": {"type": "Point", "coordinates": [-70.0, 41.0]}},
    {"type": "Feature", "properties": {"name": null, "depth": 4},
     "geometry": null}
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readAll(t *testing.T, l vector.Layer) []*vector.Feature {
	t.Helper()
	l.ResetReading()
	var out []*vector.Feature
	for {
		f, err := l.NextFeature()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, f)
	}
}

func fieldNames(s *vector.Schema) []string {
	var out []string
	for _, f := range s.Fields {
		out = append(out, f.Name)
	}
	return out
}

func TestOpenCollectionInfersSchema(t *testing.T) {
	path := writeFile(t, "in.geojson", collection)
	ds, err := vector.Open(path, "", false)
	require.NoError(t, err)
	defer ds.Close()

	require.Equal(t, 1, ds.LayerCount())
	l := ds.Layer(0)
	assert.Equal(t, "wrecks", l.Name())

	s := l.Schema()
	assert.Equal(t, []string{"name", "depth", "tags", "seen", "extra"}, fieldNames(s))
	assert.Equal(t, vector.String, s.Fields[0].Type)
	assert.Equal(t, vector.Real, s.Fields[1].Type)
	assert.Equal(t, vector.StringList, s.Fields[2].Type)
	assert.Equal(t, vector.Date, s.Fields[3].Type)
	assert.Equal(t, vector.String, s.Fields[4].Type)
	require.Len(t, s.GeomFields, 1)
	assert.Equal(t, geom.Point, s.GeomFields[0].Type)
	assert.True(t, s.GeomFields[0].CRS.IsSame(srs.WGS84()))

	feats := readAll(t, l)
	require.Len(t, feats, 3)
	assert.Equal(t, int64(7), feats[0].FID)
	assert.Equal(t, int64(1), feats[1].FID)
	assert.Equal(t, 12.0, feats[0].Field(1).Real())
	assert.Equal(t, []string{"a", "b"}, feats[0].Field(2).StringList())
	assert.Equal(t, `{"k":1}`, feats[1].Field(4).String())
	assert.True(t, feats[2].Field(0).IsNull())
	assert.False(t, feats[2].Field(2).IsSet())
	assert.Nil(t, feats[2].Geometry(0))
	assert.Equal(t, "POINT (-70.5 41.25)", feats[0].Geometry(0).String())

	assert.Equal(t, int64(3), l.FeatureCount(false))
	_, err = ds.CreateLayer("more", nil, nil)
	assert.True(t, errors.Is(err, vector.ErrNotSupported))
}

func TestWidenTypes(t *testing.T) {
	cases := []struct {
		a, b, want vector.FieldType
	}{
		{vector.Integer, vector.Integer64, vector.Integer64},
		{vector.Integer64, vector.Real, vector.Real},
		{vector.Integer, vector.String, vector.String},
		{vector.IntegerList, vector.RealList, vector.RealList},
		{vector.Date, vector.DateTime, vector.DateTime},
		{vector.Date, vector.Time, vector.String},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, widen(c.a, c.b), "%s + %s", c.a, c.b)
	}

	assert.Equal(t, vector.Integer64, jsonType(float64(1<<40)))
	assert.Equal(t, vector.Integer, jsonType(true))
	assert.Equal(t, vector.DateTime, jsonType("2024-03-01T10:20:30Z"))
	assert.Equal(t, vector.Time, jsonType("10:20:30"))
	assert.Equal(t, vector.String, jsonType("hello world"))
	assert.Equal(t, vector.Integer64List, jsonType([]any{1.0, float64(1 << 40)}))
	assert.Equal(t, vector.String, jsonType([]any{map[string]any{}}))
}

func TestWriteAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.geojson")
	ds, err := vector.Create(path, DriverName, nil)
	require.NoError(t, err)

	utm, err := srs.FromCode("EPSG", 32619)
	require.NoError(t, err)
	l, err := ds.CreateLayer("soundings", &vector.GeomFieldDefn{Type: geom.Point, CRS: utm}, nil)
	require.NoError(t, err)
	require.NoError(t, l.CreateField(vector.NewFieldDefn("depth", vector.Real), false))
	require.NoError(t, l.CreateField(vector.NewFieldDefn("at", vector.DateTime), false))
	require.NoError(t, l.CreateField(vector.NewFieldDefn("levels", vector.IntegerList), false))
	require.NoError(t, l.CreateField(vector.NewFieldDefn("blob", vector.Binary), true))
	assert.Equal(t, vector.String, l.Schema().Fields[3].Type)
	assert.Error(t, l.CreateField(vector.NewFieldDefn("raw", vector.Binary), false))

	at := time.Date(2024, 3, 1, 10, 20, 30, 0, time.FixedZone("", 2*3600))
	f := vector.NewFeature(l.Schema())
	f.Set(0, vector.RealValue(4.5))
	f.Set(1, vector.TimeValue(vector.DateTime, at, vector.TZFixed))
	f.Set(2, vector.IntListValue([]int64{1, 2}))
	f.SetGeometry(0, geom.NewPoint(500000, 4600000))
	require.NoError(t, l.CreateFeature(f))

	g := vector.NewFeature(l.Schema())
	g.Set(0, vector.Null())
	require.NoError(t, l.CreateFeature(g))
	require.NoError(t, ds.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `"name":"soundings"`)
	assert.Contains(t, text, `"urn:ogc:def:crs:EPSG::32619"`)
	assert.Contains(t, text, `"at":"2024-03-01T10:20:30+02:00"`)
	assert.Contains(t, text, `"depth":null`)
	assert.NotContains(t, text, `"blob"`)

	back, err := Open(path, false, false)
	require.NoError(t, err)
	rl := back.Layer(0)
	assert.Equal(t, []string{"depth", "at", "levels"}, fieldNames(rl.Schema()))
	assert.True(t, rl.Schema().GeomFields[0].CRS.IsSame(utm))

	feats := readAll(t, rl)
	require.Len(t, feats, 2)
	assert.Equal(t, 4.5, feats[0].Field(0).Real())
	tm, tz := feats[0].Field(1).Time()
	assert.Equal(t, vector.TZFixed, tz)
	assert.True(t, tm.Equal(at))
	assert.Equal(t, []int64{1, 2}, feats[0].Field(2).IntList())
	assert.Nil(t, feats[1].Geometry(0))
}

func TestEmptyCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.geojson")
	require.NoError(t, Create(path, false).Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"FeatureCollection","features":[]}`, strings.TrimSpace(string(data)))
}

func TestForcedTransactionRollsBack(t *testing.T) {
	ds := Create(filepath.Join(t.TempDir(), "tx.geojson"), false)
	l, err := ds.CreateLayer("t", &vector.GeomFieldDefn{Type: geom.Point}, nil)
	require.NoError(t, err)

	assert.False(t, ds.Capabilities().Transactions)
	assert.True(t, errors.Is(ds.StartTransaction(false), vector.ErrNotSupported))
	require.NoError(t, ds.StartTransaction(true))
	require.NoError(t, l.CreateFeature(vector.NewFeature(l.Schema())))
	require.NoError(t, ds.RollbackTransaction())
	assert.Equal(t, int64(0), l.FeatureCount(true))
	assert.True(t, errors.Is(l.StartTransaction(), vector.ErrNotSupported))
}

const sequence = "\x1e{\"type\":\"Feature\",\"properties\":{\"n\":1},\"geometry\":{\"type\":\"Point\",\"coordinates\":[0,0]}}\n" +
	"\n" +
	"{\"type\":\"Feature\",\"properties\":{\"n\":2},\"geometry\":{\"type\":\"LineString\",\"coordinates\":[[0,0],[5,5]]}}\n" +
	"{\"type\":\"Feature\",\"properties\":{\"n\":3,\"s\":\"x\"},\"geometry\":{\"type\":\"Point\",\"coordinates\":[9,9]}}"

func TestStreamSequence(t *testing.T) {
	path := writeFile(t, "in.geojsonl", sequence)
	ds, err := vector.Open(path, "", false)
	require.NoError(t, err)
	defer ds.Close()

	l := ds.Layer(0)
	assert.Equal(t, "in", l.Name())
	assert.Equal(t, []string{"n", "s"}, fieldNames(l.Schema()))
	assert.Equal(t, geom.Unknown, l.Schema().GeomFields[0].Type)

	br, ok := l.(vector.ByteOffsetReporter)
	require.True(t, ok)
	assert.Equal(t, int64(len(sequence)), br.ByteSize())

	feats := readAll(t, l)
	require.Len(t, feats, 3)
	assert.Equal(t, []int64{0, 1, 2}, []int64{feats[0].FID, feats[1].FID, feats[2].FID})
	assert.Equal(t, br.ByteSize(), br.ByteOffset())

	assert.Equal(t, int64(-1), l.FeatureCount(false))
	require.NoError(t, l.SetAttributeFilter("n >= 2"))
	assert.Equal(t, int64(2), l.FeatureCount(true))
	require.NoError(t, l.SetSpatialFilter(0, geom.NewPolygon([]geom.Coord{{X: 8, Y: 8}, {X: 10, Y: 8}, {X: 10, Y: 10}, {X: 8, Y: 10}, {X: 8, Y: 8}})))
	feats = readAll(t, l)
	require.Len(t, feats, 1)
	assert.Equal(t, "x", feats[0].Field(1).String())

	got, err := l.GetFeature(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Field(0).Int())
	_, err = l.GetFeature(42)
	assert.True(t, errors.Is(err, vector.ErrNoSuchFeature))
}

func TestWriteSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.geojsons")
	ds, err := vector.Create(path, SeqDriverName, nil)
	require.NoError(t, err)
	l, err := ds.CreateLayer("out", &vector.GeomFieldDefn{Type: geom.Point}, nil)
	require.NoError(t, err)
	require.NoError(t, l.CreateField(vector.NewFieldDefn("n", vector.Integer), false))
	for i := int64(1); i <= 2; i++ {
		f := vector.NewFeature(l.Schema())
		f.Set(0, vector.IntValue(i))
		f.SetGeometry(0, geom.NewPoint(float64(i), 0))
		require.NoError(t, l.CreateFeature(f))
	}
	require.NoError(t, ds.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"type":"Feature","id":1,"properties":{"n":1},"geometry":{"type":"Point","coordinates":[1,0]}}`, lines[0])
}
