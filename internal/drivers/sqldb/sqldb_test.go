package sqldb

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
	"github.com/beetlebugorg/ogrtranslate/internal/srs"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

func openTemp(t *testing.T) (*Dataset, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite")
	ds, err := Open(context.Background(), SQLite, path, Options{Update: true, PageSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return ds, path
}

func createBuoys(t *testing.T, ds *Dataset) vector.WritableLayer {
	t.Helper()
	l, err := ds.CreateLayer("buoys", &vector.GeomFieldDefn{Type: geom.Point, CRS: srs.WGS84()}, map[string]string{"FID": "ogc_fid"})
	require.NoError(t, err)
	require.NoError(t, l.CreateField(vector.NewFieldDefn("id", vector.Integer), false))
	require.NoError(t, l.CreateField(vector.NewFieldDefn("name", vector.String), false))
	require.NoError(t, l.CreateField(vector.NewFieldDefn("depth", vector.Real), false))
	return l
}

func writeBuoy(t *testing.T, l vector.WritableLayer, id int64, name string, x, y float64) *vector.Feature {
	t.Helper()
	f := vector.NewFeature(l.Schema())
	f.Set(0, vector.IntValue(id))
	f.Set(1, vector.StringValue(name))
	f.Set(2, vector.RealValue(float64(id)*1.5))
	f.SetGeometry(0, geom.NewPoint(x, y))
	require.NoError(t, l.CreateFeature(f))
	return f
}

func readIDs(t *testing.T, l vector.Layer) []int64 {
	t.Helper()
	l.ResetReading()
	var ids []int64
	for {
		f, err := l.NextFeature()
		if err == io.EOF {
			return ids
		}
		require.NoError(t, err)
		ids = append(ids, f.Field(0).Int())
	}
}

func TestRoundTrip(t *testing.T) {
	ds, path := openTemp(t)
	l := createBuoys(t, ds)

	for i := int64(1); i <= 5; i++ {
		f := writeBuoy(t, l, i, "b", float64(i), float64(-i))
		assert.Equal(t, i, f.FID)
	}
	require.NoError(t, l.SetMetadata(map[string]string{"source": "test"}))
	require.NoError(t, ds.SetMetadata(map[string]string{"title": "buoys"}))
	require.NoError(t, ds.Close())

	re, err := vector.Open(path, "", false)
	require.NoError(t, err)
	defer re.Close()

	require.Equal(t, 1, re.LayerCount())
	rl := re.LayerByName("BUOYS")
	require.NotNil(t, rl)
	assert.Equal(t, "ogc_fid", rl.FIDColumn())
	assert.Equal(t, "test", rl.Metadata()["source"])
	assert.Equal(t, "buoys", re.Metadata()["title"])

	s := rl.Schema()
	require.Len(t, s.Fields, 3)
	assert.Equal(t, vector.Real, s.Fields[2].Type)
	require.Len(t, s.GeomFields, 1)
	assert.Equal(t, geom.Point, s.GeomFields[0].Type)
	assert.Equal(t, "EPSG:4326", s.GeomFields[0].CRS.String())

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, readIDs(t, rl))
	assert.Equal(t, int64(5), rl.FeatureCount(false))

	f, err := rl.GetFeature(3)
	require.NoError(t, err)
	assert.Equal(t, "b", f.Field(1).String())
	assert.InDelta(t, 4.5, f.Field(2).Real(), 1e-12)
	assert.Equal(t, "POINT (3 -3)", f.Geometry(0).String())
	assert.Equal(t, "EPSG:4326", f.Geometry(0).CRS.String())

	_, err = rl.GetFeature(42)
	assert.ErrorIs(t, err, vector.ErrNoSuchFeature)

	_, err = re.CreateLayer("x", nil, nil)
	assert.ErrorIs(t, err, vector.ErrNotSupported)
}

func TestValueTypes(t *testing.T) {
	ds, _ := openTemp(t)
	l, err := ds.CreateLayer("types", nil, nil)
	require.NoError(t, err)
	for _, fd := range []vector.FieldDefn{
		vector.NewFieldDefn("i64", vector.Integer64),
		vector.NewFieldDefn("when", vector.DateTime),
		vector.NewFieldDefn("day", vector.Date),
		vector.NewFieldDefn("blob", vector.Binary),
		vector.NewFieldDefn("missing", vector.String),
	} {
		require.NoError(t, l.CreateField(fd, false))
	}

	when := time.Date(2024, 3, 1, 10, 20, 30, 0, time.FixedZone("", 2*3600))
	f := vector.NewFeature(l.Schema())
	f.Set(0, vector.IntValue(1<<40))
	f.Set(1, vector.TimeValue(vector.DateTime, when, vector.TZFixed))
	f.Set(2, vector.TimeValue(vector.Date, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), vector.TZUnknown))
	f.Set(3, vector.BinaryValue([]byte{0xde, 0xad}))
	f.Set(4, vector.Null())
	require.NoError(t, l.CreateFeature(f))

	got, err := l.GetFeature(f.FID)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), got.Field(0).Int())
	assert.Equal(t, "2024/03/01 10:20:30+02", got.Field(1).String())
	assert.Equal(t, "2024/03/01", got.Field(2).String())
	assert.Equal(t, []byte{0xde, 0xad}, got.Field(3).Bytes())
	assert.True(t, got.Field(4).IsNull())
}

func TestListFieldsAreNotCreatable(t *testing.T) {
	ds, _ := openTemp(t)
	assert.False(t, ds.Capabilities().CanCreateFieldType(vector.StringList))

	l, err := ds.CreateLayer("lists", nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, l.CreateField(vector.NewFieldDefn("tags", vector.StringList), false), vector.ErrNotSupported)
	require.NoError(t, l.CreateField(vector.NewFieldDefn("tags", vector.StringList), true))
	assert.Equal(t, vector.String, l.Schema().Fields[0].Type)
	assert.Error(t, l.CreateField(vector.NewFieldDefn("TAGS", vector.String), false))
}

func TestFilters(t *testing.T) {
	ds, _ := openTemp(t)
	l := createBuoys(t, ds)
	writeBuoy(t, l, 1, "red", 1, 1)
	writeBuoy(t, l, 2, "green", 6, 6)
	writeBuoy(t, l, 3, "red", 2, 5)
	writeBuoy(t, l, 4, "red", 20, 20)

	require.NoError(t, l.SetAttributeFilter("name = 'red'"))
	assert.Equal(t, []int64{1, 3, 4}, readIDs(t, l))
	assert.Equal(t, int64(3), l.FeatureCount(false))

	tri := geom.NewPolygon([]geom.Coord{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}, {X: 0, Y: 0}})
	require.NoError(t, l.SetSpatialFilter(0, tri))
	assert.Equal(t, []int64{1, 3}, readIDs(t, l))
	assert.Equal(t, int64(-1), l.FeatureCount(false))
	assert.Equal(t, int64(2), l.FeatureCount(true))

	require.NoError(t, l.SetAttributeFilter(""))
	require.NoError(t, l.SetSpatialFilter(0, nil))
	assert.Equal(t, []int64{1, 2, 3, 4}, readIDs(t, l))

	assert.Error(t, l.SetAttributeFilter("no_such_column = 1"))

	require.NoError(t, l.SetIgnoredFields([]string{"name"}))
	f, err := l.GetFeature(1)
	require.NoError(t, err)
	assert.False(t, f.Field(1).IsSet())
	assert.Equal(t, int64(1), f.Field(0).Int())
}

func TestLayerTransaction(t *testing.T) {
	ds, _ := openTemp(t)
	l := createBuoys(t, ds)
	writeBuoy(t, l, 1, "a", 0, 0)

	require.NoError(t, l.StartTransaction())
	assert.ErrorIs(t, l.StartTransaction(), vector.ErrTransactionSet)
	writeBuoy(t, l, 2, "b", 0, 0)
	require.NoError(t, l.RollbackTransaction())
	assert.Equal(t, []int64{1}, readIDs(t, l))

	require.NoError(t, l.StartTransaction())
	writeBuoy(t, l, 3, "c", 0, 0)
	require.NoError(t, l.CommitTransaction())
	assert.Equal(t, []int64{1, 3}, readIDs(t, l))
	assert.ErrorIs(t, l.CommitTransaction(), vector.ErrNoTransaction)
}

func TestSavepointInsideDatasetTransaction(t *testing.T) {
	ds, _ := openTemp(t)
	l := createBuoys(t, ds)

	require.NoError(t, ds.StartTransaction(false))
	writeBuoy(t, l, 1, "a", 0, 0)

	require.NoError(t, l.StartTransaction())
	assert.NotEmpty(t, l.(*Layer).savepoint)
	writeBuoy(t, l, 2, "b", 0, 0)
	require.NoError(t, l.RollbackTransaction())

	require.NoError(t, ds.CommitTransaction())
	assert.Equal(t, []int64{1}, readIDs(t, l))

	require.NoError(t, ds.StartTransaction(false))
	writeBuoy(t, l, 5, "e", 0, 0)
	require.NoError(t, ds.RollbackTransaction())
	assert.Equal(t, []int64{1}, readIDs(t, l))
}

func TestRollbackRecreatesTable(t *testing.T) {
	ds, _ := openTemp(t)
	require.NoError(t, ds.StartTransaction(false))
	l := createBuoys(t, ds)
	writeBuoy(t, l, 1, "a", 0, 0)
	require.NoError(t, ds.RollbackTransaction())

	require.Equal(t, 1, ds.LayerCount())
	assert.Equal(t, int64(0), l.FeatureCount(true))
	writeBuoy(t, l, 2, "b", 0, 0)
	assert.Equal(t, []int64{2}, readIDs(t, l))
}

func TestUpsert(t *testing.T) {
	ds, _ := openTemp(t)
	l := createBuoys(t, ds)
	f := writeBuoy(t, l, 1, "a", 0, 0)

	f.Set(1, vector.StringValue("renamed"))
	require.NoError(t, l.UpsertFeature(f))

	n := vector.NewFeature(l.Schema())
	n.FID = 10
	n.Set(0, vector.IntValue(10))
	require.NoError(t, l.UpsertFeature(n))

	got, err := l.GetFeature(1)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Field(1).String())
	assert.Equal(t, []int64{1, 10}, readIDs(t, l))
}

func TestExplicitFIDConflict(t *testing.T) {
	ds, _ := openTemp(t)
	l := createBuoys(t, ds)
	f := writeBuoy(t, l, 1, "a", 0, 0)

	dup := vector.NewFeature(l.Schema())
	dup.FID = f.FID
	assert.Error(t, l.CreateFeature(dup))

	wrong := vector.NewFeature(&vector.Schema{})
	assert.Error(t, l.CreateFeature(wrong))
}

func TestNonNullableGeometry(t *testing.T) {
	ds, _ := openTemp(t)
	l, err := ds.CreateLayer("strict", &vector.GeomFieldDefn{Type: geom.Polygon}, map[string]string{
		"GEOMETRY_NULLABLE": "NO",
		"GEOMETRY_NAME":     "shape",
	})
	require.NoError(t, err)
	assert.Equal(t, "shape", l.Schema().GeomFields[0].Name)
	assert.False(t, l.Schema().GeomFields[0].Nullable)
	assert.Error(t, l.CreateFeature(vector.NewFeature(l.Schema())))
}

func TestDeleteLayer(t *testing.T) {
	ds, path := openTemp(t)
	l := createBuoys(t, ds)
	writeBuoy(t, l, 1, "a", 0, 0)
	_, err := ds.CreateLayer("other", nil, nil)
	require.NoError(t, err)

	require.NoError(t, ds.DeleteLayer(0))
	assert.Nil(t, ds.LayerByName("buoys"))
	require.NoError(t, ds.Close())

	re, err := Open(context.Background(), SQLite, path, Options{})
	require.NoError(t, err)
	defer re.Close()
	require.Equal(t, 1, re.LayerCount())
	assert.Equal(t, "other", re.Layer(0).Name())
}

func TestDialectSQL(t *testing.T) {
	tests := []struct {
		dialect *Dialect
		quote   string
		ph      string
		upsert  string
	}{
		{SQLite, `"a""b"`, "?", ` ON CONFLICT ("fid") DO UPDATE SET "x" = excluded."x"`},
		{Postgres, `"a""b"`, "$2", ` ON CONFLICT ("fid") DO UPDATE SET "x" = excluded."x"`},
		{MySQL, "`a\"b`", "?", " ON DUPLICATE KEY UPDATE `x` = VALUES(`x`)"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect.Name, func(t *testing.T) {
			assert.Equal(t, tt.quote, tt.dialect.Quote(`a"b`))
			assert.Equal(t, tt.ph, tt.dialect.Placeholder(2))
			assert.Equal(t, tt.upsert, tt.dialect.upsertClause(tt.dialect, "fid", []string{"x"}))
		})
	}

	f := vector.NewFieldDefn("name", vector.String)
	f.Width = 12
	f.Nullable = false
	decl, err := Postgres.columnType(f)
	require.NoError(t, err)
	assert.Equal(t, "VARCHAR(12) NOT NULL", decl)

	decl, err = SQLite.columnType(f)
	require.NoError(t, err)
	assert.Equal(t, "TEXT NOT NULL", decl)

	_, err = MySQL.columnType(vector.NewFieldDefn("l", vector.RealList))
	assert.ErrorIs(t, err, vector.ErrNotSupported)

	assert.Equal(t, "host=db sslmode=disable", Postgres.dsn("host=db"))
	assert.Equal(t, "u:p@tcp(db)/gis?charset=utf8mb4", MySQL.dsn("u:p@tcp(db)/gis"))
}

func TestRegisteredFormats(t *testing.T) {
	for _, name := range []string{"SQLite", "PostgreSQL", "MySQL"} {
		d, err := vector.Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.Name())
	}
	d, err := vector.ForPath("/data/out.sqlite")
	require.NoError(t, err)
	assert.Equal(t, "SQLite", d.Name())
}
