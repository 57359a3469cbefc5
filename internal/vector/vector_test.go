package vector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/ogrtranslate/internal/geom"
)

func testSchema() *Schema {
	return &Schema{
		Fields: []FieldDefn{
			NewFieldDefn("id", Integer),
			NewFieldDefn("name", String),
			NewFieldDefn("depth", Real),
		},
		GeomFields: []GeomFieldDefn{{Name: "shape", Type: geom.Point}},
	}
}

func testFeature(s *Schema, id int64, name string, depth float64) *Feature {
	f := NewFeature(s)
	f.Set(0, IntValue(id))
	f.Set(1, StringValue(name))
	f.Set(2, RealValue(depth))
	return f
}

func TestParseFieldType(t *testing.T) {
	for _, ft := range []FieldType{Integer, Integer64, Real, String, Date, Time, DateTime, Binary,
		IntegerList, Integer64List, RealList, StringList} {
		got, err := ParseFieldType(ft.String())
		require.NoError(t, err)
		assert.Equal(t, ft, got)
	}
	got, err := ParseFieldType("integer64")
	require.NoError(t, err)
	assert.Equal(t, Integer64, got)

	_, err = ParseFieldType("Decimal")
	assert.Error(t, err)

	assert.True(t, StringList.IsList())
	assert.Equal(t, Real, RealList.Elem())
	assert.Equal(t, String, String.Elem())
}

func TestSchemaLookup(t *testing.T) {
	s := testSchema()
	s.Fields = append(s.Fields, NewFieldDefn("Name", String))

	assert.Equal(t, 1, s.FieldIndex("name"))
	assert.Equal(t, 3, s.FieldIndex("Name"))
	assert.Equal(t, 1, s.FieldIndex("NAME"))
	assert.Equal(t, -1, s.FieldIndexExact("NAME"))
	assert.Equal(t, 0, s.GeomFieldIndex("SHAPE"))

	c := s.Clone()
	c.Fields[0].Name = "changed"
	assert.Equal(t, "id", s.Fields[0].Name)
	assert.False(t, s.Equal(c))
}

func TestValueConvert(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		to   FieldType
		want string
	}{
		{"int to string", IntValue(42), String, "42"},
		{"real to int truncates", RealValue(3.9), Integer64, "3"},
		{"string to real", StringValue(" 2.5 "), Real, "2.5"},
		{"int64 clamps", IntValue(1 << 40), Integer, "2147483647"},
		{"list to string", StringListValue([]string{"a", "b", "c"}), String, "(3:a,b,c)"},
		{"int list to real list", IntListValue([]int64{1, 2}), RealList, "(2:1,2)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Convert(tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.to, got.Kind())
			assert.Equal(t, tt.want, got.String())
		})
	}

	_, err := BinaryValue([]byte{1}).Convert(Integer)
	assert.Error(t, err)

	n, err := Null().Convert(Integer)
	require.NoError(t, err)
	assert.True(t, n.IsNull())
}

func TestValueDateTime(t *testing.T) {
	tm, tz, err := ParseDateTime("2024-03-01T10:20:30+02:00")
	require.NoError(t, err)
	assert.Equal(t, TZFixed, tz)
	assert.Equal(t, "2024/03/01 10:20:30+02", TimeValue(DateTime, tm, tz).String())

	tm, tz, err = ParseDateTime("2024/03/01 10:20:30")
	require.NoError(t, err)
	assert.Equal(t, TZUnknown, tz)
	assert.Equal(t, 10, tm.Hour())

	loc := time.FixedZone("", -(5*3600 + 30*60))
	v := TimeValue(DateTime, time.Date(2024, 1, 2, 3, 4, 5, 0, loc), TZFixed)
	assert.Equal(t, "2024/01/02 03:04:05-05:30", v.String())
}

func TestFeatureTakeGeometry(t *testing.T) {
	s := testSchema()
	f := testFeature(s, 1, "a", 2)
	g := geom.NewPoint(1, 2)
	f.SetGeometry(0, g)

	taken := f.TakeGeometry(0)
	assert.Same(t, g, taken)
	assert.Nil(t, f.Geometry(0))
	assert.Nil(t, f.TakeGeometry(3))
}

func TestFeatureSetFrom(t *testing.T) {
	src := testFeature(testSchema(), 7, "buoy", 12.5)

	dstSchema := &Schema{Fields: []FieldDefn{
		NewFieldDefn("label", String),
		NewFieldDefn("ident", String),
	}}
	dst := NewFeature(dstSchema)
	require.NoError(t, dst.SetFrom(src, []int{1, 0, -1}, false))
	assert.Equal(t, "buoy", dst.Field(0).String())
	assert.Equal(t, "7", dst.Field(1).String())

	err := dst.SetFrom(src, []int{0}, false)
	assert.Error(t, err)
	err = dst.SetFrom(src, []int{0, 5, -1}, false)
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	s := testSchema()
	feats := []*Feature{
		testFeature(s, 1, "Alpha", 5),
		testFeature(s, 2, "beta", 15),
		testFeature(s, 3, "gamma", 25),
	}
	feats[2].Set(1, Null())
	for i, f := range feats {
		f.FID = int64(i + 100)
	}

	tests := []struct {
		where string
		want  []int64
	}{
		{"id = 1", []int64{1}},
		{"depth > 10 AND depth < 20", []int64{2}},
		{"depth >= 25 OR id = 1", []int64{1, 3}},
		{"NOT (id = 2)", []int64{1, 3}},
		{"name IS NULL", []int64{3}},
		{"name IS NOT NULL", []int64{1, 2}},
		{"id IN (1, 3)", []int64{1, 3}},
		{"id NOT IN (1, 3)", []int64{2}},
		{"name LIKE 'a%'", []int64{1}},
		{"name LIKE '_eta'", []int64{2}},
		{`"NAME" = 'beta'`, []int64{2}},
		{"name <> 'beta'", []int64{1}},
		{"FID = 101", []int64{2}},
		{"id = '2'", []int64{2}},
		{"depth BETWEEN 10 AND 30", []int64{2, 3}},
		{"depth NOT BETWEEN 10 AND 20", []int64{1, 3}},
		{"depth * 2 > 20", []int64{2, 3}},
		{"-depth < -20", []int64{3}},
		{`"depth" - "id" = 4`, []int64{1}},
		{"name <=> NULL", []int64{3}},
		{"name = 'it''s'", nil},
		{"name = 'Alpha' OR name = 'a\\b'", []int64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			f, err := CompileFilter(tt.where, s)
			require.NoError(t, err)
			var got []int64
			for _, feat := range feats {
				if f.Match(feat) {
					got = append(got, feat.Field(0).Int())
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterColumns(t *testing.T) {
	f, err := CompileFilter("depth > 1 AND (name = 'a' OR depth < 9) AND FID > 0", testSchema())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, f.Columns())
}

func TestFilterErrors(t *testing.T) {
	s := testSchema()
	for _, where := range []string{
		"missing = 1",
		"id = ",
		"(id = 1",
		"name = 'open",
		"id IS 3",
		"id = 1 2",
		`"name = 'beta'`,
		"id = 1 ORDER BY id",
		"id = 1; DROP TABLE t",
		"name REGEXP 'a'",
		"name LIKE 'a%' ESCAPE '!'",
		"id IN (SELECT 1)",
	} {
		_, err := CompileFilter(where, s)
		assert.Error(t, err, where)
	}
}

func TestQuoteIdentifiers(t *testing.T) {
	for in, want := range map[string]string{
		`"NAME" = 'beta'`:       "`NAME` = 'beta'",
		`"a""b" = 'x"y'`:        "`a\"b` = 'x\"y'",
		`name = 'c:\dir'`:       `name = 'c:\\dir'`,
		`name = 'it''s' OR "n"`: "name = 'it''s' OR `n`",
		"\"open = 1":            "`open = 1",
	} {
		assert.Equal(t, want, quoteIdentifiers(in), in)
	}
}

type stubDriver struct{ name string }

func (d stubDriver) Name() string                      { return d.name }
func (d stubDriver) Extensions() []string              { return []string{"stub"} }
func (d stubDriver) Open(string, bool) (Dataset, error) { return nil, ErrNotSupported }
func (d stubDriver) Create(string, map[string]string) (Dataset, error) {
	return nil, ErrNotSupported
}

func TestRegistry(t *testing.T) {
	Register(stubDriver{name: "StubFormat"})

	d, err := Lookup("stubformat")
	require.NoError(t, err)
	assert.Equal(t, "StubFormat", d.Name())

	d, err = ForPath("/tmp/data.STUB")
	require.NoError(t, err)
	assert.Equal(t, "StubFormat", d.Name())

	assert.Contains(t, Drivers(), "StubFormat")

	_, err = Lookup("nope")
	assert.Error(t, err)
	_, err = Open("/tmp/x.unknown", "", false)
	assert.Error(t, err)
	_, err = Create("/tmp/x.stub", "", nil)
	assert.ErrorIs(t, err, ErrNotSupported)
}
