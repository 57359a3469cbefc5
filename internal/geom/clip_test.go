package geom

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/ogrtranslate/internal/srs"
)

func square(minX, minY, maxX, maxY float64) *Geometry {
	return Envelope{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}.Polygon()
}

func mustClip(t *testing.T, c *Clipper, g *Geometry) *Geometry {
	t.Helper()
	out, err := c.Intersection(g)
	require.NoError(t, err)
	return out
}

func partEnvelopes(g *Geometry) []Envelope {
	var out []Envelope
	for _, p := range g.Parts {
		out = append(out, p.Envelope())
	}
	return out
}

func TestClipperRectangle(t *testing.T) {
	c, err := NewClipper(square(0, 0, 10, 10))
	require.NoError(t, err)

	t.Run("polygon overlap", func(t *testing.T) {
		out := mustClip(t, c, square(5, 5, 15, 15))
		require.NotNil(t, out)
		assert.Equal(t, Polygon, out.Flat())
		assert.Equal(t, Envelope{MinX: 5, MinY: 5, MaxX: 10, MaxY: 10}, out.Envelope())
	})

	t.Run("disjoint", func(t *testing.T) {
		assert.Nil(t, mustClip(t, c, square(20, 20, 30, 30)))
		assert.False(t, c.Intersects(NewPoint(-1, -1)))
	})

	t.Run("contained point", func(t *testing.T) {
		out := mustClip(t, c, NewPoint(3, 4))
		require.NotNil(t, out)
		assert.True(t, Equal(out, NewPoint(3, 4), 0))
	})

	t.Run("input untouched", func(t *testing.T) {
		in := square(5, 5, 15, 15)
		before := in.Clone()
		mustClip(t, c, in)
		assert.True(t, Equal(in, before, 0))
	})
}

func TestClipperInterpolatesZ(t *testing.T) {
	c, err := NewClipper(square(0, 0, 10, 10))
	require.NoError(t, err)

	line := &Geometry{
		Type:   LineString.WithZ(true),
		Coords: []Coord{{X: -5, Y: 5, Z: 0}, {X: 15, Y: 5, Z: 20}},
	}
	out := mustClip(t, c, line)
	require.NotNil(t, out)

	want := &Geometry{
		Type:   LineString.WithZ(true),
		Coords: []Coord{{X: 0, Y: 5, Z: 5}, {X: 10, Y: 5, Z: 15}},
	}
	assert.True(t, Equal(out, want, 1e-9), "got %s", out)
}

func TestClipperSplitsLine(t *testing.T) {
	c, err := NewClipper(square(0, 0, 10, 10))
	require.NoError(t, err)

	line := &Geometry{
		Type: LineString.WithZ(true),
		Coords: []Coord{
			{X: 2, Y: 5, Z: 1}, {X: 2, Y: 15, Z: 1}, {X: 8, Y: 15, Z: 1}, {X: 8, Y: 5, Z: 1},
		},
	}
	out := mustClip(t, c, line)
	require.NotNil(t, out)
	assert.Equal(t, MultiLineString.WithZ(true), out.Type)
	require.Len(t, out.Parts, 2)
	assert.ElementsMatch(t, []Envelope{
		{MinX: 2, MinY: 5, MaxX: 2, MaxY: 10},
		{MinX: 8, MinY: 5, MaxX: 8, MaxY: 10},
	}, partEnvelopes(out))
	out.walkCoords(func(co *Coord) { assert.Equal(t, 1.0, co.Z) })
}

func TestClipperPolygonWithZ(t *testing.T) {
	c, err := NewClipper(square(0, 0, 10, 10))
	require.NoError(t, err)

	poly := square(5, 5, 15, 15)
	SetZ(poly, 3)

	out := mustClip(t, c, poly)
	require.NotNil(t, out)
	assert.Equal(t, Polygon.WithZ(true), out.Type)
	require.Len(t, out.Parts, 1)
	out.walkCoords(func(co *Coord) { assert.Equal(t, 3.0, co.Z) })
	assert.Equal(t, Envelope{MinX: 5, MinY: 5, MaxX: 10, MaxY: 10}, out.Envelope())
}

func TestClipperTriangle(t *testing.T) {
	tri := NewPolygon([]Coord{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}, {X: 0, Y: 0}})
	c, err := NewClipper(tri)
	require.NoError(t, err)

	assert.True(t, c.Intersects(NewPoint(1, 1)))
	assert.False(t, c.Intersects(NewPoint(8, 8)))

	// clockwise clip rings are accepted
	cw := NewPolygon([]Coord{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}})
	c, err = NewClipper(cw)
	require.NoError(t, err)
	assert.True(t, c.Intersects(NewPoint(1, 1)))
}

func TestClipperMultiPolygon(t *testing.T) {
	clipGeom := NewCollection(MultiPolygon, square(0, 0, 10, 10), square(20, 0, 30, 10))
	c, err := NewClipper(clipGeom)
	require.NoError(t, err)

	line := NewLineString(Coord{X: -5, Y: 5}, Coord{X: 35, Y: 5})
	out := mustClip(t, c, line)
	require.NotNil(t, out)
	assert.Equal(t, MultiLineString, out.Type)
	require.Len(t, out.Parts, 2)
	assert.ElementsMatch(t, []Envelope{
		{MinX: 0, MinY: 5, MaxX: 10, MaxY: 5},
		{MinX: 20, MinY: 5, MaxX: 30, MaxY: 5},
	}, partEnvelopes(out))

	assert.Nil(t, mustClip(t, c, NewPoint(15, 5)))
}

func TestClipperConcaveArea(t *testing.T) {
	lshape := NewPolygon([]Coord{
		{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 2}, {X: 2, Y: 2}, {X: 2, Y: 4}, {X: 0, Y: 4}, {X: 0, Y: 0},
	})
	c, err := NewClipper(lshape)
	require.NoError(t, err)

	for _, p := range []struct {
		x, y   float64
		inside bool
	}{
		{1, 1, true}, {3, 1, true}, {1, 3, true}, {3, 3, false}, {5, 5, false},
	} {
		out := mustClip(t, c, NewPoint(p.x, p.y))
		assert.Equal(t, p.inside, out != nil, "point (%v %v)", p.x, p.y)
		assert.Equal(t, p.inside, c.Intersects(NewPoint(p.x, p.y)))
	}

	// the notch of the L removes the top right quarter of the square
	out := mustClip(t, c, square(0, 0, 4, 4))
	require.NotNil(t, out)
	assert.Equal(t, Polygon, out.Flat())
	assert.InDelta(t, 12.0, area(out), 1e-9)
}

func TestClipperHoledArea(t *testing.T) {
	holed := NewPolygon(
		[]Coord{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}, {X: 0, Y: 0}},
		[]Coord{{X: 4, Y: 4}, {X: 6, Y: 4}, {X: 6, Y: 6}, {X: 4, Y: 6}, {X: 4, Y: 4}},
	)
	c, err := NewClipper(holed)
	require.NoError(t, err)

	assert.Nil(t, mustClip(t, c, NewPoint(5, 5)))
	assert.NotNil(t, mustClip(t, c, NewPoint(2, 2)))

	line := NewLineString(Coord{X: 0, Y: 5}, Coord{X: 10, Y: 5})
	SetZ(line, 7)
	out := mustClip(t, c, line)
	require.NotNil(t, out)
	assert.Equal(t, MultiLineString.WithZ(true), out.Type)
	assert.ElementsMatch(t, []Envelope{
		{MinX: 0, MinY: 5, MaxX: 4, MaxY: 5},
		{MinX: 6, MinY: 5, MaxX: 10, MaxY: 5},
	}, partEnvelopes(out))
}

func TestClipperDissolvesOverlaps(t *testing.T) {
	clipGeom := NewCollection(MultiPolygon, square(0, 0, 2.5, 2.5), square(0.5, 0.5, 3, 3))
	c, err := NewClipper(clipGeom)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		pt := NewPoint(float64(i), float64(i))
		out := mustClip(t, c, pt)
		if i == 4 {
			assert.Nil(t, out)
			continue
		}
		require.NotNil(t, out, "point %d", i)
		assert.Equal(t, Point, out.Type, spew.Sdump(out))
		assert.True(t, Equal(out, pt, 0))
	}

	out := mustClip(t, c, square(1, 1, 2, 2))
	require.NotNil(t, out)
	assert.Equal(t, Polygon, out.Type)
	assert.InDelta(t, 1.0, area(out), 1e-9)
}

func TestClipperSplitsConcaveSubject(t *testing.T) {
	// a U opening upwards, its notch spanning x 1..2 above y 1
	u := NewPolygon([]Coord{
		{X: 0, Y: 0}, {X: 3, Y: 0}, {X: 3, Y: 3}, {X: 2, Y: 3}, {X: 2, Y: 1},
		{X: 1, Y: 1}, {X: 1, Y: 3}, {X: 0, Y: 3}, {X: 0, Y: 0},
	})
	for _, z := range []bool{false, true} {
		subject := u.Clone()
		if z {
			SetZ(subject, 2)
		}
		c, err := NewClipper(square(-1, 2, 4, 4))
		require.NoError(t, err)

		out := mustClip(t, c, subject)
		require.NotNil(t, out)
		assert.Equal(t, MultiPolygon.WithZ(z), out.Type, spew.Sdump(out))
		require.Len(t, out.Parts, 2)
		assert.ElementsMatch(t, []Envelope{
			{MinX: 0, MinY: 2, MaxX: 1, MaxY: 3},
			{MinX: 2, MinY: 2, MaxX: 3, MaxY: 3},
		}, partEnvelopes(out))
		assert.True(t, IsValidArea(out))
	}
}

func TestClipperRejectsNonPolygon(t *testing.T) {
	_, err := NewClipper(NewPoint(0, 0))
	assert.Error(t, err)

	_, err = NewClipper(NewEmpty(Polygon))
	assert.Error(t, err)

	// self-intersecting bow tie
	bowtie := NewPolygon([]Coord{{X: 0, Y: 0}, {X: 2, Y: 2}, {X: 2, Y: 0}, {X: 0, Y: 2}, {X: 0, Y: 0}})
	_, err = NewClipper(bowtie)
	assert.Error(t, err)
}

func TestClipperKeepsCRS(t *testing.T) {
	c, err := NewClipper(square(0, 0, 10, 10))
	require.NoError(t, err)

	crs := srs.WebMercator()
	line := NewLineString(Coord{X: -5, Y: 5}, Coord{X: 5, Y: 5})
	line.CRS = crs

	out := mustClip(t, c, line)
	require.NotNil(t, out)
	assert.Same(t, crs, out.CRS)

	poly := square(5, 5, 15, 15)
	poly.CRS = crs
	out = mustClip(t, c, poly)
	require.NotNil(t, out)
	assert.Same(t, crs, out.CRS)
}

// area sums the shoelace areas of the polygons in g, holes subtracted.
func area(g *Geometry) float64 {
	switch g.Flat() {
	case Polygon:
		total := 0.0
		for i, r := range g.Parts {
			a := ringArea(r.Coords)
			if i == 0 {
				total += a
			} else {
				total -= a
			}
		}
		return total
	case MultiPolygon:
		total := 0.0
		for _, p := range g.Parts {
			total += area(p)
		}
		return total
	}
	return 0
}

func ringArea(coords []Coord) float64 {
	s := 0.0
	for i := 0; i+1 < len(coords); i++ {
		s += coords[i].X*coords[i+1].Y - coords[i+1].X*coords[i].Y
	}
	if s < 0 {
		s = -s
	}
	return s / 2
}
