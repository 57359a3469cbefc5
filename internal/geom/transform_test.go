package geom

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/ogrtranslate/internal/srs"
)

type failingCT struct{}

func (failingCT) Transform(x, y, z []float64) error { return errors.New("boom") }
func (failingCT) Source() *srs.CRS                  { return nil }
func (failingCT) Target() *srs.CRS                  { return nil }

func TestTransform(t *testing.T) {
	ct, err := srs.DefaultFactory.NewTransformer(srs.WGS84(), srs.WebMercator())
	require.NoError(t, err)

	g := NewCollection(MultiPoint.WithZ(true), NewPointZ(10, 45, 7), NewPointZ(0, 0, 8))
	require.NoError(t, Transform(g, ct))

	assert.InDelta(t, 1113194.9, g.Parts[0].Coords[0].X, 0.1)
	assert.InDelta(t, 5621521.5, g.Parts[0].Coords[0].Y, 0.1)
	assert.Equal(t, 7.0, g.Parts[0].Coords[0].Z)
	assert.InDelta(t, 0, g.Parts[1].Coords[0].X, 1e-9)
	assert.Same(t, ct.Target(), g.CRS)
	assert.Same(t, ct.Target(), g.Parts[1].CRS)
}

func TestTransformFailure(t *testing.T) {
	err := Transform(NewPoint(1, 1), failingCT{})
	var tf *ErrTransformFailed
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, 1, tf.Points)
}

func TestWrapDatelineLine(t *testing.T) {
	line := NewLineString(Coord{X: 175, Y: 0}, Coord{X: -175, Y: 10})
	out := WrapDateline(line, WrapOptions{Enabled: true, Offset: 10})

	require.Equal(t, MultiLineString, out.Type)
	require.Len(t, out.Parts, 2)
	assert.True(t, Equal(out.Parts[0], NewLineString(Coord{X: 175, Y: 0}, Coord{X: 180, Y: 5}), 1e-9), "got %s", out)
	assert.True(t, Equal(out.Parts[1], NewLineString(Coord{X: -180, Y: 5}, Coord{X: -175, Y: 10}), 1e-9), "got %s", out)
}

func TestWrapDatelinePolygon(t *testing.T) {
	poly := NewPolygon([]Coord{
		{X: 175, Y: -5}, {X: -175, Y: -5}, {X: -175, Y: 5}, {X: 175, Y: 5}, {X: 175, Y: -5},
	})
	out := WrapDateline(poly, WrapOptions{Enabled: true})

	require.Equal(t, MultiPolygon, out.Type)
	require.Len(t, out.Parts, 2)
	assert.Equal(t, Envelope{MinX: 175, MinY: -5, MaxX: 180, MaxY: 5}, out.Parts[0].Envelope())
	assert.Equal(t, Envelope{MinX: -180, MinY: -5, MaxX: -175, MaxY: 5}, out.Parts[1].Envelope())
}

func TestWrapDatelineUnchanged(t *testing.T) {
	line := NewLineString(Coord{X: 10, Y: 0}, Coord{X: 20, Y: 10})
	assert.Same(t, line, WrapDateline(line, WrapOptions{Enabled: true}))
	assert.Same(t, line, WrapDateline(line, WrapOptions{}))

	pt := WrapDateline(NewPoint(190, 1), WrapOptions{Enabled: true})
	assert.Equal(t, -170.0, pt.Coords[0].X)
}
