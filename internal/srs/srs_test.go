package srs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		def        string
		code       int
		geographic bool
	}{
		{"EPSG:4326", 4326, true},
		{"4326", 4326, true},
		{"epsg:3857", 3857, false},
		{"EPSG:900913", 3857, false},
		{"urn:ogc:def:crs:EPSG::3857", 3857, false},
		{"WGS84", 4326, true},
		{"CRS84", 84, true},
		{"EPSG:32631", 32631, false},
		{"EPSG:4269", 4269, true},
	}
	for _, tt := range tests {
		t.Run(tt.def, func(t *testing.T) {
			c, err := Parse(tt.def)
			require.NoError(t, err)
			assert.Equal(t, tt.code, c.Code)
			assert.Equal(t, tt.geographic, c.IsGeographic())
		})
	}

	for _, bad := range []string{"", "EPSG:abc", "FOO:12", "EPSG:-1"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrUnknownCRS, bad)
	}
}

func TestIsSame(t *testing.T) {
	assert.True(t, WGS84().IsSame(WGS84()))
	assert.True(t, WGS84().IsSame(CRS84()))
	assert.False(t, WGS84().IsSame(WebMercator()))
	assert.True(t, WGS84().IsSame(WGS84().WithDataAxis(AxisAuthority)))

	var none *CRS
	assert.True(t, none.IsSame(nil))
	assert.False(t, none.IsSame(WGS84()))
}

func TestMercatorRoundTrip(t *testing.T) {
	fwd, err := DefaultFactory.NewTransformer(WGS84(), WebMercator())
	require.NoError(t, err)

	inv, ok := fwd.(Inverter)
	require.True(t, ok)
	back, err := inv.Inverse()
	require.NoError(t, err)

	xs := []float64{0, 10, -73.98, 179.9, -120.5}
	ys := []float64{0, 45, 40.75, -60, 33.3}
	x := append([]float64(nil), xs...)
	y := append([]float64(nil), ys...)

	require.NoError(t, fwd.Transform(x, y, nil))
	assert.InDelta(t, 1113194.9, x[1], 1)
	assert.InDelta(t, 5621521.5, y[1], 1)

	require.NoError(t, back.Transform(x, y, nil))
	for i := range xs {
		assert.InDelta(t, xs[i], x[i], 1e-9)
		assert.InDelta(t, ys[i], y[i], 1e-9)
	}
}

func TestMercatorOutOfDomain(t *testing.T) {
	fwd, err := DefaultFactory.NewTransformer(WGS84(), WebMercator())
	require.NoError(t, err)

	err = fwd.Transform([]float64{0}, []float64{90}, nil)
	assert.ErrorIs(t, err, ErrOutOfDomain)
}

func TestUnsupportedPair(t *testing.T) {
	utm, err := Parse("EPSG:32631")
	require.NoError(t, err)

	_, err = DefaultFactory.NewTransformer(WGS84(), utm)
	assert.ErrorIs(t, err, ErrUnsupportedPair)
}

func TestAxisSwapAroundProjection(t *testing.T) {
	latFirst := WGS84().WithDataAxis(AxisAuthority)
	ct, err := DefaultFactory.NewTransformer(latFirst, WebMercator())
	require.NoError(t, err)

	// (lat, lon) input
	x, y, err := TransformPoint(ct, 45, 10)
	require.NoError(t, err)
	assert.InDelta(t, 1113194.9, x, 1)
	assert.InDelta(t, 5621521.5, y, 1)

	// Same system, different storage order: a plain swap
	swap, err := DefaultFactory.NewTransformer(latFirst, WGS84())
	require.NoError(t, err)
	x, y, err = TransformPoint(swap, 45, 10)
	require.NoError(t, err)
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 45.0, y)
}

func TestCompositeOrder(t *testing.T) {
	shift := &affine{dx: 1}
	double := &affine{scale: 2}

	c := NewComposite(shift, double)
	x, _, err := TransformPoint(c, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, x, "first shift then double")

	c = NewComposite(nil, double)
	x, _, err = TransformPoint(c, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, x)

	failing := NewComposite(&failingTransformer{}, double)
	_, _, err = TransformPoint(failing, 1, 0)
	assert.Error(t, err)
}

func TestGCPPolynomialExactOnAffineData(t *testing.T) {
	// georef = (pixel*0.5 + 100, 200 - line*0.25)
	var gcps []GCP
	for _, p := range [][2]float64{{0, 0}, {100, 0}, {0, 100}, {100, 100}, {50, 25}, {10, 90}, {70, 40}} {
		gcps = append(gcps, GCP{Pixel: p[0], Line: p[1], X: p[0]*0.5 + 100, Y: 200 - p[1]*0.25})
	}

	for _, order := range []int{1, 2} {
		ct, err := NewGCPTransformer(gcps, order, WGS84())
		require.NoError(t, err)
		x, y, err := TransformPoint(ct, 40, 60)
		require.NoError(t, err)
		assert.InDelta(t, 120.0, x, 1e-6, "order %d", order)
		assert.InDelta(t, 185.0, y, 1e-6, "order %d", order)
	}

	_, err := NewGCPTransformer(gcps, 3, nil)
	assert.Error(t, err, "order 3 needs 10 points")
}

func TestGCPThinPlateSplineInterpolates(t *testing.T) {
	gcps := []GCP{
		{Pixel: 0, Line: 0, X: 0, Y: 0},
		{Pixel: 10, Line: 0, X: 11, Y: 0.5},
		{Pixel: 0, Line: 10, X: -0.5, Y: 9},
		{Pixel: 10, Line: 10, X: 10, Y: 10},
		{Pixel: 5, Line: 5, X: 5.5, Y: 4.5},
	}
	ct, err := NewGCPTransformer(gcps, TPS, nil)
	require.NoError(t, err)

	for _, g := range gcps {
		x, y, err := TransformPoint(ct, g.Pixel, g.Line)
		require.NoError(t, err)
		assert.InDelta(t, g.X, x, 1e-6)
		assert.InDelta(t, g.Y, y, 1e-6)
	}
}

func TestGCPCollinearIsSingular(t *testing.T) {
	gcps := []GCP{
		{Pixel: 0, Line: 0, X: 0, Y: 0},
		{Pixel: 1, Line: 1, X: 1, Y: 1},
		{Pixel: 2, Line: 2, X: 2, Y: 2},
	}
	_, err := NewGCPTransformer(gcps, 1, nil)
	assert.True(t, errors.Is(err, ErrSingularSystem))

	// more points than terms goes through the least squares path
	for i := 3; i < 8; i++ {
		gcps = append(gcps, GCP{Pixel: float64(i), Line: float64(i), X: float64(i), Y: float64(i)})
	}
	_, err = NewGCPTransformer(gcps, 1, nil)
	assert.True(t, errors.Is(err, ErrSingularSystem), "%v", err)
}

func TestGCPLeastSquaresAveragesNoise(t *testing.T) {
	// georef = (2*pixel, 3*line) with residuals of +-0.1 that cancel out
	var gcps []GCP
	sign := 1.0
	for _, p := range [][2]float64{{0, 0}, {10, 0}, {0, 10}, {10, 10}} {
		gcps = append(gcps, GCP{Pixel: p[0], Line: p[1], X: 2*p[0] + 0.1*sign, Y: 3 * p[1]})
		gcps = append(gcps, GCP{Pixel: p[0], Line: p[1], X: 2*p[0] - 0.1*sign, Y: 3 * p[1]})
		sign = -sign
	}
	ct, err := NewGCPTransformer(gcps, 1, nil)
	require.NoError(t, err)
	x, y, err := TransformPoint(ct, 5, 5)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, x, 1e-9)
	assert.InDelta(t, 15.0, y, 1e-9)
}

func TestTransformCache(t *testing.T) {
	builds := 0
	factory := FactoryFunc(func(src, dst *CRS) (Transformer, error) {
		builds++
		return DefaultFactory.NewTransformer(src, dst)
	})
	cache := NewTransformCache(factory, 2)

	a, b, m := WGS84(), WGS84(), WebMercator()

	ct1, err := cache.Get(a, m)
	require.NoError(t, err)
	ct2, err := cache.Get(a, m)
	require.NoError(t, err)
	assert.Same(t, ct1, ct2)
	assert.Equal(t, 1, builds)

	// Equal but distinct descriptors are distinct keys
	_, err = cache.Get(b, m)
	require.NoError(t, err)
	assert.Equal(t, 2, builds)

	// Third key evicts the least recently used (a -> m)
	_, err = cache.Get(m, a)
	require.NoError(t, err)
	_, err = cache.Get(a, m)
	require.NoError(t, err)
	assert.Equal(t, 4, builds)

	stats := cache.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, 4, stats.Misses)
}

type affine struct {
	dx, scale float64
}

func (a *affine) Transform(x, y, z []float64) error {
	for i := range x {
		x[i] += a.dx
		if a.scale != 0 {
			x[i] *= a.scale
		}
	}
	return nil
}
func (a *affine) Source() *CRS { return nil }
func (a *affine) Target() *CRS { return nil }

type failingTransformer struct{}

func (failingTransformer) Transform(x, y, z []float64) error { return ErrOutOfDomain }
func (failingTransformer) Source() *CRS                      { return nil }
func (failingTransformer) Target() *CRS                      { return nil }
