package srs

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// GCP is a ground control point: a raster position (pixel, line) tied to a
// georeferenced position (X, Y, Z).
type GCP struct {
	ID    string  `yaml:"id,omitempty"`
	Pixel float64 `yaml:"pixel"`
	Line  float64 `yaml:"line"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Z     float64 `yaml:"z,omitempty"`
}

// TPS selects a thin plate spline instead of a polynomial fit.
const TPS = -1

// ErrSingularSystem indicates the control points do not determine a unique fit.
var ErrSingularSystem = errors.New("srs: control points do not determine a transformation")

// GCPTransformer maps (pixel, line) coordinates to georeferenced coordinates
// fitted from a set of ground control points.
type GCPTransformer struct {
	order  int
	target *CRS

	// Polynomial fit: coefficients applied to normalized inputs.
	cx, cy         []float64
	offX, offY     float64
	scaleX, scaleY float64

	// Thin plate spline: per-point weights followed by the affine part.
	pts    [][2]float64
	wx, wy []float64
}

// minGCPs returns the number of control points needed for a polynomial order.
func minGCPs(order int) int {
	return (order + 1) * (order + 2) / 2
}

// NewGCPTransformer fits a transformation of the given polynomial order (1 to 3)
// or a thin plate spline (order TPS). target is the CRS of the X/Y values and
// may be nil.
func NewGCPTransformer(gcps []GCP, order int, target *CRS) (*GCPTransformer, error) {
	if order == 0 {
		order = 1
	}
	if order != TPS && (order < 1 || order > 3) {
		return nil, fmt.Errorf("srs: unsupported GCP polynomial order %d", order)
	}

	need := 3
	if order != TPS {
		need = minGCPs(order)
	}
	if len(gcps) < need {
		return nil, fmt.Errorf("srs: %d control points given, order %d needs at least %d",
			len(gcps), order, need)
	}

	t := &GCPTransformer{order: order, target: target}
	if order == TPS {
		if err := t.fitTPS(gcps); err != nil {
			return nil, err
		}
		return t, nil
	}
	if err := t.fitPolynomial(gcps); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *GCPTransformer) fitPolynomial(gcps []GCP) error {
	// Normalize pixel/line to keep the design matrix well conditioned
	minX, maxX := gcps[0].Pixel, gcps[0].Pixel
	minY, maxY := gcps[0].Line, gcps[0].Line
	for _, g := range gcps[1:] {
		minX, maxX = math.Min(minX, g.Pixel), math.Max(maxX, g.Pixel)
		minY, maxY = math.Min(minY, g.Line), math.Max(maxY, g.Line)
	}
	t.offX, t.offY = (minX+maxX)/2, (minY+maxY)/2
	t.scaleX, t.scaleY = (maxX-minX)/2, (maxY-minY)/2
	if t.scaleX == 0 {
		t.scaleX = 1
	}
	if t.scaleY == 0 {
		t.scaleY = 1
	}

	a := mat.NewDense(len(gcps), minGCPs(t.order), nil)
	b := mat.NewDense(len(gcps), 2, nil)
	for i, g := range gcps {
		a.SetRow(i, polyTerms(t.order, (g.Pixel-t.offX)/t.scaleX, (g.Line-t.offY)/t.scaleY))
		b.Set(i, 0, g.X)
		b.Set(i, 1, g.Y)
	}

	// least squares through QR; exact when there are just enough points
	var coef mat.Dense
	if err := coef.Solve(a, b); err != nil {
		return singular(err)
	}
	t.cx = mat.Col(nil, 0, &coef)
	t.cy = mat.Col(nil, 1, &coef)
	return nil
}

func (t *GCPTransformer) fitTPS(gcps []GCP) error {
	n := len(gcps)
	a := mat.NewDense(n+3, n+3, nil)
	b := mat.NewDense(n+3, 2, nil)

	t.pts = make([][2]float64, n)
	for i, g := range gcps {
		t.pts[i] = [2]float64{g.Pixel, g.Line}
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a.Set(i, j, tpsKernel(t.pts[i], t.pts[j]))
		}
		a.Set(i, n, 1)
		a.Set(i, n+1, t.pts[i][0])
		a.Set(i, n+2, t.pts[i][1])
		a.Set(n, i, 1)
		a.Set(n+1, i, t.pts[i][0])
		a.Set(n+2, i, t.pts[i][1])
		b.Set(i, 0, gcps[i].X)
		b.Set(i, 1, gcps[i].Y)
	}

	var w mat.Dense
	if err := w.Solve(a, b); err != nil {
		return singular(err)
	}
	t.wx = mat.Col(nil, 0, &w)
	t.wy = mat.Col(nil, 1, &w)
	return nil
}

// singular maps a rank deficient solve to ErrSingularSystem.
func singular(err error) error {
	var cond mat.Condition
	if errors.As(err, &cond) {
		return fmt.Errorf("%w (condition number %g)", ErrSingularSystem, float64(cond))
	}
	return err
}

// Transform maps pixel/line coordinates in x and y to georeferenced positions.
func (t *GCPTransformer) Transform(x, y, z []float64) error {
	for i := range x {
		if t.order == TPS {
			x[i], y[i] = t.evalTPS(x[i], y[i])
			continue
		}
		row := polyTerms(t.order, (x[i]-t.offX)/t.scaleX, (y[i]-t.offY)/t.scaleY)
		var gx, gy float64
		for k, v := range row {
			gx += t.cx[k] * v
			gy += t.cy[k] * v
		}
		x[i], y[i] = gx, gy
	}
	return nil
}

func (t *GCPTransformer) evalTPS(px, py float64) (float64, float64) {
	n := len(t.pts)
	p := [2]float64{px, py}
	gx := t.wx[n] + t.wx[n+1]*px + t.wx[n+2]*py
	gy := t.wy[n] + t.wy[n+1]*px + t.wy[n+2]*py
	for i := 0; i < n; i++ {
		u := tpsKernel(p, t.pts[i])
		gx += t.wx[i] * u
		gy += t.wy[i] * u
	}
	return gx, gy
}

// Source returns nil: GCP input is raster space.
func (t *GCPTransformer) Source() *CRS { return nil }

// Target returns the CRS of the control point positions.
func (t *GCPTransformer) Target() *CRS { return t.target }

// polyTerms returns the monomials of a bivariate polynomial up to order.
func polyTerms(order int, x, y float64) []float64 {
	terms := []float64{1, x, y}
	if order >= 2 {
		terms = append(terms, x*x, x*y, y*y)
	}
	if order >= 3 {
		terms = append(terms, x*x*x, x*x*y, x*y*y, y*y*y)
	}
	return terms
}

func tpsKernel(a, b [2]float64) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	r2 := dx*dx + dy*dy
	if r2 == 0 {
		return 0
	}
	return r2 * math.Log(r2)
}
