package srs

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Transformer maps coordinate arrays from a source CRS to a target CRS.
//
// The slices are transformed in place and always have the same length; z may
// be nil for 2D data. An error means at least one point could not be
// transformed and the content of the slices is unspecified.
type Transformer interface {
	Transform(x, y, z []float64) error
	Source() *CRS
	Target() *CRS
}

// Inverter is implemented by transformers that can build their inverse.
type Inverter interface {
	Inverse() (Transformer, error)
}

// Factory builds transformers between two coordinate systems.
type Factory interface {
	NewTransformer(src, dst *CRS) (Transformer, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(src, dst *CRS) (Transformer, error)

// NewTransformer calls f(src, dst).
func (f FactoryFunc) NewTransformer(src, dst *CRS) (Transformer, error) {
	return f(src, dst)
}

// DefaultFactory knows identity operations, axis swaps and the spherical
// Mercator projection between WGS 84 and EPSG:3857.
var DefaultFactory Factory = FactoryFunc(newDefaultTransformer)

func newDefaultTransformer(src, dst *CRS) (Transformer, error) {
	if src == nil || dst == nil {
		return nil, fmt.Errorf("%w: missing source or target", ErrUnsupportedPair)
	}

	var core Transformer
	switch {
	case src.IsSame(dst):
		core = &identity{src: src, dst: dst}
	case src.isWGS84Geographic() && dst.isWebMercator():
		core = &projection{src: src, dst: dst, fn: project.WGS84.ToMercator, forward: true}
	case src.isWebMercator() && dst.isWGS84Geographic():
		core = &projection{src: src, dst: dst, fn: project.Mercator.ToWGS84}
	default:
		return nil, fmt.Errorf("%w: %s -> %s", ErrUnsupportedPair, src, dst)
	}

	// Data stored latitude first is swapped around the core operation.
	if src.SwapsAxes() {
		core = NewComposite(NewAxisSwap(src, src.WithDataAxis(AxisTraditional)), core)
	}
	if dst.SwapsAxes() {
		core = NewComposite(core, NewAxisSwap(dst.WithDataAxis(AxisTraditional), dst))
	}
	return core, nil
}

type identity struct {
	src, dst *CRS
}

func (t *identity) Transform(x, y, z []float64) error { return nil }
func (t *identity) Source() *CRS                      { return t.src }
func (t *identity) Target() *CRS                      { return t.dst }

func (t *identity) Inverse() (Transformer, error) {
	return &identity{src: t.dst, dst: t.src}, nil
}

// projection applies an orb projection function point by point.
type projection struct {
	src, dst *CRS
	fn       orb.Projection
	forward  bool
}

func (t *projection) Transform(x, y, z []float64) error {
	for i := range x {
		if t.forward && math.Abs(y[i]) >= 90 {
			return fmt.Errorf("%w: latitude %g", ErrOutOfDomain, y[i])
		}
		p := t.fn(orb.Point{x[i], y[i]})
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return fmt.Errorf("%w: (%g, %g)", ErrOutOfDomain, x[i], y[i])
		}
		x[i], y[i] = p[0], p[1]
	}
	return nil
}

func (t *projection) Source() *CRS { return t.src }
func (t *projection) Target() *CRS { return t.dst }

func (t *projection) Inverse() (Transformer, error) {
	if t.forward {
		return &projection{src: t.dst, dst: t.src, fn: project.Mercator.ToWGS84}, nil
	}
	return &projection{src: t.dst, dst: t.src, fn: project.WGS84.ToMercator, forward: true}, nil
}

// AxisSwap exchanges the first two axes of every coordinate.
type AxisSwap struct {
	src, dst *CRS
}

// NewAxisSwap returns a transformer that swaps x and y.
func NewAxisSwap(src, dst *CRS) *AxisSwap {
	return &AxisSwap{src: src, dst: dst}
}

func (t *AxisSwap) Transform(x, y, z []float64) error {
	for i := range x {
		x[i], y[i] = y[i], x[i]
	}
	return nil
}

func (t *AxisSwap) Source() *CRS { return t.src }
func (t *AxisSwap) Target() *CRS { return t.dst }

func (t *AxisSwap) Inverse() (Transformer, error) {
	return &AxisSwap{src: t.dst, dst: t.src}, nil
}

// Composite chains two transformers: First runs before Second. Either may be
// nil, in which case it is skipped.
type Composite struct {
	First  Transformer
	Second Transformer
}

// NewComposite returns first followed by second.
func NewComposite(first, second Transformer) *Composite {
	return &Composite{First: first, Second: second}
}

func (t *Composite) Transform(x, y, z []float64) error {
	if t.First != nil {
		if err := t.First.Transform(x, y, z); err != nil {
			return err
		}
	}
	if t.Second != nil {
		return t.Second.Transform(x, y, z)
	}
	return nil
}

func (t *Composite) Source() *CRS {
	if t.First != nil {
		return t.First.Source()
	}
	if t.Second != nil {
		return t.Second.Source()
	}
	return nil
}

func (t *Composite) Target() *CRS {
	if t.Second != nil {
		return t.Second.Target()
	}
	if t.First != nil {
		return t.First.Target()
	}
	return nil
}

func (t *Composite) Inverse() (Transformer, error) {
	var first, second Transformer
	if t.Second != nil {
		inv, ok := t.Second.(Inverter)
		if !ok {
			return nil, ErrNotInvertible
		}
		var err error
		if first, err = inv.Inverse(); err != nil {
			return nil, err
		}
	}
	if t.First != nil {
		inv, ok := t.First.(Inverter)
		if !ok {
			return nil, ErrNotInvertible
		}
		var err error
		if second, err = inv.Inverse(); err != nil {
			return nil, err
		}
	}
	return &Composite{First: first, Second: second}, nil
}

// TransformPoint is a convenience wrapper transforming a single coordinate.
func TransformPoint(t Transformer, x, y float64) (float64, float64, error) {
	xs, ys := []float64{x}, []float64{y}
	if err := t.Transform(xs, ys, nil); err != nil {
		return 0, 0, err
	}
	return xs[0], ys[0], nil
}
