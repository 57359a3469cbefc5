package translate

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/ogrtranslate/internal/drivers/memory"
	"github.com/beetlebugorg/ogrtranslate/internal/vector"
)

type recorder struct {
	values []float64
	stopAt int
}

func (r *recorder) fn(frac float64, _ string) bool {
	r.values = append(r.values, frac)
	return r.stopAt == 0 || len(r.values) < r.stopAt
}

func assertMonotonic(t *testing.T, values []float64) {
	t.Helper()
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			t.Fatalf("progress went back from %g to %g at call %d: %v", values[i-1], values[i], i, values)
		}
	}
	for _, v := range values {
		if v < 0 || v > 1 {
			t.Fatalf("progress out of range: %v", values)
		}
	}
}

func TestCountProgress(t *testing.T) {
	var r recorder
	p := &countProgress{fn: r.fn, start: 0.5, end: 1, total: 4}
	for i := int64(1); i <= 5; i++ {
		p.record(i)
	}
	p.done()
	assert.Equal(t, []float64{0.625, 0.75, 0.875, 1, 1, 1}, r.values)
}

// streamLayer reports a byte offset that advances with each read.
type streamLayer struct {
	*memory.Layer
	offset, size int64
}

func (s *streamLayer) ByteOffset() int64 { return s.offset }
func (s *streamLayer) ByteSize() int64   { return s.size }

func (s *streamLayer) Capabilities() vector.LayerCapabilities {
	c := s.Layer.Capabilities()
	c.FastFeatureCount = false
	return c
}

func TestByteProgressIsMonotonic(t *testing.T) {
	var r recorder
	sl := &streamLayer{size: 1000}
	p := &byteProgress{fn: r.fn, start: 0.25, end: 0.75, src: sl, every: 2}
	for i := int64(1); i <= 10; i++ {
		sl.offset = i * 100
		p.record(i)
	}
	p.done()

	require.Len(t, r.values, 6)
	assertMonotonic(t, r.values)
	assert.InDelta(t, 0.35, r.values[0], 1e-9)
	assert.InDelta(t, 0.75, r.values[len(r.values)-1], 1e-9)
}

func TestProgressPlanShares(t *testing.T) {
	ds := memory.New("src", memory.DefaultOptions())
	small := ds.AddLayer("small", &vector.Schema{})
	big := ds.AddLayer("big", &vector.Schema{})
	for i := 0; i < 1; i++ {
		require.NoError(t, small.CreateFeature(vector.NewFeature(small.Schema())))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, big.CreateFeature(vector.NewFeature(big.Schema())))
	}

	var r recorder
	o := DefaultOptions()
	o.Progress = r.fn
	plan := newProgressPlan(&o, []vector.Layer{small, big}, newLogger(&o))
	require.NotNil(t, plan)

	start, end := plan.bounds(0)
	assert.Equal(t, 0.0, start)
	assert.Equal(t, 0.25, end)
	plan.advance(0)
	start, end = plan.bounds(1)
	assert.Equal(t, 0.25, start)
	assert.Equal(t, 1.0, end)

	// the list column scan fills the first half of the share
	scan := plan.scan(1)
	scan(1)
	assert.Equal(t, []float64{0.625}, r.values)
	p := plan.layer(1, big, true)
	p.record(3)
	assert.Equal(t, 1.0, r.values[len(r.values)-1])
}

func TestProgressPlanStreamedLayer(t *testing.T) {
	ds := memory.New("src", memory.DefaultOptions())
	counted := ds.AddLayer("counted", &vector.Schema{})
	for i := 0; i < 2; i++ {
		require.NoError(t, counted.CreateFeature(vector.NewFeature(counted.Schema())))
	}
	streamed := &streamLayer{Layer: ds.AddLayer("streamed", &vector.Schema{}), size: 10}

	o := DefaultOptions()
	o.Progress = func(float64, string) bool { return true }
	plan := newProgressPlan(&o, []vector.Layer{counted, streamed}, newLogger(&o))
	require.NotNil(t, plan)

	// a streamed layer weighs as much as an average counted one
	start, end := plan.bounds(0)
	assert.Equal(t, 0.0, start)
	assert.Equal(t, 0.5, end)
	assert.IsType(t, &byteProgress{}, plan.layer(1, streamed, false))
}

func TestProgressPlanTurnedOff(t *testing.T) {
	ds := memory.New("src", memory.DefaultOptions())
	plain := &uncountedLayer{ds.AddLayer("plain", &vector.Schema{})}

	var buf bytes.Buffer
	o := DefaultOptions()
	o.Progress = func(float64, string) bool { return true }
	o.Logger = log.New(&buf, "", 0)
	assert.Nil(t, newProgressPlan(&o, []vector.Layer{plain}, newLogger(&o)))
	assert.Contains(t, buf.String(), "Progress turned off as fast feature count is not available.")

	var nilPlan *progressPlan
	assert.IsType(t, noProgress{}, nilPlan.layer(0, plain, false))
	assert.Nil(t, nilPlan.scan(0))
}

type uncountedLayer struct {
	*memory.Layer
}

func (u *uncountedLayer) Capabilities() vector.LayerCapabilities {
	c := u.Layer.Capabilities()
	c.FastFeatureCount = false
	return c
}
