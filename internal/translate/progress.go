package translate

import "github.com/beetlebugorg/ogrtranslate/internal/vector"

// progress reports the advance of one layer into its share of the
// overall bar, [start, end).
type progress interface {
	// record is called after every record read; false stops the run.
	record(read int64) bool
	// done is called once the layer is exhausted.
	done() bool
}

type noProgress struct{}

func (noProgress) record(int64) bool { return true }
func (noProgress) done() bool        { return true }

// countProgress reports read / total.
type countProgress struct {
	fn         ProgressFunc
	start, end float64
	total      int64
}

func (p *countProgress) record(read int64) bool {
	frac := 1.0
	if p.total > 0 {
		frac = min(float64(read)/float64(p.total), 1)
	}
	return p.fn(p.start+(p.end-p.start)*frac, "")
}

func (p *countProgress) done() bool { return p.fn(p.end, "") }

// byteProgress reports how far a streaming source has read into its input,
// sampled every `every` records.
type byteProgress struct {
	fn         ProgressFunc
	start, end float64
	src        vector.ByteOffsetReporter
	every      int64
}

func (p *byteProgress) record(read int64) bool {
	if read%p.every != 0 {
		return true
	}
	return p.fn(p.start+(p.end-p.start)*p.fraction(), "")
}

func (p *byteProgress) fraction() float64 {
	size := p.src.ByteSize()
	if size <= 0 {
		return 0
	}
	return min(float64(p.src.ByteOffset())/float64(size), 1)
}

func (p *byteProgress) done() bool { return p.fn(p.end, "") }

// progressPlan splits the overall bar between the layers of a sequential
// run. A counted layer gets a share proportional to its count. A layer that
// can only report byte offsets weighs as much as an average counted one.
type progressPlan struct {
	fn    ProgressFunc
	every int64

	counts   []int64
	streamed []bool
	weights  []float64
	total    float64
	acc      float64
}

// newProgressPlan returns nil when progress is not requested or cannot be
// reported, logging why in the second case.
func newProgressPlan(o *Options, layers []vector.Layer, log *logger) *progressPlan {
	if o.Progress == nil {
		return nil
	}
	p := &progressPlan{
		fn:       o.Progress,
		every:    int64(max(o.ProgressSampleEvery, 1)),
		counts:   make([]int64, len(layers)),
		streamed: make([]bool, len(layers)),
		weights:  make([]float64, len(layers)),
	}
	var counted int
	var sum float64
	for i, l := range layers {
		_, bytes := l.(vector.ByteOffsetReporter)
		switch {
		case l.Capabilities().FastFeatureCount:
			n := max(l.FeatureCount(false), 0)
			if o.Limit >= 0 {
				n = min(n, o.Limit)
			}
			p.counts[i] = n
			p.weights[i] = float64(n)
			sum += float64(n)
			counted++
		case bytes:
			p.streamed[i] = true
		default:
			log.warnf("Progress turned off as fast feature count is not available.")
			return nil
		}
	}
	avg := 1.0
	if counted > 0 && sum > 0 {
		avg = sum / float64(counted)
	}
	for i := range layers {
		if p.streamed[i] {
			p.weights[i] = avg
		}
		p.total += p.weights[i]
	}
	return p
}

// layer returns the reporter of layer i. split is set when the first half
// of the share went to the list column pre-scan.
func (p *progressPlan) layer(i int, src vector.Layer, split bool) progress {
	if p == nil {
		return noProgress{}
	}
	start, end := p.bounds(i)
	if split {
		start = (start + end) / 2
	}
	if p.streamed[i] {
		if br, ok := src.(vector.ByteOffsetReporter); ok {
			return &byteProgress{fn: p.fn, start: start, end: end, src: br, every: p.every}
		}
	}
	return &countProgress{fn: p.fn, start: start, end: end, total: p.counts[i]}
}

// scan returns the callback given to the list column pre-scan of layer i,
// which fills the first half of the layer's share.
func (p *progressPlan) scan(i int) func(float64) bool {
	if p == nil {
		return nil
	}
	start, end := p.bounds(i)
	mid := (start + end) / 2
	return func(frac float64) bool {
		return p.fn(start+frac*(mid-start), "")
	}
}

// advance moves the start of the next layer past layer i.
func (p *progressPlan) advance(i int) {
	if p != nil {
		p.acc += p.weights[i]
	}
}

func (p *progressPlan) bounds(i int) (start, end float64) {
	if p.total <= 0 {
		return 1, 1
	}
	return p.acc / p.total, (p.acc + p.weights[i]) / p.total
}
