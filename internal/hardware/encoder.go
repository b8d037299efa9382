package hardware

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/go-logr/logr"
)

// Counter is a source of encoder counts.
type Counter interface {
	Count() int32
}

// DefaultGlitchFilter drops A edges closer than this to the previous one.
const DefaultGlitchFilter = 13 * time.Microsecond

// Quadrature decodes a half-quad encoder: both edges of A are counted, the
// direction is given by B.
type Quadrature struct {
	count atomic.Int32

	mu     sync.Mutex
	filter time.Duration
	last   time.Time
}

func NewQuadrature(filter time.Duration) *Quadrature {
	return &Quadrature{filter: filter}
}

// Edge records an edge on A seen at the given time with the line levels
// read right after it.
func (q *Quadrature) Edge(at time.Time, a, b bool) {
	q.mu.Lock()
	if !q.last.IsZero() && at.Sub(q.last) < q.filter {
		q.mu.Unlock()
		return
	}
	q.last = at
	q.mu.Unlock()

	q.count.Add(halfQuadStep(a, b))
}

func (q *Quadrature) Count() int32 {
	return q.count.Load()
}

func halfQuadStep(a, b bool) int32 {
	if a != b {
		return 1
	}
	return -1
}

// SimCounter is a Counter set by hand.
type SimCounter struct {
	atomic.Int32
}

func (c *SimCounter) Count() int32 {
	return c.Load()
}

// EncoderReader copies the encoder count into the device state.
type EncoderReader struct {
	log     logr.Logger
	counter Counter
	last    int32
}

func NewEncoderReader(log logr.Logger, counter Counter) *EncoderReader {
	return &EncoderReader{log: log, counter: counter}
}

func (e *EncoderReader) Begin() error {
	if e.counter == nil {
		return errors.New("no encoder counter")
	}
	return nil
}

func (e *EncoderReader) Update(state *device.State) {
	if e.counter == nil {
		return
	}
	pos := e.counter.Count()
	if pos == e.last {
		return
	}
	e.log.V(2).Info("Encoder moved", "from", e.last, "to", pos)
	state.EncoderPos = pos
	e.last = pos
}
