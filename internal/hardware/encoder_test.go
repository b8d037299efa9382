package hardware

import (
	"testing"
	"time"

	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/go-logr/logr/testr"
)

func TestHalfQuadDirection(t *testing.T) {
	q := NewQuadrature(0)
	t0 := time.Unix(0, 0)

	// A leads B: rising A with B low, falling A with B high
	q.Edge(t0, true, false)
	q.Edge(t0.Add(time.Millisecond), false, true)
	if got := q.Count(); got != 2 {
		t.Fatalf("forward count = %d, want 2", got)
	}

	// B leads A
	q.Edge(t0.Add(2*time.Millisecond), true, true)
	q.Edge(t0.Add(3*time.Millisecond), false, false)
	q.Edge(t0.Add(4*time.Millisecond), true, true)
	if got := q.Count(); got != -1 {
		t.Fatalf("count after reverse = %d, want -1", got)
	}
}

func TestQuadratureGlitchFilter(t *testing.T) {
	q := NewQuadrature(DefaultGlitchFilter)
	t0 := time.Unix(0, 0)

	q.Edge(t0, true, false)
	q.Edge(t0.Add(5*time.Microsecond), false, true)
	if got := q.Count(); got != 1 {
		t.Fatalf("count = %d, want glitch dropped", got)
	}
	q.Edge(t0.Add(20*time.Microsecond), false, true)
	if got := q.Count(); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
}

func TestEncoderReaderWritesOnChange(t *testing.T) {
	var c SimCounter
	e := NewEncoderReader(testr.New(t), &c)
	if err := e.Begin(); err != nil {
		t.Fatal(err)
	}

	var s device.State
	s.EncoderPos = 7 // sentinel: untouched while the count does not move
	e.Update(&s)
	if s.EncoderPos != 7 {
		t.Fatalf("EncoderPos = %d, want untouched", s.EncoderPos)
	}

	c.Store(-42)
	e.Update(&s)
	if s.EncoderPos != -42 {
		t.Fatalf("EncoderPos = %d, want -42", s.EncoderPos)
	}
}

func TestEncoderReaderWithoutCounter(t *testing.T) {
	e := NewEncoderReader(testr.New(t), nil)
	if err := e.Begin(); err == nil {
		t.Fatal("Begin without counter should fail")
	}
	var s device.State
	e.Update(&s)
}
