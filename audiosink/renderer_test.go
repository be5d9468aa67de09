package audiosink

import (
	"testing"
	"time"
)

const (
	testRate = 44100
	testBps  = 4
)

func newTestRenderer() (*Renderer, *fakeRing) {
	spec := Spec{Rate: testRate, BytesPerSample: testBps, SegSize: 4096, SegTotal: 8, SegLatency: 1}
	rb := newFakeRing(spec)
	clock := NewProvidedClock(rb)
	engine := &SlavingEngine{Method: SlaveNone, Clock: clock, SegTime: 10 * time.Millisecond, SegSamples: int64(spec.SamplesPerSeg())}
	r := NewRenderer(rb, clock, engine, nil)
	r.Configure(0, 0, true, Clock(clock)) // pipelineClock == clock -> not slaved
	return r, rb
}

func tsBuffer(ts time.Duration, samples int, discont bool) Buffer {
	return Buffer{Data: make([]byte, samples*testBps), Timestamp: &ts, Discont: discont}
}

func nextSample(r *Renderer) uint64 {
	if r.align.NextSample == nil {
		return 0
	}
	return *r.align.NextSample
}

// S1: three contiguous buffers with exact timestamps produce a monotone
// next_sample and no alignment.
func TestScenarioContiguous(t *testing.T) {
	r, _ := newTestRenderer()
	seg := Segment{Rate: 1}

	stamps := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond}
	want := []uint64{4410, 8820, 13230}

	for i, ts := range stamps {
		if err := r.Render(tsBuffer(ts, 4410, false), seg); err != nil {
			t.Fatalf("buffer %d: %v", i, err)
		}
		if got := nextSample(r); got != want[i] {
			t.Errorf("buffer %d: next_sample = %d, want %d", i, got, want[i])
		}
		if r.align.LastAlign != 0 {
			t.Errorf("buffer %d: last_align = %d, want 0", i, r.align.LastAlign)
		}
	}
}

// S2: a 10ms drift within tolerance is absorbed by alignment, not a resync.
func TestScenarioSmallDrift(t *testing.T) {
	r, _ := newTestRenderer()
	seg := Segment{Rate: 1}

	if err := r.Render(tsBuffer(0, 4410, false), seg); err != nil {
		t.Fatal(err)
	}
	warned := false
	r.warn = func(time.Duration) { warned = true }

	if err := r.Render(tsBuffer(110*time.Millisecond, 4410, false), seg); err != nil {
		t.Fatal(err)
	}

	if r.align.LastAlign != -441 {
		t.Errorf("last_align = %d, want -441", r.align.LastAlign)
	}
	if got := nextSample(r); got != 8820 {
		t.Errorf("next_sample = %d, want 8820", got)
	}
	if warned {
		t.Error("unexpected warning on a small drift")
	}
}

// S3: a 600ms drift exceeds tolerance, forcing a resync with a warning
// instead of an alignment.
func TestScenarioLargeDrift(t *testing.T) {
	r, _ := newTestRenderer()
	seg := Segment{Rate: 1}

	if err := r.Render(tsBuffer(0, 4410, false), seg); err != nil {
		t.Fatal(err)
	}

	var drift time.Duration
	r.warn = func(d time.Duration) { drift = d }

	if err := r.Render(tsBuffer(700*time.Millisecond, 4410, false), seg); err != nil {
		t.Fatal(err)
	}

	if drift < 590*time.Millisecond || drift > 610*time.Millisecond {
		t.Errorf("drift = %v, want ~600ms", drift)
	}
	if r.align.LastAlign != 0 {
		t.Errorf("last_align = %d, want unchanged 0", r.align.LastAlign)
	}
	if got, want := nextSample(r), uint64(30870+4410); got != want {
		t.Errorf("next_sample = %d, want %d", got, want)
	}
}

// S4: a discont buffer skips alignment even when the clock-implied position
// would otherwise have been in range for it.
func TestScenarioDiscont(t *testing.T) {
	r, _ := newTestRenderer()
	seg := Segment{Rate: 1}

	if err := r.Render(tsBuffer(0, 4410, false), seg); err != nil {
		t.Fatal(err)
	}
	r.align.LastAlign = 7 // sentinel: must survive untouched

	if err := r.Render(tsBuffer(110*time.Millisecond, 4410, true), seg); err != nil {
		t.Fatal(err)
	}

	if r.align.LastAlign != 7 {
		t.Errorf("last_align = %d, want unchanged 7", r.align.LastAlign)
	}
	if got, want := nextSample(r), uint64(4851+4410); got != want {
		t.Errorf("next_sample = %d, want %d", got, want)
	}
}

// S5: flush-stop resyncs both next_sample and avg_skew together.
func TestScenarioFlushStop(t *testing.T) {
	r, _ := newTestRenderer()
	seg := Segment{Rate: 1}

	for _, ts := range []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond} {
		if err := r.Render(tsBuffer(ts, 4410, false), seg); err != nil {
			t.Fatal(err)
		}
	}
	skew := int64(3)
	r.align.AvgSkew = &skew

	r.FlushStop()

	if r.align.NextSample != nil {
		t.Error("next_sample not cleared by flush-stop")
	}
	if r.align.AvgSkew != nil {
		t.Error("avg_skew not cleared by flush-stop")
	}

	// idempotence: a second flush-stop is a no-op producing the same state.
	r.FlushStop()
	if r.align.NextSample != nil || r.align.AvgSkew != nil {
		t.Error("second flush-stop changed state")
	}
}

// An unbounded segment (Stop == 0, the "no value" sentinel every real
// caller uses) must never trigger the end-of-segment Start(): only a
// buffer whose pre-clip stop reaches a genuinely bounded segment's end
// should do that.
func TestEndOfSegmentStartUnboundedSegment(t *testing.T) {
	r, rb := newTestRenderer()
	seg := Segment{Rate: 1}

	for _, ts := range []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond} {
		if err := r.Render(tsBuffer(ts, 4410, false), seg); err != nil {
			t.Fatal(err)
		}
	}
	if rb.starts != 0 {
		t.Errorf("starts = %d, want 0 for an unbounded segment", rb.starts)
	}
}

// A bounded segment whose stop the buffer reaches or exceeds must trigger
// Start(), guaranteeing playback of a short segment's residue (spec.md
// §4.E step 12); a buffer that stays strictly inside the segment must not.
func TestEndOfSegmentStartBoundedSegment(t *testing.T) {
	r, rb := newTestRenderer()
	seg := Segment{Rate: 1, Stop: 300 * time.Millisecond}

	if err := r.Render(tsBuffer(0, 4410, false), seg); err != nil {
		t.Fatal(err)
	}
	if rb.starts != 0 {
		t.Errorf("starts = %d, want 0 before the segment ends", rb.starts)
	}

	if err := r.Render(tsBuffer(290*time.Millisecond, 4410, false), seg); err != nil {
		t.Fatal(err)
	}
	if rb.starts != 1 {
		t.Errorf("starts = %d, want 1 once the buffer reaches the segment's stop", rb.starts)
	}
}

// invariant 1: contiguous buffers keep last_align at zero and next_sample
// exactly tracks the cumulative sample count.
func TestInvariantContiguousSum(t *testing.T) {
	r, _ := newTestRenderer()
	seg := Segment{Rate: 1}

	var total int64
	const bufSamples = 512
	for i := 0; i < 50; i++ {
		ts := samplesToDuration(total, testRate)
		if err := r.Render(tsBuffer(ts, bufSamples, false), seg); err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		total += bufSamples
		if r.align.LastAlign != 0 {
			t.Fatalf("iteration %d: last_align = %d, want 0", i, r.align.LastAlign)
		}
		if got := int64(nextSample(r)); got != total {
			t.Fatalf("iteration %d: next_sample = %d, want %d", i, got, total)
		}
	}
}

// invariant 5: the provided clock never reports a decreasing time.
func TestProvidedClockMonotone(t *testing.T) {
	spec := Spec{Rate: testRate, BytesPerSample: testBps, SegSize: 4096, SegTotal: 8}
	rb := newFakeRing(spec)
	clock := NewProvidedClock(rb)

	var last time.Duration
	for i := 0; i < 1000; i++ {
		rb.samples += 100
		now, ok := clock.Now()
		if !ok {
			t.Fatalf("iteration %d: clock not ok", i)
		}
		if now < last {
			t.Fatalf("iteration %d: clock went backwards: %v -> %v", i, last, now)
		}
		last = now
	}
}
