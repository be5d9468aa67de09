package audiosink

import (
	"testing"
	"time"
)

// fakeClock is a reference clock whose time advances however the test
// drives it, independent of any ring buffer.
type fakeClock struct{ t time.Duration }

func (f *fakeClock) Now() (time.Duration, bool) { return f.t, true }

// TestSkewConvergence exercises the skew slave method against a pipeline
// clock that runs 1ms faster per second than the provided clock, matching
// the documented scenario. It asserts the correction fires exactly once
// within the first ~600 ten-millisecond buffers, shifting cexternal by
// exactly one segment and avg_skew by exactly the same amount.
func TestSkewConvergence(t *testing.T) {
	spec := Spec{Rate: testRate, BytesPerSample: testBps, SegSize: 4096, SegTotal: 8}
	rb := newFakeRing(spec)
	clock := NewProvidedClock(rb)
	pipelineClock := &fakeClock{}

	segTime := 10 * time.Millisecond
	engine := &SlavingEngine{Method: SlaveSkew, Clock: clock, SegTime: segTime, SegSamples: int64(spec.SamplesPerSeg())}

	var state AlignState
	triggers := 0

	const buf = 10 * time.Millisecond
	const drift = buf / 1000 // 1ms/s => 1/1000 of the buffer duration extra per buffer

	var internal, external time.Duration
	for i := 0; i < 600; i++ {
		internal += buf
		external += buf + drift
		rb.samples = uint64(internal) * uint64(spec.Rate) / uint64(time.Second)
		pipelineClock.t = external

		_, beforeCE, _, _ := clock.Calibration()
		engine.skew(&state, pipelineClock, 0, 0)
		_, afterCE, _, _ := clock.Calibration()

		if afterCE != beforeCE {
			triggers++
			d := afterCE - beforeCE
			if d < 0 {
				d = -d
			}
			if d != segTime {
				t.Errorf("iteration %d: cexternal shifted by %v, want magnitude %v", i, afterCE-beforeCE, segTime)
			}
		}
	}

	if triggers != 1 {
		t.Errorf("correction fired %d times in 600 buffers, want exactly 1", triggers)
	}
	if state.AvgSkew == nil {
		t.Fatal("avg_skew is nil after skew slaving ran")
	}
}
