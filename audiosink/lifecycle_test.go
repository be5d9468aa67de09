package audiosink

import (
	"testing"
	"time"
)

func TestEOSUsesUnadjustedTimestamp(t *testing.T) {
	r, rb := newTestRenderer()
	seg := Segment{Rate: 1}
	if err := r.Render(tsBuffer(0, 4410, false), seg); err != nil {
		t.Fatal(err)
	}

	var got time.Duration
	err := r.EOS(func(d time.Duration) error {
		got = d
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	want := samplesToDuration(4410, testRate)
	if got != want {
		t.Errorf("EOS wait time = %v, want %v", got, want)
	}
	if rb.starts != 1 {
		t.Errorf("EOS should Start the ring buffer to drain sub-segment residue: starts = %d, want 1", rb.starts)
	}
	if r.align.NextSample != nil {
		t.Error("EOS should reset next_sample after draining")
	}
}

func TestEOSNoopWithoutNextSample(t *testing.T) {
	r, rb := newTestRenderer()
	called := false
	if err := r.EOS(func(time.Duration) error { called = true; return nil }); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("EOS invoked waitEOS with no committed sample")
	}
	if rb.starts != 1 {
		t.Errorf("EOS should still Start an acquired ring buffer with nothing committed: starts = %d, want 1", rb.starts)
	}
}

func TestStateTransitions(t *testing.T) {
	r, rb := newTestRenderer()

	if err := r.ReadyToPaused(); err != nil {
		t.Fatal(err)
	}
	if r.align.NextSample != nil {
		t.Error("ReadyToPaused should reset alignment")
	}

	pipelineClock := Clock(r.clock)
	if err := r.PausedToPlaying(pipelineClock); err != nil {
		t.Fatal(err)
	}
	if !rb.mayStart {
		t.Error("PausedToPlaying should allow the ring buffer to start")
	}
	if rb.starts != 1 {
		t.Errorf("starts = %d, want 1", rb.starts)
	}

	if err := r.PlayingToPaused(); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.clock.Master(); ok {
		t.Error("PlayingToPaused should clear the master clock")
	}

	if err := r.PausedToReady(); err != nil {
		t.Fatal(err)
	}
	if !rb.flushing {
		t.Error("PausedToReady should mark the ring buffer flushing")
	}
}
