package audiosink

import (
	"testing"
	"time"
)

type noUpstream struct{}

func (noUpstream) QueryLatency() (LatencyQuery, bool) { return LatencyQuery{}, false }

// TestBaseAudioSinkWiresSlavingEngine exercises the full NULL->PLAYING
// lifecycle through BaseAudioSink and checks that SetCaps actually reaches
// the slaving engine's SegTime/SegSamples -- without them the skew slave
// method could never detect a resync condition.
func TestBaseAudioSinkWiresSlavingEngine(t *testing.T) {
	spec := Spec{Rate: testRate, BytesPerSample: testBps}
	var rb *fakeRing

	var warned bool
	sink := NewBaseAudioSink(func() RingBuffer {
		rb = newFakeRing(Spec{})
		return rb
	}, noUpstream{}, WithLatencyTime(10_000), WithSlaveMethod(SlaveSkew))
	sink.SetWarner(func(time.Duration) { warned = true })

	if err := sink.NullToReady(); err != nil {
		t.Fatal(err)
	}
	if err := sink.SetCaps(spec); err != nil {
		t.Fatal(err)
	}

	if sink.engine.SegTime != 10*time.Millisecond {
		t.Errorf("engine.SegTime = %v, want 10ms", sink.engine.SegTime)
	}
	if sink.engine.SegSamples != int64(rb.spec.SamplesPerSeg()) || sink.engine.SegSamples == 0 {
		t.Errorf("engine.SegSamples = %d, want %d", sink.engine.SegSamples, rb.spec.SamplesPerSeg())
	}

	if err := sink.ReadyToPaused(); err != nil {
		t.Fatal(err)
	}
	if err := sink.PausedToPlaying(0, Clock(sink.Clock())); err != nil {
		t.Fatal(err)
	}
	if !rb.mayStart || rb.starts != 1 {
		t.Errorf("ring buffer not started: mayStart=%v starts=%d", rb.mayStart, rb.starts)
	}

	ts0 := time.Duration(0)
	if err := sink.Render(Buffer{Data: make([]byte, 4410*testBps), Timestamp: &ts0}, Segment{Rate: 1}); err != nil {
		t.Fatal(err)
	}
	ts1 := 700 * time.Millisecond
	if err := sink.Render(Buffer{Data: make([]byte, 4410*testBps), Timestamp: &ts1}, Segment{Rate: 1}); err != nil {
		t.Fatal(err)
	}
	if !warned {
		t.Error("a 700ms drift should have fired the warner wired through SetWarner")
	}
}
