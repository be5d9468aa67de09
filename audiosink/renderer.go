package audiosink

import (
	"sync"
	"time"
)

// Warner is called when a buffer's timestamp has drifted far enough from
// the expected sample position that the renderer had to resync instead of
// aligning. It is a non-fatal, rate-limited-by-the-caller pipeline warning.
type Warner func(drift time.Duration)

// Renderer implements the per-buffer pipeline: clip to segment, convert to
// running time, apply latency, invoke slaving, align to the previous
// sample, and commit to the ring buffer with partial-write resumption.
//
// NextSample, LastAlign and AvgSkew are owned exclusively by the streaming
// thread that calls Render and the lifecycle events; Renderer takes its
// mutex only to snapshot configuration written by the state/application
// thread (BaseTime, Sync, PipelineClock).
type Renderer struct {
	rb     RingBuffer
	clock  *ProvidedClock
	engine *SlavingEngine
	warn   Warner

	align AlignState

	// WaitPreroll, when set, is invoked whenever a commit returns fewer
	// samples than requested. Returning ErrStopping aborts the render
	// call. BaseAudioSink does not set it; while it is nil, a short commit
	// ends the render call with ErrStopping.
	WaitPreroll func() error

	mu            sync.Mutex
	baseTime      time.Duration
	latency       time.Duration
	sync          bool
	pipelineClock Clock
}

// NewRenderer returns a renderer committing into rb, synchronizing via
// clock and engine. warn may be nil.
func NewRenderer(rb RingBuffer, clock *ProvidedClock, engine *SlavingEngine, warn Warner) *Renderer {
	return &Renderer{rb: rb, clock: clock, engine: engine, warn: warn, sync: true}
}

// Configure snapshots the values the state/application thread may change
// between PLAYING transitions: the base time and the upstream latency to
// compensate for, and whether the current pipeline clock requires sync.
func (r *Renderer) Configure(baseTime, latency time.Duration, sync bool, pipelineClock Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baseTime = baseTime
	r.latency = latency
	r.sync = sync
	r.pipelineClock = pipelineClock
}

func (r *Renderer) snapshot() (baseTime, latency time.Duration, sync bool, pipelineClock Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baseTime, r.latency, r.sync, r.pipelineClock
}

// Align returns a copy of the renderer's current alignment memory, for
// tests and introspection.
func (r *Renderer) Align() AlignState {
	return r.align
}

func samplesToDuration(samples int64, rate int) time.Duration {
	if rate == 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(rate)
}

// durationToSamples rounds to the nearest sample, so a sample count taken
// through samplesToDuration and back comes out unchanged.
func durationToSamples(d time.Duration, rate int) int64 {
	return (int64(d)*int64(rate) + int64(time.Second)/2) / int64(time.Second)
}

// getOffset implements the "next playable" fallback used both when a
// buffer carries no timestamp and when sync is disabled: append to the
// previous sample position, unless that position already lies behind the
// segment the device is currently consuming, in which case jump forward to
// the next playable segment.
func (r *Renderer) getOffset() uint64 {
	var sample uint64
	if r.align.NextSample != nil {
		sample = *r.align.NextSample
	}

	sps := uint64(r.rb.SamplesPerSeg())
	if sps == 0 {
		return sample
	}

	writeSeg := sample / sps
	segDone := r.rb.SegDone() - r.rb.SegBase()

	if writeSeg < segDone {
		sample = (segDone + 1) * sps
	}
	return sample
}

// Render processes one incoming buffer against the given pipeline segment.
func (r *Renderer) Render(buf Buffer, seg Segment) error {
	if !r.rb.IsAcquired() {
		return ErrNotNegotiated
	}

	spec := r.rb.Spec()
	bps := spec.BytesPerSample
	if bps == 0 || len(buf.Data)%bps != 0 {
		return ErrWrongSize
	}

	samples := len(buf.Data) / bps
	data := buf.Data

	var renderStart, renderStop int64 // in samples
	var preClipStop time.Duration

	baseTime, latency, syncEnabled, pipelineClock := r.snapshot()

	if buf.Timestamp == nil {
		start := r.getOffset()
		renderStart = int64(start)
		renderStop = renderStart + int64(samples)
		return r.commit(data, samples, renderStart, renderStop, seg, nil, 0)
	}

	ts := *buf.Timestamp
	stop := ts + samplesToDuration(int64(samples), spec.Rate)
	preClipStop = stop

	ctime, cstop, ok := seg.Clip(ts, stop)
	if !ok {
		return nil // out of segment: dropped, not an error
	}

	if diff := ctime - ts; diff > 0 {
		diffSamples := int(durationToSamples(diff, spec.Rate))
		samples -= diffSamples
		data = data[diffSamples*bps:]
		ts = ctime
	}
	if diff := stop - cstop; diff > 0 {
		diffSamples := int(durationToSamples(diff, spec.Rate))
		samples -= diffSamples
		stop = cstop
	}
	if samples <= 0 {
		return nil
	}

	if pipelineClock == nil || !syncEnabled {
		start := r.getOffset()
		renderStart = int64(start)
		renderStop = renderStart + int64(samples)
		return r.commit(data, samples, renderStart, renderStop, seg, &preClipStop, seg.Stop)
	}

	runStart := seg.ToRunningTime(ts) + baseTime + latency
	runStop := seg.ToRunningTime(stop) + baseTime + latency

	slaved := pipelineClock != Clock(r.clock)
	var sStart, sStop time.Duration
	if slaved {
		sStart, sStop = r.engine.Convert(&r.align, pipelineClock, runStart, runStop, true)
	} else {
		sStart, sStop = r.engine.Convert(&r.align, pipelineClock, runStart, runStop, false)
	}

	renderStart = durationToSamples(sStart, spec.Rate)
	renderStop = durationToSamples(sStop, spec.Rate)

	resampleSlaved := slaved && r.engine.Method == SlaveResample

	if !buf.Discont && r.align.NextSample != nil {
		var sampleOffset int64
		if seg.Rate >= 0 {
			sampleOffset = renderStart
		} else {
			sampleOffset = renderStop
		}

		next := int64(*r.align.NextSample)
		diff := sampleOffset - next
		if diff < 0 {
			diff = -diff
		}

		if diff < int64(spec.Rate)/2 {
			align := next - sampleOffset
			renderStart += align
			if !resampleSlaved {
				renderStop += align
			}
			r.align.LastAlign = align
		} else {
			if r.warn != nil {
				driftSamples := diff
				r.warn(samplesToDuration(driftSamples, spec.Rate))
			}
		}
	}

	return r.commit(data, samples, renderStart, renderStop, seg, &preClipStop, seg.Stop)
}

// commit writes out the computed sample range to the ring buffer, looping
// to resume partial writes, and updates NextSample according to whether the
// commit run completed without interruption.
func (r *Renderer) commit(data []byte, samples int, renderStart, renderStop int64, seg Segment, preClipStop *time.Duration, segStop time.Duration) error {
	spec := r.rb.Spec()
	bps := spec.BytesPerSample

	outSamples := renderStop - renderStart
	if outSamples < 0 {
		// Large negative alignment would otherwise request a negative
		// sample count from the ring buffer; clamp and skip the commit.
		return nil
	}

	var sampleOffset uint64
	if seg.Rate >= 0 {
		sampleOffset = uint64(renderStart)
	} else {
		sampleOffset = uint64(renderStop)
	}

	accum := 0
	alignNext := true
	remaining := samples
	out := int(outSamples)

	for remaining > 0 {
		written, err := r.rb.Commit(&sampleOffset, data, remaining, out, &accum)
		if err != nil {
			return err
		}
		if written == remaining {
			break
		}

		alignNext = false
		out -= out * written / remaining
		remaining -= written
		data = data[written*bps:]

		if werr := r.waitPreroll(); werr != nil {
			return werr
		}
	}

	if alignNext {
		r.align.NextSample = &sampleOffset
	} else {
		r.align.NextSample = nil
	}

	if preClipStop != nil && segStop > 0 && *preClipStop >= segStop {
		if err := r.rb.Start(); err != nil {
			return err
		}
	}

	return nil
}

func (r *Renderer) waitPreroll() error {
	if r.WaitPreroll != nil {
		return r.WaitPreroll()
	}
	return ErrStopping
}
