package audiosink

import "time"

// FlushStart marks the ring buffer flushing, unblocking any render call
// currently waiting on free segments with ErrStopping.
func (r *Renderer) FlushStart() {
	r.rb.SetFlushing(true)
}

// FlushStop clears the flushing flag and resyncs the alignment memory.
// NextSample and AvgSkew must be cleared together: whatever sample offset
// was being tracked before the flush no longer has any relationship to the
// data that will arrive after it.
func (r *Renderer) FlushStop() {
	r.align.Resync()
	r.rb.SetFlushing(false)
}

// NewSegment records the rate of a newly activated pipeline segment. The
// renderer itself is stateless across segments beyond what Segment already
// carries into Render, so this is presently a hook for subclasses that need
// to react to a rate change; it does not mutate renderer state.
func (r *Renderer) NewSegment(rate float64) {}

// EOS drains the ring buffer: if it is acquired, Start it (guaranteeing
// playback of any sub-segment residue that never reached seglatency), then
// invokes waitEOS with the device-domain time of the end of the last
// committed sample, and finally resets NextSample so the next buffer is
// placed by clock arithmetic rather than alignment.
//
// The ring buffer's sample clock and the renderer's calibration both exist
// to translate between domains the renderer otherwise never needs here: the
// last sample committed is already known in the device's own sample count,
// so the wait target is read directly off NextSample instead of being
// round-tripped through base_time and the pipeline clock.
func (r *Renderer) EOS(waitEOS func(deviceTime time.Duration) error) error {
	if r.rb.IsAcquired() {
		if err := r.rb.Start(); err != nil {
			return err
		}
	}
	if waitEOS == nil {
		r.align.NextSample = nil
		return nil
	}
	if r.align.NextSample == nil {
		return nil
	}
	spec := r.rb.Spec()
	t := samplesToDuration(int64(*r.align.NextSample), spec.Rate)
	err := waitEOS(t)
	r.align.NextSample = nil
	return err
}

// NullToReady creates and opens the device-backed ring buffer. newRB is a
// factory so the concrete ring buffer implementation (and its device
// handle) is constructed fresh on every NULL->READY transition.
func (r *Renderer) NullToReady(newRB func() RingBuffer) error {
	if newRB != nil {
		r.rb = newRB()
	}
	if err := r.rb.OpenDevice(); err != nil {
		return ErrOpenFailed
	}
	return nil
}

// ReadyToPaused resets the alignment memory and clears flushing, leaving the
// ring buffer ready to accept commits once it is acquired and started.
func (r *Renderer) ReadyToPaused() error {
	r.align = AlignState{}
	r.rb.SetFlushing(false)
	r.rb.MayStart(false)
	return nil
}

// PausedToPlaying seeds the clock calibration for the upcoming PLAYING run
// and, for the resample slave method, hands the provided clock's master
// reference to pipelineClock so an external resampler can track it. It then
// allows the ring buffer to start producing.
func (r *Renderer) PausedToPlaying(pipelineClock Clock) error {
	internal, ok1 := r.clock.InternalNow()
	external, ok2 := pipelineClock.Now()
	if ok1 && ok2 {
		_, _, rn, rd := r.clock.Calibration()
		if rn == 0 {
			rn, rd = 1, 1
		}
		r.clock.SetCalibration(internal, external, rn, rd)
	}

	if pipelineClock != Clock(r.clock) {
		r.align.Resync()
	}

	if r.engine != nil && r.engine.Method == SlaveResample {
		r.clock.SetMaster(pipelineClock)
	}

	r.rb.MayStart(true)
	return r.rb.Start()
}

// PlayingToPaused pauses the ring buffer and releases the resample slave
// method's master clock reference, since it is only meaningful while
// PLAYING.
func (r *Renderer) PlayingToPaused() error {
	r.clock.SetMaster(nil)
	return r.rb.Pause()
}

// PausedToReady marks the ring buffer flushing before releasing it, so any
// thread still blocked in Commit wakes with ErrStopping instead of hanging
// on a buffer that is about to disappear.
func (r *Renderer) PausedToReady() error {
	r.rb.SetFlushing(true)
	return r.rb.Release()
}

// ReadyToNull is a defensive Release in case the sink skipped PAUSED, then
// closes the device.
func (r *Renderer) ReadyToNull() error {
	_ = r.rb.Release()
	return r.rb.CloseDevice()
}
