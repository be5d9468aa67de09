package audiosink

import (
	"sync/atomic"
	"time"
)

// calibration is the immutable affine map external -> internal used to
// translate reference-clock time into the provided clock's own time. It is
// replaced wholesale (never mutated in place) so readers on any thread can
// load a consistent snapshot without taking a lock.
type calibration struct {
	internal  time.Duration
	external  time.Duration
	rateNum   int64
	rateDenom int64
}

// ProvidedClock reports a monotonic time derived from the ring buffer's
// processed-sample count plus a fixed upstream-latency offset. Its
// calibration is written exclusively by the streaming thread (through the
// slaving engine) and read by any thread holding a reference to the clock.
type ProvidedClock struct {
	rb        RingBuffer
	calib     atomic.Pointer[calibration]
	usLatency atomic.Int64
	master    atomic.Pointer[clockHandle]
}

// clockHandle boxes a Clock so it can live behind an atomic.Pointer; Clock
// itself may not be comparable or nil-safe to store directly.
type clockHandle struct{ c Clock }

// NewProvidedClock returns a clock backed by rb, with identity calibration.
func NewProvidedClock(rb RingBuffer) *ProvidedClock {
	c := &ProvidedClock{rb: rb}
	c.calib.Store(&calibration{rateNum: 1, rateDenom: 1})
	return c
}

// Now reports the clock's current time. ok is false when the ring buffer is
// not acquired or has a zero rate; the clock is monotonically non-decreasing
// while acquired and not flushing, since samples_done is monotone and delay
// is clamped so it never pushes the result backwards.
func (c *ProvidedClock) Now() (time.Duration, bool) {
	if c.rb == nil || !c.rb.IsAcquired() {
		return 0, false
	}
	spec := c.rb.Spec()
	if spec.Rate == 0 {
		return 0, false
	}

	done := c.rb.SamplesDone()
	delay := uint64(c.rb.Delay())

	var samples uint64
	if done >= delay {
		samples = done - delay
	}

	result := time.Duration(samples) * time.Second / time.Duration(spec.Rate)
	result += time.Duration(c.usLatency.Load())
	return result, true
}

// InternalNow is the clock's raw time, used by the skew slaver and by the
// async-play transition to seed calibration. For this clock the internal
// time is identical to Now: the provided clock has no get_time indirection
// of its own, it IS the device-driven time source.
func (c *ProvidedClock) InternalNow() (time.Duration, bool) {
	return c.Now()
}

// Calibration returns the clock's current affine map.
func (c *ProvidedClock) Calibration() (internal, external time.Duration, rateNum, rateDenom int64) {
	cal := c.calib.Load()
	return cal.internal, cal.external, cal.rateNum, cal.rateDenom
}

// SetCalibration installs a new calibration. The streaming thread is the
// only writer; it always replaces the whole tuple rather than mutating it.
func (c *ProvidedClock) SetCalibration(internal, external time.Duration, rateNum, rateDenom int64) {
	c.calib.Store(&calibration{internal: internal, external: external, rateNum: rateNum, rateDenom: rateDenom})
}

// SetUpstreamLatency records the minimum upstream live latency observed
// during the last latency query; it shifts the zero of the clock.
func (c *ProvidedClock) SetUpstreamLatency(d time.Duration) {
	c.usLatency.Store(int64(d))
}

// UpstreamLatency returns the last recorded upstream latency offset.
func (c *ProvidedClock) UpstreamLatency() time.Duration {
	return time.Duration(c.usLatency.Load())
}

// SetMaster records (or clears, with nil) the pipeline clock this provided
// clock is slaved to for rate correction. Only the resample slave method
// uses this; actually driving the rate correction from the master is left
// to the surrounding pipeline's clock infrastructure.
func (c *ProvidedClock) SetMaster(master Clock) {
	if master == nil {
		c.master.Store(nil)
		return
	}
	c.master.Store(&clockHandle{c: master})
}

// Master returns the clock this provided clock is currently slaved to, if
// any.
func (c *ProvidedClock) Master() (Clock, bool) {
	h := c.master.Load()
	if h == nil {
		return nil, false
	}
	return h.c, true
}
