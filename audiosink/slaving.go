package audiosink

import "time"

// AlignState is the renderer's exclusively-owned alignment memory, mutated
// only by the streaming thread. NextSample and AvgSkew are nil to mean
// "none" -- invariant 4 ties them together: AvgSkew is nil exactly when
// NextSample is nil immediately after any event that forces a resync.
type AlignState struct {
	NextSample *uint64
	LastAlign  int64
	AvgSkew    *int64
}

// Resync clears NextSample and AvgSkew together. FlushStop calls it, and so
// does PausedToPlaying when the pipeline clock is not the provided clock. A
// Discont buffer does not call it: it only skips alignment for that buffer.
func (a *AlignState) Resync() {
	a.NextSample = nil
	a.AvgSkew = nil
}

// clockConvert is the saturating affine map that translates a time in the
// external (reference) clock domain into the internal (device) domain.
func clockConvert(ext, cInternal, cExternal time.Duration, rateNum, rateDenom int64, usLatency time.Duration) time.Duration {
	var out time.Duration
	if ext >= cExternal {
		out = time.Duration(int64(ext-cExternal)*rateDenom/rateNum) + cInternal
	} else {
		diff := time.Duration(int64(cExternal-ext) * rateDenom / rateNum)
		if cInternal > diff {
			out = cInternal - diff
		} else {
			out = 0
		}
	}
	if out > usLatency {
		out -= usLatency
	} else {
		out = 0
	}
	return out
}

// SlavingEngine implements the three clock-slaving strategies. Method is
// set on each PAUSED->PLAYING transition and SegTime/SegSamples when the
// sink's caps are set; otherwise it is stateless, and the mutable alignment
// memory it needs lives in the AlignState passed into Convert.
type SlavingEngine struct {
	Method     SlaveMethod
	Clock      *ProvidedClock
	SegTime    time.Duration // latency_time, the max tolerated drift
	SegSamples int64         // samples per segment, for the skew resync check
}

// Convert maps [renderStart, renderStop] in the reference-clock domain to
// the device's internal domain. When slaved is false the sink is its own
// pipeline clock master and no slaving is performed, but the calibration
// offset (seeded once on async-play) is still applied.
func (e *SlavingEngine) Convert(state *AlignState, pipelineClock Clock, renderStart, renderStop time.Duration, slaved bool) (time.Duration, time.Duration) {
	if !slaved {
		return e.none(renderStart, renderStop)
	}
	switch e.Method {
	case SlaveResample:
		return e.resample(renderStart, renderStop)
	case SlaveSkew:
		return e.skew(state, pipelineClock, renderStart, renderStop)
	default:
		return e.none(renderStart, renderStop)
	}
}

func (e *SlavingEngine) none(renderStart, renderStop time.Duration) (time.Duration, time.Duration) {
	cI, cE, rn, rd := e.Clock.Calibration()
	if rn == 0 {
		rn, rd = 1, 1
	}
	us := e.Clock.UpstreamLatency()
	return clockConvert(renderStart, cI, cE, rn, rd, us), clockConvert(renderStop, cI, cE, rn, rd, us)
}

// resample hands the ring buffer's resampler a drifting target so the
// output sample count implicitly adapts; it honours the calibration's rate
// so speed corrections take effect, unlike skew which ignores rate.
func (e *SlavingEngine) resample(renderStart, renderStop time.Duration) (time.Duration, time.Duration) {
	cI, cE, rn, rd := e.Clock.Calibration()
	if rn == 0 {
		rn, rd = 1, 1
	}
	us := e.Clock.UpstreamLatency()
	return clockConvert(renderStart, cI, cE, rn, rd, us), clockConvert(renderStop, cI, cE, rn, rd, us)
}

// skew samples both clocks, updates a moving average of their drift, and
// when the drift exceeds half a segment nudges the calibration's external
// offset by a full segment to walk the playout pointer back into line.
func (e *SlavingEngine) skew(state *AlignState, pipelineClock Clock, renderStart, renderStop time.Duration) (time.Duration, time.Duration) {
	cI, cE, rn, rd := e.Clock.Calibration()

	etime, _ := pipelineClock.Now()
	itime, _ := e.Clock.InternalNow()

	if etime > cE {
		etime -= cE
	} else {
		etime = 0
	}
	if itime > cI {
		itime -= cI
	} else {
		itime = 0
	}

	skew := int64(itime - etime)
	if state.AvgSkew == nil {
		v := skew
		state.AvgSkew = &v
	} else {
		v := (31**state.AvgSkew + skew) / 32
		state.AvgSkew = &v
	}

	segTime := int64(e.SegTime)
	half := segTime / 2

	switch {
	case *state.AvgSkew > half:
		// reference is slow relative to the device: advance internal time
		if cE > e.SegTime {
			cE -= e.SegTime
		} else {
			cE = 0
		}
		*state.AvgSkew -= segTime
		if state.LastAlign < 0 || state.LastAlign > e.SegSamples {
			state.NextSample = nil
		}
		e.Clock.SetCalibration(cI, cE, rn, rd)
	case *state.AvgSkew < -half:
		// reference is fast relative to the device: delay internal time
		cE += e.SegTime
		*state.AvgSkew += segTime
		if state.LastAlign > 0 || -state.LastAlign > e.SegSamples {
			state.NextSample = nil
		}
		e.Clock.SetCalibration(cI, cE, rn, rd)
	}

	// skew slaving tracks offset only, never speed: convert ignoring rate.
	us := e.Clock.UpstreamLatency()
	return clockConvert(renderStart, cI, cE, 1, 1, us), clockConvert(renderStop, cI, cE, 1, 1, us)
}
