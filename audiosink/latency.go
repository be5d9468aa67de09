package audiosink

import "time"

// LatencyReporter composes the device's buffering latency with the latency
// reported by the chain upstream of the sink.
type LatencyReporter struct {
	rb       RingBuffer
	clock    *ProvidedClock
	upstream UpstreamLatencyQuerier
}

// NewLatencyReporter returns a reporter that queries upstream through q and
// records the observed upstream latency on clock.
func NewLatencyReporter(rb RingBuffer, clock *ProvidedClock, q UpstreamLatencyQuerier) *LatencyReporter {
	return &LatencyReporter{rb: rb, clock: clock, upstream: q}
}

// Query reports this sink's latency. ok is false when the ring buffer has
// not been negotiated yet and no latency can be reported. When max is
// negative, the maximum latency is unbounded.
func (l *LatencyReporter) Query() (live bool, min, max time.Duration, ok bool) {
	spec := l.rb.Spec()
	if spec.Rate == 0 {
		return false, 0, 0, false
	}

	q, queried := l.upstream.QueryLatency()
	if !queried {
		return false, 0, -1, true
	}

	if !q.Live || !q.UpstreamLive {
		return false, 0, -1, true
	}

	l.clock.SetUpstreamLatency(q.MinUpstream)

	deviceLatency := time.Duration(spec.SegLatency) * time.Duration(spec.SegSize) * time.Second /
		time.Duration(int64(spec.Rate)*int64(spec.BytesPerSample))

	min = deviceLatency + q.MinUpstream
	if q.MaxUpstream < 0 {
		max = min
	} else {
		max = min + q.MaxUpstream
	}
	return true, min, max, true
}
