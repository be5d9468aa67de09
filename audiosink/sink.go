package audiosink

import (
	"sync"
	"time"
)

// Sink is the capability interface a concrete audio sink element exposes to
// its surrounding pipeline. BaseAudioSink implements it directly; a
// subclass only needs to supply a RingBuffer factory and, optionally,
// override Fixate.
type Sink interface {
	// SetCaps negotiates the ring buffer's format; it must be called
	// before Render or Preroll.
	SetCaps(spec Spec) error
	// Fixate narrows an upstream offer that leaves format fields open. The
	// base implementation keeps the offer's rate and channels and fills in
	// a sensible default depth; subclasses override it to prefer the
	// device's native format instead.
	Fixate(caps Caps) Caps
	// Preroll renders exactly one buffer without requiring the pipeline to
	// be PLAYING, so the first frame of audio is ready the instant it is.
	Preroll(buf Buffer) error
	// Render renders one buffer against the current segment.
	Render(buf Buffer, seg Segment) error
	// GetTimes returns the [start, stop) running-time window Render will
	// schedule buf against, for callers that synchronize buffers
	// themselves instead of delegating to Render.
	GetTimes(buf Buffer, seg Segment) (start, stop time.Duration)
	// AsyncPlay is called on the PAUSED->PLAYING transition, after
	// base_time has been distributed, to seed clock calibration.
	AsyncPlay(pipelineClock Clock) error
	// ActivatePull switches the ring buffer between push mode (the
	// pipeline calls Render) and pull mode (the ring buffer's device
	// thread calls back into cb for more data).
	ActivatePull(active bool, cb PullCallback) error
	// QueryLatency reports this sink's own latency contribution.
	QueryLatency() (live bool, min, max time.Duration, ok bool)
}

// BaseAudioSink assembles a Renderer, ProvidedClock, SlavingEngine and
// LatencyReporter around a RingBuffer, and drives them through the pipeline
// state machine. It is safe for concurrent use: Render and the lifecycle
// methods it delegates to are meant to be called from the single streaming
// thread, while the Set* configuration methods and QueryLatency may be
// called concurrently from the application/state-change thread.
type BaseAudioSink struct {
	mu     sync.Mutex
	config Config

	newRingBuffer func() RingBuffer
	rb            RingBuffer
	clock         *ProvidedClock
	engine        *SlavingEngine
	renderer      *Renderer
	latency       *LatencyReporter

	baseTime time.Duration
	upstream UpstreamLatencyQuerier
	pulling  bool
	warn     Warner
}

// SetWarner installs the callback invoked when a buffer's timestamp drifts
// far enough to force a resync instead of an alignment (see §7's
// "compensating for synchronisation problems" warning). It only takes
// effect from the next NULL->READY transition onward.
func (s *BaseAudioSink) SetWarner(w Warner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warn = w
}

// NewBaseAudioSink returns a sink that creates its ring buffer via newRB on
// every NULL->READY transition. upstream is used to compose this sink's
// reported latency with the chain above it; it may be a stub that always
// reports "not live" if the surrounding pipeline has no latency to report.
func NewBaseAudioSink(newRB func() RingBuffer, upstream UpstreamLatencyQuerier, opts ...Option) *BaseAudioSink {
	config := DefaultConfig()
	for _, o := range opts {
		o(&config)
	}

	s := &BaseAudioSink{
		config:        config,
		newRingBuffer: newRB,
		upstream:      upstream,
	}
	return s
}

// Configure updates the sink's properties. A new slave method takes effect
// on the next PAUSED->PLAYING transition, new buffer and latency times on
// the next SetCaps. Configure also refreshes the renderer's snapshot of the
// base time and upstream latency.
func (s *BaseAudioSink) Configure(opts ...Option) {
	s.mu.Lock()
	for _, o := range opts {
		o(&s.config)
	}
	baseTime := s.baseTime
	s.mu.Unlock()

	if s.renderer != nil {
		s.renderer.Configure(baseTime, s.clock.UpstreamLatency(), true, s.pipelineClock())
	}
}

func (s *BaseAudioSink) pipelineClock() Clock {
	if pc, ok := s.clock.Master(); ok {
		return pc
	}
	return Clock(s.clock)
}

// NullToReady creates the ring buffer, its provided clock and slaving
// engine, and opens the device.
func (s *BaseAudioSink) NullToReady() error {
	s.mu.Lock()
	config := s.config
	s.mu.Unlock()

	s.mu.Lock()
	warn := s.warn
	s.mu.Unlock()

	s.rb = s.newRingBuffer()
	s.clock = NewProvidedClock(s.rb)
	s.engine = &SlavingEngine{Method: config.SlaveMethod, Clock: s.clock}
	s.renderer = NewRenderer(s.rb, s.clock, s.engine, warn)
	s.latency = NewLatencyReporter(s.rb, s.clock, s.upstream)

	return s.renderer.NullToReady(func() RingBuffer { return s.rb })
}

// ReadyToNull releases and closes the device.
func (s *BaseAudioSink) ReadyToNull() error {
	if s.renderer == nil {
		return nil
	}
	return s.renderer.ReadyToNull()
}

// SetCaps acquires the ring buffer with the negotiated format, deriving the
// segment geometry from the configured buffer/latency times.
func (s *BaseAudioSink) SetCaps(spec Spec) error {
	s.mu.Lock()
	bufferUs := s.config.BufferTimeUs
	latencyUs := s.config.LatencyTimeUs
	s.mu.Unlock()

	if spec.Rate > 0 && spec.BytesPerSample > 0 {
		if spec.SegSize == 0 {
			spec.SegSize = int(int64(latencyUs) * int64(spec.Rate) * int64(spec.BytesPerSample) / 1_000_000)
			spec.SegSize = RoundUp8(spec.SegSize)
		}
		if spec.SegTotal == 0 && spec.SegSize > 0 {
			spec.SegTotal = int(int64(bufferUs) / latencyUs)
			if spec.SegTotal < 2 {
				spec.SegTotal = 2
			}
		}
		if spec.SegLatency == 0 {
			spec.SegLatency = 1
		}
	}

	if err := s.rb.Acquire(spec); err != nil {
		return err
	}

	s.engine.SegTime = time.Duration(latencyUs) * time.Microsecond
	s.engine.SegSamples = int64(spec.SamplesPerSeg())
	return nil
}

// Fixate narrows an open format offer to concrete values. The base
// implementation keeps whatever the offer already specifies and only fills
// in a conservative default depth from the sample width.
func (s *BaseAudioSink) Fixate(caps Caps) Caps {
	if caps.Depth == 0 {
		caps.Depth = RoundUp8(caps.Width)
	}
	return caps
}

// ReadyToPaused resets alignment memory, ready for the first Render.
func (s *BaseAudioSink) ReadyToPaused() error {
	return s.renderer.ReadyToPaused()
}

// PausedToPlaying seeds calibration against pipelineClock and starts the
// ring buffer producing. It snapshots baseTime/latency/sync into the
// renderer before starting, since those are only otherwise refreshed when
// Configure is called.
func (s *BaseAudioSink) PausedToPlaying(baseTime time.Duration, pipelineClock Clock) error {
	s.mu.Lock()
	s.baseTime = baseTime
	method := s.config.SlaveMethod
	s.mu.Unlock()

	s.engine.Method = method
	s.renderer.Configure(baseTime, s.clock.UpstreamLatency(), true, pipelineClock)
	return s.renderer.PausedToPlaying(pipelineClock)
}

// AsyncPlay is an alias for PausedToPlaying for callers that model it as a
// distinct pipeline event rather than folding it into the state change.
func (s *BaseAudioSink) AsyncPlay(pipelineClock Clock) error {
	s.mu.Lock()
	baseTime := s.baseTime
	s.mu.Unlock()
	return s.PausedToPlaying(baseTime, pipelineClock)
}

// PlayingToPaused pauses the device and drops the resample slave method's
// master clock reference.
func (s *BaseAudioSink) PlayingToPaused() error {
	return s.renderer.PlayingToPaused()
}

// PausedToReady marks the ring buffer flushing and releases it.
func (s *BaseAudioSink) PausedToReady() error {
	return s.renderer.PausedToReady()
}

// FlushStart and FlushStop delegate to the renderer.
func (s *BaseAudioSink) FlushStart() { s.renderer.FlushStart() }
func (s *BaseAudioSink) FlushStop()  { s.renderer.FlushStop() }

// NewSegment delegates to the renderer.
func (s *BaseAudioSink) NewSegment(rate float64) { s.renderer.NewSegment(rate) }

// Preroll renders buf without requiring the pipeline to be PLAYING; the
// renderer's own sync logic already tolerates this since a not-yet-playing
// sink simply has no pipeline clock configured.
func (s *BaseAudioSink) Preroll(buf Buffer) error {
	return s.renderer.Render(buf, Segment{Rate: 1})
}

// Render delegates to the renderer.
func (s *BaseAudioSink) Render(buf Buffer, seg Segment) error {
	return s.renderer.Render(buf, seg)
}

// GetTimes computes the running-time window Render would schedule buf
// against, without actually rendering it.
func (s *BaseAudioSink) GetTimes(buf Buffer, seg Segment) (start, stop time.Duration) {
	if buf.Timestamp == nil {
		return 0, 0
	}
	spec := s.rb.Spec()
	samples := len(buf.Data) / spec.BytesPerSample
	ts := *buf.Timestamp
	dur := samplesToDuration(int64(samples), spec.Rate)
	return seg.ToRunningTime(ts), seg.ToRunningTime(ts + dur)
}

// EOS drains the ring buffer down to the last committed sample.
func (s *BaseAudioSink) EOS(waitEOS func(time.Duration) error) error {
	return s.renderer.EOS(waitEOS)
}

// ActivatePull switches the ring buffer between push and pull mode. In pull
// mode the ring buffer's own device thread calls back into cb for more
// data instead of waiting for Render.
func (s *BaseAudioSink) ActivatePull(active bool, cb PullCallback) error {
	s.mu.Lock()
	s.pulling = active
	s.mu.Unlock()

	if active {
		s.rb.SetCallback(cb)
	} else {
		s.rb.SetCallback(nil)
	}
	return nil
}

// QueryLatency delegates to the latency reporter.
func (s *BaseAudioSink) QueryLatency() (live bool, min, max time.Duration, ok bool) {
	return s.latency.Query()
}

// Clock returns the sink's provided clock, for a pipeline that wants to
// adopt it as the pipeline clock.
func (s *BaseAudioSink) Clock() *ProvidedClock {
	return s.clock
}
