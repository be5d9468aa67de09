package audiosink

import "time"

// Spec describes the immutable format of a ring buffer once it has been
// acquired. It mirrors the handful of fields the renderer actually needs to
// do its sample-offset arithmetic.
type Spec struct {
	Rate           int // samples per second
	BytesPerSample int // frame size: channels * bytes per channel sample
	SegSize        int // bytes per ring buffer segment
	SegTotal       int // number of segments in the ring
	SegLatency     int // segments of headroom before underrun
}

// SamplesPerSeg returns the number of samples carried by one segment.
func (s Spec) SamplesPerSeg() int {
	if s.BytesPerSample == 0 {
		return 0
	}
	return s.SegSize / s.BytesPerSample
}

// BufferDuration returns the total amount of audio the ring buffer can hold.
func (s Spec) BufferDuration() time.Duration {
	if s.Rate == 0 || s.BytesPerSample == 0 {
		return 0
	}
	totalSamples := int64(s.SegTotal) * int64(s.SegSize) / int64(s.BytesPerSample)
	return time.Duration(totalSamples) * time.Second / time.Duration(s.Rate)
}

// PullCallback is invoked by a ring buffer operating in pull mode whenever
// the device thread needs more data. It should fill data completely and
// return the number of bytes actually produced; eof signals that no more
// data will ever be available.
type PullCallback func(data []byte) (n int, eof bool)

// RingBuffer is the abstract bounded producer/consumer buffer the renderer
// commits samples into. It is exclusively owned by the sink; the concrete
// implementation drives its own device thread and is responsible for
// thread-safety of every method below.
type RingBuffer interface {
	OpenDevice() error
	CloseDevice() error

	Acquire(spec Spec) error
	Release() error
	IsAcquired() bool

	Start() error
	Pause() error
	MayStart(may bool)
	SetFlushing(flushing bool)

	// Commit writes in of data at *sampleOffset, representing out samples
	// of output (the two differ when an external resampler inside the ring
	// buffer stretches or compresses the buffer). accum carries the
	// resampler's fractional residue across calls. written holds how many
	// input samples were actually consumed from data; written may be less
	// than in when the buffer is flushing or backpressured. On return,
	// sampleOffset has advanced by out*written/in samples, so a caller that
	// loops to resume a partial write ends up, across the whole loop, with
	// sampleOffset advanced by exactly out.
	Commit(sampleOffset *uint64, data []byte, in, out int, accum *int) (written int, err error)

	SamplesDone() uint64
	Delay() uint32

	SegDone() uint64
	SegBase() uint64
	SamplesPerSeg() int
	Spec() Spec

	SetCallback(cb PullCallback)
}

// Clock is the minimal reference clock contract the renderer synchronizes
// against. Now reports the clock's current time; ok is false when the clock
// cannot currently produce a value.
type Clock interface {
	Now() (time.Duration, bool)
}

// Segment is the pipeline-sense segment: a playback interval with a rate,
// used to clip buffers and translate stream time into running time.
type Segment struct {
	Start time.Duration
	Stop  time.Duration
	Rate  float64 // playback rate; negative means reverse playback
}

// Clip intersects [start, stop] with the segment boundaries. ok is false
// when the intersection is empty and the caller should drop the buffer.
func (s Segment) Clip(start, stop time.Duration) (cstart, cstop time.Duration, ok bool) {
	if s.Stop > 0 && start >= s.Stop {
		return 0, 0, false
	}
	if stop <= s.Start {
		return 0, 0, false
	}
	cstart, cstop = start, stop
	if cstart < s.Start {
		cstart = s.Start
	}
	if s.Stop > 0 && cstop > s.Stop {
		cstop = s.Stop
	}
	if cstop <= cstart {
		return 0, 0, false
	}
	return cstart, cstop, true
}

// ToRunningTime maps a stream timestamp through the segment so that pauses
// and seeks don't perturb scheduling.
func (s Segment) ToRunningTime(t time.Duration) time.Duration {
	rate := s.Rate
	if rate == 0 {
		rate = 1
	}
	if rate > 0 {
		return time.Duration(float64(t-s.Start) / rate)
	}
	return time.Duration(float64(s.Stop-t) / -rate)
}

// Buffer is one arriving block of interleaved PCM samples together with its
// scheduling metadata. Timestamp is nil when the producer did not attach a
// presentation time ("no value" in pipeline terms).
type Buffer struct {
	Data      []byte
	Timestamp *time.Duration
	Discont   bool
}

// LatencyQuery is the result of querying the latency of the chain upstream
// of the sink.
type LatencyQuery struct {
	Live         bool
	UpstreamLive bool
	MinUpstream  time.Duration
	MaxUpstream  time.Duration // negative means unbounded
}

// UpstreamLatencyQuerier is the base sink's upstream latency query,
// delegated to by the LatencyReporter.
type UpstreamLatencyQuerier interface {
	QueryLatency() (LatencyQuery, bool)
}

// Caps is the subset of a negotiated format the sink can fall back to when
// the upstream producer leaves choices open.
type Caps struct {
	Rate       int
	Channels   int
	Width      int
	Depth      int
	Signed     bool
	BigEndian  bool
}

// RoundUp8 rounds width up to the nearest multiple of 8, used when fixating
// the sample depth from the sample width.
func RoundUp8(width int) int {
	return (width + 7) &^ 7
}
