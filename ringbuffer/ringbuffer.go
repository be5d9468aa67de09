// Package ringbuffer implements audiosink.RingBuffer against a portaudio
// output stream, the same device binding the project's audio package uses
// for local playback. Samples are stored as interleaved float32 frames,
// portaudio's native Go format, in a fixed array of equally-sized segments;
// the device callback consumes exactly one segment per invocation, which
// keeps FramesPerBuffer, SegSize and the sample accounting in Commit all in
// lock-step.
package ringbuffer

import (
	"fmt"
	"math"
	"sync"

	"github.com/dh1tw/gosamplerate"
	pa "github.com/gordonklaus/portaudio"

	"github.com/dh1tw/audiosink/audiosink"
)

const bytesPerFloat32 = 4

// Buffer is a portaudio-backed ring buffer. A Buffer is created fresh for
// every NULL->READY transition and torn down on READY->NULL; Acquire and
// Release may be called repeatedly across PAUSED<->READY transitions on the
// same Buffer.
type Buffer struct {
	opts Options

	mu       sync.Mutex
	device   *pa.DeviceInfo
	stream   *pa.Stream
	spec     audiosink.Spec
	acquired bool

	segments [][]float32 // len == spec.SegTotal, each len == samplesPerSeg()*channels

	segBase  uint64
	segDone  uint64
	flushing bool
	mayStart bool

	resampler gosamplerate.Src
	pullCb    audiosink.PullCallback
}

// New returns an unopened ring buffer. Call OpenDevice before Acquire.
func New(opts ...Option) *Buffer {
	o := Options{DeviceName: "default", Channels: 2}
	for _, opt := range opts {
		opt(&o)
	}
	return &Buffer{opts: o}
}

// OpenDevice initializes portaudio and resolves the configured output
// device, without yet opening a stream (the stream's parameters depend on
// the Spec handed to Acquire).
func (b *Buffer) OpenDevice() error {
	if err := pa.Initialize(); err != nil {
		return err
	}

	info, err := pa.DefaultOutputDevice()
	if err != nil {
		return err
	}
	if b.opts.DeviceName != "" && b.opts.DeviceName != "default" {
		info, err = deviceByName(b.opts.DeviceName)
		if err != nil {
			return err
		}
	}
	b.device = info
	return nil
}

// CloseDevice terminates portaudio. The Buffer must be released first.
func (b *Buffer) CloseDevice() error {
	return pa.Terminate()
}

// Acquire opens a portaudio stream matching spec and allocates the segment
// array. FramesPerBuffer is set to spec's samples-per-segment so the device
// callback always consumes exactly one segment.
func (b *Buffer) Acquire(spec audiosink.Spec) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.device == nil {
		return fmt.Errorf("ringbuffer: device not open")
	}

	channels := b.opts.Channels
	if channels == 0 {
		channels = 2
	}
	framesPerSeg := spec.SamplesPerSeg() / channels

	streamParm := pa.StreamParameters{
		Output: pa.StreamDeviceParameters{
			Device:   b.device,
			Channels: channels,
			Latency:  b.opts.Latency,
		},
		SampleRate:      float64(spec.Rate),
		FramesPerBuffer: framesPerSeg,
	}

	stream, err := pa.OpenStream(streamParm, b.playCb)
	if err != nil {
		return fmt.Errorf("ringbuffer: open stream on %s: %w", b.opts.DeviceName, err)
	}

	srConv, err := gosamplerate.New(gosamplerate.SRC_SINC_FASTEST, channels, 65536)
	if err != nil {
		stream.Close()
		return fmt.Errorf("ringbuffer: samplerate converter: %w", err)
	}

	b.stream = stream
	b.spec = spec
	b.resampler = srConv
	b.segments = make([][]float32, spec.SegTotal)
	for i := range b.segments {
		b.segments[i] = make([]float32, spec.SamplesPerSeg())
	}
	b.segBase = 0
	b.segDone = 0
	b.flushing = false
	b.mayStart = false
	b.acquired = true
	return nil
}

// Release closes the stream and frees the segment array. The device itself
// stays open so a later Acquire can reuse it.
func (b *Buffer) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.acquired {
		return nil
	}
	b.acquired = false

	var err error
	if b.stream != nil {
		err = b.stream.Close()
		b.stream = nil
	}
	if b.resampler != nil {
		b.resampler.Reset()
		gosamplerate.Delete(b.resampler)
	}
	b.segments = nil
	return err
}

// IsAcquired reports whether a stream is currently open.
func (b *Buffer) IsAcquired() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acquired
}

// Start starts the device stream, if MayStart has allowed it.
func (b *Buffer) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.acquired || !b.mayStart {
		return nil
	}
	return b.stream.Start()
}

// Pause stops the device stream without releasing it.
func (b *Buffer) Pause() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.acquired {
		return nil
	}
	return b.stream.Stop()
}

// MayStart gates whether Start actually starts the device, matching the
// preroll rule that the ring buffer must not produce sound before the
// pipeline has committed its first buffer.
func (b *Buffer) MayStart(may bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mayStart = may
}

// SetFlushing, while true, makes every Commit a no-op and makes the device
// callback play silence, so a flush can't race with in-flight writes.
func (b *Buffer) SetFlushing(flushing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushing = flushing
}

// SamplesPerSeg returns the configured segment size in samples.
func (b *Buffer) SamplesPerSeg() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spec.SamplesPerSeg()
}

// Spec returns the format the ring buffer was last acquired with.
func (b *Buffer) Spec() audiosink.Spec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spec
}

// SegDone returns the number of segments the device has consumed since the
// last Acquire.
func (b *Buffer) SegDone() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.segDone
}

// SegBase returns the segment index corresponding to the start of the
// current acquisition; it only moves if a future Reset shifts the base, and
// today it is always zero.
func (b *Buffer) SegBase() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.segBase
}

// SamplesDone returns the number of samples played so far, derived from the
// segment counter.
func (b *Buffer) SamplesDone() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.segDone * uint64(b.spec.SamplesPerSeg())
}

// Delay returns the device's reported output latency, in samples.
func (b *Buffer) Delay() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream == nil {
		return 0
	}
	info := b.stream.Info()
	return uint32(info.OutputLatency.Seconds() * float64(b.spec.Rate))
}

// SetCallback stores the pull-mode data source. Nothing in Buffer invokes
// it: the device callback always plays from the segment array.
func (b *Buffer) SetCallback(cb audiosink.PullCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pullCb = cb
}

// Commit writes in samples of data into the segment array starting at
// *sampleOffset, resampling to out samples first when in != out. See
// audiosink.RingBuffer for the exact contract.
func (b *Buffer) Commit(sampleOffset *uint64, data []byte, in, out int, accum *int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.flushing || !b.acquired {
		return 0, nil
	}

	channels := b.opts.Channels
	if channels == 0 {
		channels = 2
	}

	frames := floatsFromBytes(data, channels*bytesPerFloat32)
	if in != out && in > 0 {
		ratio := float64(out) / float64(in)
		converted, err := b.resampler.Process(frames, ratio, false)
		if err != nil {
			return 0, fmt.Errorf("ringbuffer: resample: %w", err)
		}
		frames = converted
	}

	written := b.writeFrames(*sampleOffset, frames, channels)
	if in != out && in > 0 && written > 0 {
		// written counts input frames: all of data went through the resampler.
		written = in
	}

	advance := out
	if in > 0 {
		advance = out * written / in
	}
	*sampleOffset += uint64(advance)
	return written, nil
}

// writeFrames copies frame-interleaved samples into the segment array
// starting at the given absolute sample offset, wrapping across segment
// boundaries. It returns the number of input frames actually copied, which
// is always len(frames)/channels here: the segment array is sized generously
// enough (SegTotal segments of SegSize bytes, chosen from BufferTimeUs) that
// backpressure is not expected on the commit path itself; real backpressure
// shows up as the device callback starving, which the caller observes
// through SegDone advancing slower than it commits.
func (b *Buffer) writeFrames(sampleOffset uint64, frames []float32, channels int) int {
	if len(b.segments) == 0 || channels == 0 {
		return 0
	}
	samplesPerSeg := b.spec.SamplesPerSeg()
	if samplesPerSeg == 0 {
		return 0
	}
	framesPerSeg := samplesPerSeg / channels
	if framesPerSeg == 0 {
		return 0
	}

	total := len(frames) / channels
	pos := sampleOffset
	for i := 0; i < total; i++ {
		segIdx := int((pos / uint64(framesPerSeg)) % uint64(len(b.segments)))
		segOff := int(pos%uint64(framesPerSeg)) * channels
		seg := b.segments[segIdx]
		copy(seg[segOff:segOff+channels], frames[i*channels:(i+1)*channels])
		pos++
	}
	return total
}

// playCb is invoked by portaudio on its own thread once per segment's worth
// of frames. It never blocks: a segment the streaming thread hasn't reached
// yet is played as whatever was left there (silence, if never written).
func (b *Buffer) playCb(out []float32, _ pa.StreamCallbackTimeInfo, flags pa.StreamCallbackFlags) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if flags&pa.OutputUnderflow != 0 {
		// best effort: still play whatever segment is due
	}

	if len(b.segments) == 0 {
		for i := range out {
			out[i] = 0
		}
		return
	}

	segIdx := int(b.segDone % uint64(len(b.segments)))
	seg := b.segments[segIdx]
	n := 0
	if !b.flushing {
		n = copy(out, seg)
	}
	for i := n; i < len(out); i++ {
		out[i] = 0
	}

	b.segDone++
}

func deviceByName(name string) (*pa.DeviceInfo, error) {
	devices, err := pa.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == name && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("ringbuffer: output device %q not found", name)
}

func floatsFromBytes(data []byte, bytesPerFrame int) []float32 {
	if bytesPerFrame == 0 {
		return nil
	}
	n := len(data) / bytesPerFrame * (bytesPerFrame / bytesPerFloat32)
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		o := i * bytesPerFloat32
		bits := uint32(data[o]) | uint32(data[o+1])<<8 | uint32(data[o+2])<<16 | uint32(data[o+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
