package ringbuffer

import "time"

// Option configures a Buffer at construction time.
type Option func(*Options)

// Options holds the device-selection knobs the application can set before
// opening the playback device. The segment geometry itself (SegSize,
// SegTotal) is not set here: it arrives in the audiosink.Spec handed to
// Acquire, which BaseAudioSink.SetCaps derives from the sink's BufferTimeUs
// and LatencyTimeUs.
type Options struct {
	DeviceName string
	Channels   int
	Latency    time.Duration
}

// DeviceName selects the portaudio output device by name; "default" (the
// zero value's effective fallback) picks the host's default output device.
func DeviceName(name string) Option {
	return func(o *Options) { o.DeviceName = name }
}

// Channels sets the number of interleaved channels the device stream opens
// with.
func Channels(ch int) Option {
	return func(o *Options) { o.Channels = ch }
}

// Latency sets the suggested output latency passed to portaudio when
// opening the stream.
func Latency(d time.Duration) Option {
	return func(o *Options) { o.Latency = d }
}
