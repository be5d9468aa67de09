package opus

import gopus "gopkg.in/hraban/opus.v2"

// Option configures a Codec at construction time.
type Option func(*Options)

// Options holds the opus codec parameters.
type Options struct {
	Samplerate   float64
	Channels     int
	Application  gopus.Application
	Bitrate      int
	Complexity   int
	MaxBandwidth gopus.Bandwidth
}

func Samplerate(rate float64) Option {
	return func(o *Options) { o.Samplerate = rate }
}

func Channels(ch int) Option {
	return func(o *Options) { o.Channels = ch }
}

func Bitrate(bps int) Option {
	return func(o *Options) { o.Bitrate = bps }
}

func Complexity(c int) Option {
	return func(o *Options) { o.Complexity = c }
}
