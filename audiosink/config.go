package audiosink

import "fmt"

// SlaveMethod selects the clock-slaving strategy used while the sink is not
// the pipeline's clock master.
type SlaveMethod int

const (
	// SlaveResample schedules samples on a drifting target so an external
	// resampler inside the ring buffer implicitly compensates for drift.
	SlaveResample SlaveMethod = iota
	// SlaveSkew periodically nudges the device clock's calibration to walk
	// the playout pointer back in line with the reference clock.
	SlaveSkew
	// SlaveNone applies only the fixed initial calibration offset and never
	// tracks drift afterwards.
	SlaveNone
)

func (m SlaveMethod) String() string {
	switch m {
	case SlaveResample:
		return "resample"
	case SlaveSkew:
		return "skew"
	case SlaveNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseSlaveMethod parses the slave-method property string.
func ParseSlaveMethod(s string) (SlaveMethod, error) {
	switch s {
	case "resample":
		return SlaveResample, nil
	case "skew":
		return SlaveSkew, nil
	case "none":
		return SlaveNone, nil
	default:
		return 0, fmt.Errorf("audiosink: unknown slave method %q", s)
	}
}

// Config holds the properties the application can set on a BaseAudioSink.
// SlaveMethod is copied into the slaving engine on each PAUSED->PLAYING
// transition; BufferTimeUs and LatencyTimeUs are read when SetCaps derives
// the segment geometry.
type Config struct {
	BufferTimeUs  int64 // requested device buffer duration, in microseconds
	LatencyTimeUs int64 // requested segment duration, in microseconds
	ProvideClock  bool
	SlaveMethod   SlaveMethod
}

// DefaultConfig returns the documented default property values.
func DefaultConfig() Config {
	return Config{
		BufferTimeUs:  200_000,
		LatencyTimeUs: 10_000,
		ProvideClock:  true,
		SlaveMethod:   SlaveSkew,
	}
}

// Option configures a BaseAudioSink at construction time.
type Option func(*Config)

// WithBufferTime sets the requested device buffer duration in microseconds.
func WithBufferTime(us int64) Option {
	return func(c *Config) { c.BufferTimeUs = us }
}

// WithLatencyTime sets the requested segment duration in microseconds.
func WithLatencyTime(us int64) Option {
	return func(c *Config) { c.LatencyTimeUs = us }
}

// WithProvideClock sets Config.ProvideClock. BaseAudioSink does not read
// it: Clock returns the provided clock whatever its value.
func WithProvideClock(provide bool) Option {
	return func(c *Config) { c.ProvideClock = provide }
}

// WithSlaveMethod selects the clock-slaving strategy.
func WithSlaveMethod(m SlaveMethod) Option {
	return func(c *Config) { c.SlaveMethod = m }
}
