package wavsource

const DefaultFramesPerBuffer = 1024

// Option configures a Source at construction time.
type Option func(*Options)

type Options struct {
	FramesPerBuffer int
}

// FramesPerBuffer sets how many frames each produced audiosink.Buffer
// carries.
func FramesPerBuffer(n int) Option {
	return func(o *Options) { o.FramesPerBuffer = n }
}
