package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dh1tw/audiosink/audiosink"
	"github.com/dh1tw/audiosink/discovery"
	"github.com/dh1tw/audiosink/ringbuffer"
	"github.com/dh1tw/audiosink/statusweb"
	"github.com/dh1tw/audiosink/wavsource"
)

// wallClock is a free-running reference clock anchored at its own
// construction time; it stands in for whatever clock a real pipeline would
// hand the sink, so that --slave-method actually has a foreign clock to
// slave against instead of the sink always being its own master.
type wallClock struct{ start time.Time }

func newWallClock() *wallClock { return &wallClock{start: time.Now()} }

func (w *wallClock) Now() (time.Duration, bool) { return time.Since(w.start), true }

var playCmd = &cobra.Command{
	Use:   "play <wavfile>",
	Short: "Play a wav file through the slaved audio sink renderer",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

func init() {
	RootCmd.AddCommand(playCmd)
	playCmd.Flags().Bool("advertise", false, "advertise this instance over mDNS while playing")
}

func runPlay(cmd *cobra.Command, args []string) error {
	method, err := audiosink.ParseSlaveMethod(viper.GetString("slave-method"))
	if err != nil {
		return err
	}

	src, err := wavsource.New(args[0])
	if err != nil {
		return fmt.Errorf("play: %w", err)
	}

	rb := ringbuffer.New(
		ringbuffer.DeviceName(viper.GetString("output-device")),
		ringbuffer.Channels(viper.GetInt("channels")),
	)

	sink := audiosink.NewBaseAudioSink(
		func() audiosink.RingBuffer { return rb },
		noUpstreamLatency{},
		audiosink.WithBufferTime(viper.GetInt64("buffer-time-us")),
		audiosink.WithLatencyTime(viper.GetInt64("latency-time-us")),
		audiosink.WithProvideClock(viper.GetBool("provide-clock")),
		audiosink.WithSlaveMethod(method),
	)

	if err := sink.NullToReady(); err != nil {
		return fmt.Errorf("play: open device: %w", err)
	}
	defer sink.ReadyToNull()

	if err := sink.SetCaps(src.Spec()); err != nil {
		return fmt.Errorf("play: negotiate format: %w", err)
	}
	if err := sink.ReadyToPaused(); err != nil {
		return err
	}

	pipelineClock := audiosink.Clock(newWallClock())
	if err := sink.PausedToPlaying(0, pipelineClock); err != nil {
		return fmt.Errorf("play: start: %w", err)
	}
	defer sink.PlayingToPaused()

	if addr := viper.GetString("status-addr"); addr != "" {
		srv := statusweb.New(sink, method)
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			if err := srv.ListenAndServe(addr, 500*time.Millisecond, stop); err != nil {
				fmt.Println("play: status server:", err)
			}
		}()
	}

	if advertise, _ := cmd.Flags().GetBool("advertise"); advertise {
		id := uuid.NewString()
		server, err := discovery.Advertise("audiosink-"+id[:8], statusPort(viper.GetString("status-addr")), id)
		if err == nil {
			defer server.Shutdown()
		}
	}

	fmt.Println("playing", args[0])
	return src.Play(func(buf audiosink.Buffer) error {
		return sink.Render(buf, audiosink.Segment{Rate: 1})
	})
}

// noUpstreamLatency reports that there is no upstream chain to query,
// matching a sink playing a local file with nothing feeding it.
type noUpstreamLatency struct{}

func (noUpstreamLatency) QueryLatency() (audiosink.LatencyQuery, bool) { return audiosink.LatencyQuery{}, false }

func statusPort(addr string) int {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			port := 0
			for _, c := range addr[i+1:] {
				if c < '0' || c > '9' {
					return 0
				}
				port = port*10 + int(c-'0')
			}
			return port
		}
	}
	return 0
}
