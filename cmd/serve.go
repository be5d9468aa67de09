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
	"github.com/dh1tw/audiosink/rtpsource"
	"github.com/dh1tw/audiosink/statusweb"
	"github.com/dh1tw/audiosink/transport"
)

const bytesPerFloat32 = 4

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive opus-over-RTP audio and render it through the slaved sink",
	RunE:  runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":5004", "UDP address to receive RTP packets on")
	serveCmd.Flags().Int("samplerate", 48000, "opus decode samplerate")
	serveCmd.Flags().Bool("advertise", true, "advertise this instance over mDNS")
	serveCmd.Flags().String("nats-url", "", "if set, publish warnings and latency reports on this NATS server")
}

func runServe(cmd *cobra.Command, args []string) error {
	method, err := audiosink.ParseSlaveMethod(viper.GetString("slave-method"))
	if err != nil {
		return err
	}

	listen, _ := cmd.Flags().GetString("listen")
	samplerate, _ := cmd.Flags().GetInt("samplerate")
	channels := viper.GetInt("channels")

	src, err := rtpsource.New(
		rtpsource.ListenAddr(listen),
		rtpsource.Samplerate(samplerate),
		rtpsource.Channels(channels),
	)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	rb := ringbuffer.New(
		ringbuffer.DeviceName(viper.GetString("output-device")),
		ringbuffer.Channels(channels),
	)

	sink := audiosink.NewBaseAudioSink(
		func() audiosink.RingBuffer { return rb },
		noUpstreamLatency{},
		audiosink.WithBufferTime(viper.GetInt64("buffer-time-us")),
		audiosink.WithLatencyTime(viper.GetInt64("latency-time-us")),
		audiosink.WithProvideClock(viper.GetBool("provide-clock")),
		audiosink.WithSlaveMethod(method),
	)

	var tc *transport.Client
	if natsURL, _ := cmd.Flags().GetString("nats-url"); natsURL != "" {
		tc, err = transport.Connect(transport.Settings{URL: natsURL})
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		defer tc.Close()

		sink.SetWarner(func(drift time.Duration) {
			msg := fmt.Sprintf("compensating for audio synchronisation problems: drift %v", drift)
			us := drift.Microseconds()
			if err := tc.PublishControl(transport.ControlMsg{LatencyUs: &us, Warning: &msg}); err != nil {
				fmt.Println("serve: publish warning:", err)
			}
		})
	}

	if err := sink.NullToReady(); err != nil {
		return fmt.Errorf("serve: open device: %w", err)
	}
	defer sink.ReadyToNull()

	spec := audiosink.Spec{Rate: samplerate, BytesPerSample: bytesPerFloat32 * channels}
	if err := sink.SetCaps(spec); err != nil {
		return fmt.Errorf("serve: negotiate format: %w", err)
	}
	if err := sink.ReadyToPaused(); err != nil {
		return err
	}

	pipelineClock := audiosink.Clock(newWallClock())
	if err := sink.PausedToPlaying(0, pipelineClock); err != nil {
		return fmt.Errorf("serve: start: %w", err)
	}
	defer sink.PlayingToPaused()

	discont := true
	src.SetCb(func(buf audiosink.Buffer) {
		buf.Discont = discont
		discont = false
		if err := sink.Render(buf, audiosink.Segment{Rate: 1}); err != nil {
			fmt.Println("serve: render:", err)
		}
	})

	if err := src.Start(); err != nil {
		return fmt.Errorf("serve: listen on %s: %w", listen, err)
	}
	defer src.Stop()

	statusAddr := viper.GetString("status-addr")
	if statusAddr != "" {
		srv := statusweb.New(sink, method)
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			if err := srv.ListenAndServe(statusAddr, 500*time.Millisecond, stop); err != nil {
				fmt.Println("serve: status server:", err)
			}
		}()
	}

	if advertise, _ := cmd.Flags().GetBool("advertise"); advertise {
		id := uuid.NewString()
		server, err := discovery.Advertise("audiosink-"+id[:8], statusPort(statusAddr), id)
		if err != nil {
			fmt.Println("serve: mdns advertise:", err)
		} else {
			defer server.Shutdown()
		}
	}

	fmt.Println("listening for RTP audio on", listen)
	select {}
}
