// Package rtpsource receives opus-in-RTP audio over UDP and decodes it into
// timestamped audiosink.Buffer values.
package rtpsource

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"

	"github.com/dh1tw/audiosink/audiosink"
	"github.com/dh1tw/audiosink/codec/opus"
)

// Source listens for RTP packets on a UDP socket, decodes their opus
// payload, and hands decoded buffers to the callback set with SetCb. The
// buffer's timestamp is derived from the RTP timestamp field, scaled by the
// codec's samplerate and corrected for the 32-bit field's wraparound.
type Source struct {
	mu      sync.Mutex
	options Options
	decoder *opus.Decoder
	conn    *net.UDPConn
	cb      func(audiosink.Buffer)
	running bool

	lastRTPTs uint32
	epoch     int64 // wraparound count, each worth 1<<32 RTP ticks
	haveFirst bool
}

// New returns a Source that will listen on opts.ListenAddr once Start is
// called.
func New(opts ...Option) (*Source, error) {
	o := Options{ListenAddr: ":5004", Samplerate: 48000, Channels: 2}
	for _, opt := range opts {
		opt(&o)
	}

	dec, err := opus.NewDecoder(opus.Samplerate(float64(o.Samplerate)), opus.Channels(o.Channels))
	if err != nil {
		return nil, fmt.Errorf("rtpsource: %w", err)
	}

	return &Source{options: o, decoder: dec}, nil
}

// SetCb sets the callback invoked with every decoded buffer.
func (s *Source) SetCb(cb func(audiosink.Buffer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

// Start opens the UDP socket and begins decoding packets on a background
// goroutine.
func (s *Source) Start() error {
	addr, err := net.ResolveUDPAddr("udp", s.options.ListenAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.running = true
	s.mu.Unlock()

	go s.readLoop(conn)
	return nil
}

// Stop closes the UDP socket, ending the read loop.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Source) readLoop(conn *net.UDPConn) {
	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}

		data, err := s.decoder.Decode(pkt.Payload)
		if err != nil {
			continue
		}

		ts := s.runningTime(pkt.Timestamp)

		s.mu.Lock()
		cb := s.cb
		s.mu.Unlock()
		if cb != nil {
			cb(audiosink.Buffer{Data: data, Timestamp: &ts})
		}
	}
}

// runningTime converts an RTP timestamp (a 32-bit sample counter, wrapping
// every 1<<32 samples at the codec's rate) into a monotonically increasing
// time.Duration, tracking wraparounds against the previously seen value.
func (s *Source) runningTime(rtpTs uint32) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveFirst {
		s.lastRTPTs = rtpTs
		s.haveFirst = true
	} else if rtpTs < s.lastRTPTs && s.lastRTPTs-rtpTs > 1<<31 {
		s.epoch++
	}
	s.lastRTPTs = rtpTs

	total := s.epoch<<32 | int64(rtpTs)
	return time.Duration(total) * time.Second / time.Duration(s.options.Samplerate)
}
