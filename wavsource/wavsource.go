// Package wavsource decodes a wav file into a sequence of timestamped
// audiosink.Buffer values, the producer side feeding a BaseAudioSink.
package wavsource

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	ga "github.com/go-audio/audio"
	wav "github.com/go-audio/wav"

	"github.com/dh1tw/audiosink/audiosink"
)

const bytesPerFloat32 = 4

// Source reads an entire wav file into memory at construction time and
// replays it as a sequence of Buffers carrying monotonically increasing
// timestamps, one FramesPerBuffer frames at a time.
type Source struct {
	mu        sync.Mutex
	options   Options
	spec      audiosink.Spec
	frames    [][]byte // pre-sliced into FramesPerBuffer-sized chunks
	playing   bool
	stop      chan struct{}
}

// New reads file and returns a Source ready to push its decoded content
// through push. The wav file's format becomes the audiosink.Spec this
// source produces against; the caller is responsible for negotiating that
// format with the sink before starting playback.
func New(file string, opts ...Option) (*Source, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, errors.New("wavsource: invalid wav file")
	}

	s := &Source{options: Options{FramesPerBuffer: DefaultFramesPerBuffer}}
	for _, o := range opts {
		o(&s.options)
	}

	format := dec.Format()
	s.spec = audiosink.Spec{Rate: format.SampleRate, BytesPerSample: bytesPerFloat32 * format.NumChannels}

	buf := &ga.IntBuffer{Data: make([]int, s.options.FramesPerBuffer*format.NumChannels), Format: format}
	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return nil, fmt.Errorf("wavsource: decode %s: %w", file, err)
		}
		if n == 0 {
			break
		}
		floats := buf.AsFloat32Buffer().Data
		if n != len(floats) {
			floats = floats[:n]
		}
		s.frames = append(s.frames, float32Bytes(floats))
	}

	return s, nil
}

// Spec returns the format the wav file was encoded in.
func (s *Source) Spec() audiosink.Spec {
	return s.spec
}

// Play pushes every decoded buffer through push, spaced by the buffer's own
// duration so the caller's sink sees realistic timestamps, and returns once
// the whole file has been pushed or push returns a non-nil error.
func (s *Source) Play(push func(audiosink.Buffer) error) error {
	s.mu.Lock()
	if s.playing {
		s.mu.Unlock()
		return errors.New("wavsource: already playing")
	}
	s.playing = true
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.playing = false
		s.mu.Unlock()
	}()

	var ts time.Duration
	ticker := time.NewTicker(s.bufferDuration())
	defer ticker.Stop()

	for i, chunk := range s.frames {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
		}

		discont := i == 0
		tsCopy := ts
		if err := push(audiosink.Buffer{Data: chunk, Timestamp: &tsCopy, Discont: discont}); err != nil {
			return err
		}
		samples := len(chunk) / s.spec.BytesPerSample
		ts += time.Duration(samples) * time.Second / time.Duration(s.spec.Rate)
	}
	return nil
}

// Stop cancels an in-progress Play.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		close(s.stop)
	}
}

func (s *Source) bufferDuration() time.Duration {
	return time.Duration(s.options.FramesPerBuffer) * time.Second / time.Duration(s.spec.Rate)
}

// float32Bytes packs interleaved float32 samples into little-endian bytes,
// the format the ring buffer's portaudio device stream expects.
func float32Bytes(data []float32) []byte {
	out := make([]byte, len(data)*bytesPerFloat32)
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[i*bytesPerFloat32:], math.Float32bits(v))
	}
	return out
}
