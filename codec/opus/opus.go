// Package opus wraps gopkg.in/hraban/opus.v2 into the interleaved float32
// PCM byte format audiosink.Buffer and the ring buffer's device stream both
// use, so an opus-encoded source can be decoded straight into a Render call.
package opus

import (
	"encoding/binary"
	"math"

	gopus "gopkg.in/hraban/opus.v2"
)

const bytesPerFloat32 = 4

// Decoder decodes opus packets into interleaved float32 PCM bytes.
type Decoder struct {
	options Options
	decoder *gopus.Decoder
	pcm     []float32 // scratch buffer, reused across Decode calls
}

// NewDecoder returns a decoder for the given samplerate/channels.
func NewDecoder(opts ...Option) (*Decoder, error) {
	d := &Decoder{options: Options{Samplerate: 48000, Channels: 2}}
	for _, o := range opts {
		o(&d.options)
	}

	dec, err := gopus.NewDecoder(int(d.options.Samplerate), d.options.Channels)
	if err != nil {
		return nil, err
	}
	d.decoder = dec
	d.pcm = make([]float32, int(d.options.Samplerate/50)*d.options.Channels) // 20ms scratch, allocated once and never grown
	return d, nil
}

// Decode decodes one opus packet and returns the interleaved float32 PCM it
// carries, packed into little-endian bytes ready for a Render call.
func (d *Decoder) Decode(packet []byte) ([]byte, error) {
	n, err := d.decoder.DecodeFloat32(packet, d.pcm)
	if err != nil {
		return nil, err
	}
	return float32Bytes(d.pcm[:n*d.options.Channels]), nil
}

// Encoder encodes interleaved float32 PCM bytes into opus packets.
type Encoder struct {
	options Options
	encoder *gopus.Encoder
}

// NewEncoder returns an encoder for the given samplerate/channels/bitrate.
func NewEncoder(opts ...Option) (*Encoder, error) {
	e := &Encoder{options: Options{
		Samplerate:   48000,
		Channels:     1,
		Application:  gopus.AppRestrictedLowdelay,
		Bitrate:      24000,
		Complexity:   5,
		MaxBandwidth: gopus.Wideband,
	}}
	for _, o := range opts {
		o(&e.options)
	}

	enc, err := gopus.NewEncoder(int(e.options.Samplerate), e.options.Channels, e.options.Application)
	if err != nil {
		return nil, err
	}
	if err := enc.SetBitrate(e.options.Bitrate); err != nil {
		return nil, err
	}
	if err := enc.SetComplexity(e.options.Complexity); err != nil {
		return nil, err
	}
	if err := enc.SetMaxBandwidth(e.options.MaxBandwidth); err != nil {
		return nil, err
	}

	e.encoder = enc
	return e, nil
}

// Encode opus-encodes the interleaved float32 PCM bytes in data into an
// opus packet.
func (e *Encoder) Encode(data []byte) ([]byte, error) {
	pcm := floatsFromBytes(data)
	out := make([]byte, 4000)
	n, err := e.encoder.EncodeFloat32(pcm, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func float32Bytes(data []float32) []byte {
	out := make([]byte, len(data)*bytesPerFloat32)
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[i*bytesPerFloat32:], math.Float32bits(v))
	}
	return out
}

func floatsFromBytes(data []byte) []float32 {
	n := len(data) / bytesPerFloat32
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		o := i * bytesPerFloat32
		bits := uint32(data[o]) | uint32(data[o+1])<<8 | uint32(data[o+2])<<16 | uint32(data[o+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
