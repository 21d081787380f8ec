// Package codec converts between raw float samples and the wire PCM format
// used by the live endpoint: 16-bit signed little-endian, base64-encoded.
package codec

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"time"

	apperr "github.com/fluentvoice/platform/internal/errors"
)

const bytesPerSample = 2

// Buffer holds decoded audio samples normalized to [-1, 1].
type Buffer struct {
	Data       []float32
	SampleRate int
	Channels   int
}

// Duration returns the playback time of the buffer at its native rate.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Data) / b.Channels
	return time.Duration(float64(frames) / float64(b.SampleRate) * float64(time.Second))
}

// EncodeFrame converts float samples to base64 PCM16LE for transmission.
// Samples outside [-1, 1] are clamped. Total for all inputs.
func EncodeFrame(samples []float32) string {
	buf := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(buf[i*bytesPerSample:], uint16(int16(s*math.MaxInt16)))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeBase64 decodes a transport-safe payload into raw bytes.
func DecodeBase64(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeDecodeFailed, "malformed base64 audio payload")
	}
	return raw, nil
}

// DecodeToBuffer interprets raw bytes as PCM16LE and rescales to float32.
// The byte length must be a multiple of the sample width.
func DecodeToBuffer(raw []byte, sampleRate, channels int) (*Buffer, error) {
	if len(raw)%bytesPerSample != 0 {
		return nil, apperr.Newf(apperr.CodeAudioFormat, "pcm payload length %d is not sample-aligned", len(raw))
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, apperr.Newf(apperr.CodeAudioFormat, "invalid format: rate=%d channels=%d", sampleRate, channels)
	}

	data := make([]float32, len(raw)/bytesPerSample)
	for i := range data {
		v := int16(binary.LittleEndian.Uint16(raw[i*bytesPerSample:]))
		data[i] = float32(v) / 32768
	}

	return &Buffer{Data: data, SampleRate: sampleRate, Channels: channels}, nil
}
