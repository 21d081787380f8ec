package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/fluentvoice/platform/internal/codec"
	apperr "github.com/fluentvoice/platform/internal/errors"
)

const sinkChunkFrames = 1024

// DeviceSink plays buffers on the default output device. Writes are
// serialized; the scheduler guarantees start times do not overlap.
type DeviceSink struct {
	sampleRate int
	channels   int

	writeMu sync.Mutex
	stream  *portaudio.Stream
	out     []float32

	closeOnce sync.Once
	closeErr  error
}

// NewDeviceSink opens the default output device at the fixed output profile
// (24 kHz mono for the live endpoint).
func NewDeviceSink(sampleRate, channels int) (*DeviceSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "audio host init failed")
	}

	out := make([]float32, sinkChunkFrames*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), sinkChunkFrames, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to open output stream")
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to start output stream")
	}

	return &DeviceSink{
		sampleRate: sampleRate,
		channels:   channels,
		stream:     stream,
		out:        out,
	}, nil
}

type deviceHandle struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func (h *deviceHandle) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// ScheduleAt waits until startAt, then streams the buffer to the device in
// small chunks so Stop takes effect within one chunk duration.
func (s *DeviceSink) ScheduleAt(buf *codec.Buffer, startAt time.Time, rate float64, onDone func()) (Handle, error) {
	h := &deviceHandle{stop: make(chan struct{})}

	go func() {
		if wait := time.Until(startAt); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-h.stop:
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		samples := resampleForRate(buf.Data, rate)
		for off := 0; off < len(samples); off += len(s.out) {
			select {
			case <-h.stop:
				return
			default:
			}

			end := off + len(s.out)
			if end > len(samples) {
				end = len(samples)
			}

			if !s.writeChunk(samples[off:end]) {
				return
			}
		}

		onDone()
	}()

	return h, nil
}

// writeChunk pushes one chunk to the device. Returns false when playback
// should stop, including when Close has already released the stream.
func (s *DeviceSink) writeChunk(chunk []float32) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.stream == nil {
		return false
	}

	n := copy(s.out, chunk)
	// Zero-pad the tail chunk so stale samples don't replay.
	for i := n; i < len(s.out); i++ {
		s.out[i] = 0
	}
	if err := s.stream.Write(); err != nil {
		slog.Debug("playback write error", "error", err)
		return false
	}
	return true
}

// Close stops the stream and releases the audio host. Idempotent.
func (s *DeviceSink) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		if s.stream != nil {
			_ = s.stream.Abort()
			s.closeErr = s.stream.Close()
			s.stream = nil
		}
		s.writeMu.Unlock()
		_ = portaudio.Terminate()
	})
	return s.closeErr
}

// resampleForRate applies the speed multiplier by linear interpolation:
// rate > 1 consumes source samples faster, shortening playback.
func resampleForRate(src []float32, rate float64) []float32 {
	if rate == 1 || len(src) == 0 {
		return src
	}

	outLen := int(float64(len(src)) / rate)
	if outLen < 1 {
		outLen = 1
	}

	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * rate
		j := int(pos)
		if j >= len(src)-1 {
			out[i] = src[len(src)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = src[j]*(1-frac) + src[j+1]*frac
	}
	return out
}
