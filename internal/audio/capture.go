// Package audio handles microphone capture for the live session.
package audio

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	apperr "github.com/fluentvoice/platform/internal/errors"
)

// Frame is one fixed-size block of mono float samples from the microphone.
// Frames are contiguous and delivered in capture order.
type Frame struct {
	Data      []float32
	Timestamp int64
}

// FrameHandler receives captured frames. It is called from the capture
// goroutine and must not block for long.
type FrameHandler func(Frame)

// Capturer reads fixed-size frames from the default input device.
type Capturer struct {
	sampleRate int
	frameSize  int

	mu       sync.Mutex
	stream   *portaudio.Stream
	cancel   context.CancelFunc
	running  bool
	stopOnce *sync.Once
	stopped  chan struct{}
}

// NewCapturer initializes the audio host and prepares a capturer.
func NewCapturer(sampleRate, frameSize int) (*Capturer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeMicUnavailable, "audio host init failed")
	}
	return &Capturer{
		sampleRate: sampleRate,
		frameSize:  frameSize,
	}, nil
}

// Start acquires the default microphone and begins delivering frames to
// onFrame in strict capture order. Returns a classified error when the
// device is denied or absent.
func (c *Capturer) Start(ctx context.Context, onFrame FrameHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil {
		return apperr.Wrap(err, apperr.CodeMicUnavailable, "no default input device")
	}
	if dev.MaxInputChannels < 1 {
		return apperr.New(apperr.CodeMicUnavailable, "default device has no input channels")
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(c.sampleRate),
		FramesPerBuffer: c.frameSize,
	}

	buf := make([]float32, c.frameSize)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return classifyDeviceError(err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return classifyDeviceError(err)
	}

	capCtx, cancel := context.WithCancel(ctx)
	c.stream = stream
	c.cancel = cancel
	c.running = true
	c.stopOnce = &sync.Once{}
	c.stopped = make(chan struct{})

	slog.Info("started audio capture", "device", dev.Name, "rate", c.sampleRate, "frame", c.frameSize)

	go c.readLoop(capCtx, stream, buf, onFrame)

	return nil
}

func (c *Capturer) readLoop(ctx context.Context, stream *portaudio.Stream, buf []float32, onFrame FrameHandler) {
	defer close(c.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil {
			slog.Debug("audio read error", "error", err)
			return
		}

		// Copy before handing off: the stream reuses buf for the next read.
		onFrame(Frame{
			Data:      append([]float32(nil), buf...),
			Timestamp: time.Now().UnixNano(),
		})
	}
}

// Stop releases the microphone. Idempotent: safe to call twice or on a
// capturer that never started. The device is released before Stop returns.
func (c *Capturer) Stop() {
	c.mu.Lock()
	once := c.stopOnce
	stopped := c.stopped
	c.mu.Unlock()

	if once == nil {
		return
	}

	once.Do(func() {
		c.mu.Lock()
		cancel := c.cancel
		stream := c.stream
		c.running = false
		c.stream = nil
		c.cancel = nil
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if stream != nil {
			_ = stream.Abort()
			_ = stream.Close()
		}
		if stopped != nil {
			<-stopped
		}
	})
}

// Terminate releases the audio host. Call after the final Stop.
func (c *Capturer) Terminate() {
	c.Stop()
	_ = portaudio.Terminate()
}

// classifyDeviceError maps host errors onto the capture error taxonomy.
func classifyDeviceError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "denied") || strings.Contains(msg, "access"):
		return apperr.Wrap(err, apperr.CodeMicPermission, "microphone access denied")
	case strings.Contains(msg, "no device") || strings.Contains(msg, "device unavailable") || strings.Contains(msg, "invalid device"):
		return apperr.Wrap(err, apperr.CodeMicUnavailable, "input device unavailable")
	default:
		return apperr.Wrap(err, apperr.CodeMicUnavailable, "failed to open input stream")
	}
}
