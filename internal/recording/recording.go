// Package recording wraps a platform audio-capture primitive into a
// start/stop lifecycle that yields a finished audio buffer.
package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrMicrophoneUnavailable covers permission denial and a missing device.
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")
	// ErrRecorderNotActive is returned when stopping a handle that already stopped.
	ErrRecorderNotActive = errors.New("recorder is not active")
)

// AudioBuffer is a finished recording. It is handed to the transcription
// client once and not retained.
type AudioBuffer struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Capturer is the platform capture capability.
type Capturer interface {
	Start(ctx context.Context) (Stream, error)
}

// Stream is an open capture. Stop finalizes it and releases the device.
type Stream interface {
	Stop() (AudioBuffer, error)
}

// Handle identifies one active recording.
type Handle struct {
	StartedAt time.Time

	mu      sync.Mutex
	stream  Stream
	stopped bool
}

// Active reports whether the handle has not been stopped yet.
func (h *Handle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.stopped
}

// Controller drives a Capturer. It does not enforce a single active handle;
// the session does.
type Controller struct {
	capturer Capturer
	log      zerolog.Logger
}

func NewController(c Capturer, log zerolog.Logger) *Controller {
	return &Controller{capturer: c, log: log}
}

// Start opens the capture device.
func (c *Controller) Start(ctx context.Context) (*Handle, error) {
	s, err := c.capturer.Start(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("capture start failed")
		if errors.Is(err, ErrMicrophoneUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	c.log.Debug().Msg("capture started")
	return &Handle{StartedAt: time.Now(), stream: s}, nil
}

// Stop finalizes the recording behind h.
func (c *Controller) Stop(h *Handle) (AudioBuffer, error) {
	if h == nil {
		return AudioBuffer{}, ErrRecorderNotActive
	}
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return AudioBuffer{}, ErrRecorderNotActive
	}
	h.stopped = true
	s := h.stream
	h.stream = nil
	h.mu.Unlock()

	buf, err := s.Stop()
	if err != nil {
		return AudioBuffer{}, fmt.Errorf("stop capture: %w", err)
	}
	if buf.ContentType == "" {
		buf.ContentType = "audio/wav"
	}
	if buf.Filename == "" {
		buf.Filename = "recording.wav"
	}
	c.log.Debug().
		Int("bytes", len(buf.Data)).
		Dur("duration", time.Since(h.StartedAt)).
		Msg("capture stopped")
	return buf, nil
}

// StaticCapturer replays a fixed buffer. It stands in for a microphone on
// hosts without one and in tests.
type StaticCapturer struct {
	Data     []byte
	StartErr error
	StopErr  error
}

func (s *StaticCapturer) Start(ctx context.Context) (Stream, error) {
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	return staticStream{data: s.Data, err: s.StopErr}, nil
}

type staticStream struct {
	data []byte
	err  error
}

func (s staticStream) Stop() (AudioBuffer, error) {
	if s.err != nil {
		return AudioBuffer{}, s.err
	}
	return AudioBuffer{Data: append([]byte(nil), s.data...), ContentType: "audio/wav", Filename: "recording.wav"}, nil
}
