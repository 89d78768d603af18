package recording

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestControllerLifecycle(t *testing.T) {
	c := NewController(&StaticCapturer{Data: []byte("RIFF")}, zerolog.Nop())

	h, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !h.Active() {
		t.Error("handle should be active after Start")
	}

	buf, err := c.Stop(h)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if string(buf.Data) != "RIFF" {
		t.Errorf("Data = %q, want RIFF", buf.Data)
	}
	if buf.Filename != "recording.wav" || buf.ContentType != "audio/wav" {
		t.Errorf("buffer metadata = %q %q", buf.Filename, buf.ContentType)
	}

	t.Run("second_stop_not_active", func(t *testing.T) {
		if _, err := c.Stop(h); !errors.Is(err, ErrRecorderNotActive) {
			t.Errorf("err = %v, want ErrRecorderNotActive", err)
		}
	})

	t.Run("nil_handle_not_active", func(t *testing.T) {
		if _, err := c.Stop(nil); !errors.Is(err, ErrRecorderNotActive) {
			t.Errorf("err = %v, want ErrRecorderNotActive", err)
		}
	})
}

func TestControllerStartWrapsFailures(t *testing.T) {
	t.Run("permission_denied", func(t *testing.T) {
		c := NewController(&StaticCapturer{StartErr: errors.New("NotAllowedError")}, zerolog.Nop())
		_, err := c.Start(context.Background())
		if !errors.Is(err, ErrMicrophoneUnavailable) {
			t.Errorf("err = %v, want ErrMicrophoneUnavailable", err)
		}
	})

	t.Run("already_typed", func(t *testing.T) {
		c := NewController(&StaticCapturer{StartErr: ErrMicrophoneUnavailable}, zerolog.Nop())
		_, err := c.Start(context.Background())
		if err != ErrMicrophoneUnavailable {
			t.Errorf("err = %v, want bare ErrMicrophoneUnavailable", err)
		}
	})
}

func TestSoxCapturerMissingCommand(t *testing.T) {
	s := NewSoxCapturer("medscribe-no-such-recorder", zerolog.Nop())
	if s.Available() {
		t.Skip("unexpected command in PATH")
	}
	_, err := s.Start(context.Background())
	if !errors.Is(err, ErrMicrophoneUnavailable) {
		t.Errorf("err = %v, want ErrMicrophoneUnavailable", err)
	}
}

func TestSoxArgs(t *testing.T) {
	args := soxArgs("sox", "/tmp/out.wav")
	if args[0] != "-d" || args[len(args)-1] != "/tmp/out.wav" {
		t.Errorf("sox args = %v", args)
	}
	args = soxArgs("/usr/bin/rec", "/tmp/out.wav")
	if args[0] == "-d" {
		t.Errorf("rec should not get -d: %v", args)
	}
}
