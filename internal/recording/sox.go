package recording

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// startupGrace is how long a capture process must survive to count as started.
// sox exits almost immediately when the device is missing or access is denied.
const startupGrace = 300 * time.Millisecond

// SoxCapturer records from the default input device with sox into a temp WAV.
type SoxCapturer struct {
	command string
	tmpDir  string
	log     zerolog.Logger
}

// NewSoxCapturer creates a capturer running command ("sox" or "rec").
func NewSoxCapturer(command string, log zerolog.Logger) *SoxCapturer {
	if command == "" {
		command = "sox"
	}
	return &SoxCapturer{command: command, tmpDir: os.TempDir(), log: log}
}

// Available reports whether the capture command is in PATH.
func (s *SoxCapturer) Available() bool {
	_, err := exec.LookPath(s.command)
	return err == nil
}

func (s *SoxCapturer) Start(ctx context.Context) (Stream, error) {
	if !s.Available() {
		return nil, fmt.Errorf("%w: %s not found in PATH", ErrMicrophoneUnavailable, s.command)
	}

	f, err := os.CreateTemp(s.tmpDir, "medscribe-capture-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	outPath := f.Name()
	f.Close()

	// The process outlives the request that started it, so it is not bound to ctx.
	cmd := exec.Command(s.command, soxArgs(s.command, outPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		os.Remove(outPath)
		return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		os.Remove(outPath)
		msg := strings.TrimSpace(stderr.String())
		if msg == "" && err != nil {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrMicrophoneUnavailable, msg)
	case <-time.After(startupGrace):
	case <-ctx.Done():
		cmd.Process.Kill()
		<-done
		os.Remove(outPath)
		return nil, ctx.Err()
	}

	s.log.Info().Str("command", s.command).Str("file", filepath.Base(outPath)).Msg("microphone capture running")
	return &soxStream{cmd: cmd, done: done, path: outPath, log: s.log}, nil
}

func soxArgs(command, outPath string) []string {
	format := []string{"-q", "-c", "1", "-r", "16000", "-b", "16"}
	if filepath.Base(command) == "rec" {
		return append(format, outPath)
	}
	// -d selects the default audio device as input.
	return append(append([]string{"-d"}, format...), outPath)
}

type soxStream struct {
	cmd  *exec.Cmd
	done chan error
	path string
	log  zerolog.Logger
}

func (s *soxStream) Stop() (AudioBuffer, error) {
	defer os.Remove(s.path)

	// SIGINT lets sox write the final WAV header.
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		s.log.Debug().Err(err).Msg("interrupt capture process")
	}
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("capture process did not exit, killing")
		s.cmd.Process.Kill()
		<-s.done
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return AudioBuffer{}, fmt.Errorf("read capture: %w", err)
	}
	if len(data) == 0 {
		return AudioBuffer{}, fmt.Errorf("capture produced no audio")
	}
	return AudioBuffer{Data: data, ContentType: "audio/wav", Filename: "recording.wav"}, nil
}
