package playback

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// EspeakSynthesizer speaks through the espeak-ng command line tool.
type EspeakSynthesizer struct {
	command string
	log     zerolog.Logger

	mu      sync.Mutex
	current *exec.Cmd
}

func NewEspeakSynthesizer(command string, log zerolog.Logger) *EspeakSynthesizer {
	if command == "" {
		command = "espeak-ng"
	}
	return &EspeakSynthesizer{command: command, log: log}
}

// Speak starts speaking and returns; a new call interrupts the previous one.
func (e *EspeakSynthesizer) Speak(ctx context.Context, text, lang string, voice *Voice) error {
	v := strings.ToLower(lang)
	if voice != nil {
		v = voice.ID
	}
	args := []string{"-s", "160"}
	if v != "" {
		args = append(args, "-v", v)
	}
	args = append(args, "--", text)

	e.Cancel()

	cmd := exec.Command(e.command, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", e.command, err)
	}
	e.mu.Lock()
	e.current = cmd
	e.mu.Unlock()

	go func() {
		if err := cmd.Wait(); err != nil {
			e.log.Debug().Err(err).Msg("speech process ended")
		}
		e.mu.Lock()
		if e.current == cmd {
			e.current = nil
		}
		e.mu.Unlock()
	}()
	return nil
}

func (e *EspeakSynthesizer) Cancel() error {
	e.mu.Lock()
	cmd := e.current
	e.current = nil
	e.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func (e *EspeakSynthesizer) Voices(ctx context.Context) ([]Voice, error) {
	out, err := exec.CommandContext(ctx, e.command, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("%s --voices: %w", e.command, err)
	}
	return parseEspeakVoices(out), nil
}

// parseEspeakVoices reads the table printed by `espeak-ng --voices`:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  en-us           --/M      English_(America)  gmw/en-US     (en 2)
func parseEspeakVoices(out []byte) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		f := strings.Fields(sc.Text())
		if len(f) < 5 {
			continue
		}
		voices = append(voices, Voice{
			ID:   f[1],
			Name: strings.ReplaceAll(f[3], "_", " "),
			Lang: f[1],
		})
	}
	return voices
}
