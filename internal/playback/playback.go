// Package playback speaks text through a platform speech synthesizer.
package playback

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/language"
)

// Voice is one synthesizer voice.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Lang string `json:"lang"`
}

// Synthesizer is the platform speech capability.
type Synthesizer interface {
	// Speak starts speaking text. voice is nil for the platform default.
	Speak(ctx context.Context, text, lang string, voice *Voice) error
	// Cancel stops any speech in progress.
	Cancel() error
	Voices(ctx context.Context) ([]Voice, error)
}

// VoiceCache holds the synthesizer's voice list. It loads on first use and
// reloads on Refresh, which the platform's voices-changed notification drives.
type VoiceCache struct {
	synth Synthesizer
	log   zerolog.Logger

	mu     sync.RWMutex
	voices []Voice
	loaded bool
}

func NewVoiceCache(synth Synthesizer, log zerolog.Logger) *VoiceCache {
	return &VoiceCache{synth: synth, log: log}
}

// Voices returns the cached list, loading it on first call.
func (c *VoiceCache) Voices(ctx context.Context) []Voice {
	c.mu.RLock()
	if c.loaded {
		v := c.voices
		c.mu.RUnlock()
		return v
	}
	c.mu.RUnlock()

	if err := c.Refresh(ctx); err != nil {
		c.log.Warn().Err(err).Msg("voice list unavailable, using platform default")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.voices
}

// Refresh reloads the voice list. A failed reload keeps the previous list.
func (c *VoiceCache) Refresh(ctx context.Context) error {
	voices, err := c.synth.Voices(ctx)
	if err != nil {
		return fmt.Errorf("list voices: %w", err)
	}
	c.mu.Lock()
	c.voices = voices
	c.loaded = true
	c.mu.Unlock()
	c.log.Debug().Int("voices", len(voices)).Msg("voice list refreshed")
	return nil
}

// SelectVoice picks the voice for lang: an exact tag match first (bare codes
// are expanded, so "es" looks for "es-ES"), then any voice sharing the base
// language, then nil for the platform default. Tags compare case-insensitively.
func SelectVoice(voices []Voice, lang string) *Voice {
	if len(voices) == 0 || lang == "" {
		return nil
	}
	code := strings.ToLower(language.SpeechCode(lang))

	for i := range voices {
		vl := strings.ToLower(voices[i].Lang)
		if vl == code || strings.HasPrefix(vl, code+"-") {
			return &voices[i]
		}
	}

	base, _, _ := strings.Cut(code, "-")
	for i := range voices {
		vl := strings.ToLower(voices[i].Lang)
		if vl == base || strings.HasPrefix(vl, base+"-") {
			return &voices[i]
		}
	}
	return nil
}

// Controller speaks text with the best available voice.
type Controller struct {
	synth  Synthesizer
	voices *VoiceCache
	log    zerolog.Logger
}

func NewController(synth Synthesizer, voices *VoiceCache, log zerolog.Logger) *Controller {
	return &Controller{synth: synth, voices: voices, log: log}
}

// Speak synthesizes text in lang. Empty text is a no-op.
func (c *Controller) Speak(ctx context.Context, text, lang string) error {
	if strings.TrimSpace(text) == "" {
		c.log.Debug().Msg("empty text, nothing to speak")
		return nil
	}
	voice := SelectVoice(c.voices.Voices(ctx), lang)
	ev := c.log.Info().Str("lang", lang).Int("chars", len(text))
	if voice != nil {
		ev = ev.Str("voice", voice.ID)
	}
	ev.Msg("speaking")
	if err := c.synth.Speak(ctx, text, language.SpeechCode(lang), voice); err != nil {
		return fmt.Errorf("speak: %w", err)
	}
	return nil
}

// Stop cancels any speech in progress.
func (c *Controller) Stop() error {
	return c.synth.Cancel()
}

// Voices exposes the cached voice list.
func (c *Controller) Voices(ctx context.Context) []Voice {
	return c.voices.Voices(ctx)
}
