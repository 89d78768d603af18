// Package translation requests machine translations from the backend and
// caches translations of saved transcriptions.
package translation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/backend"
	"github.com/snarg/medscribe/internal/language"
	"github.com/snarg/medscribe/internal/metrics"
)

var ErrTranslationFailed = errors.New("translation failed")

// API is the subset of the backend client used here.
type API interface {
	AITranslate(ctx context.Context, req backend.AITranslateRequest) (*backend.Translation, error)
	ListTranslations(ctx context.Context, transcriptionID backend.ID) ([]backend.Translation, error)
	QualityCheck(ctx context.Context, translationID backend.ID) (json.RawMessage, error)
	MedicalGlossary(ctx context.Context, source, target string) (backend.Glossary, error)
}

type Client struct {
	api   API
	cache *Cache
	log   zerolog.Logger
}

func NewClient(api API, cache *Cache, log zerolog.Logger) *Client {
	if cache == nil {
		cache = NewCache()
	}
	return &Client{
		api:   api,
		cache: cache,
		log:   log.With().Str("component", "translation").Logger(),
	}
}

func (c *Client) Cache() *Cache { return c.cache }

// Cached returns the translations of transcriptionID held in the cache.
func (c *Client) Cached(transcriptionID backend.ID) []backend.Translation {
	return c.cache.ForTranscription(transcriptionID)
}

// Forget drops the cached translations of a deleted transcription.
func (c *Client) Forget(transcriptionID backend.ID) {
	if n := c.cache.Evict(transcriptionID); n > 0 {
		c.log.Debug().Str("transcription_id", transcriptionID.String()).Int("entries", n).Msg("cached translations evicted")
	}
}

// Translate translates live text. It always asks for the high-quality model.
// Empty text translates to empty text without a request.
func (c *Client) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	start := time.Now()
	tr, err := c.api.AITranslate(ctx, backend.AITranslateRequest{
		Text:           text,
		SourceLanguage: language.Base(source),
		TargetLanguage: target,
		HighQuality:    true,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("target", target).Msg("live translation failed")
		return "", fmt.Errorf("%w: %w", ErrTranslationFailed, err)
	}
	c.log.Debug().
		Str("source", language.Base(source)).
		Str("target", target).
		Int("text_len", len(text)).
		Dur("duration", time.Since(start)).
		Msg("translated")
	return tr.Content, nil
}

// GetTranslation returns the translation of a saved transcription into
// target: from the cache, else an existing backend record, else a newly
// created one. A cache hit makes no request.
func (c *Client) GetTranslation(ctx context.Context, transcriptionID backend.ID, target string) (*backend.Translation, error) {
	key := Key{TranscriptionID: transcriptionID, Language: target}
	if t, ok := c.cache.Get(key); ok {
		metrics.TranslationCacheLookupsTotal.WithLabelValues("hit").Inc()
		return &t, nil
	}
	metrics.TranslationCacheLookupsTotal.WithLabelValues("miss").Inc()

	existing, err := c.api.ListTranslations(ctx, transcriptionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranslationFailed, err)
	}
	for _, t := range existing {
		if sameLanguage(t.TargetLanguage, target) {
			c.cache.Put(key, t)
			return &t, nil
		}
	}

	created, err := c.api.AITranslate(ctx, backend.AITranslateRequest{
		TranscriptionID: transcriptionID,
		TargetLanguage:  target,
		HighQuality:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranslationFailed, err)
	}
	c.cache.Put(key, *created)
	c.log.Info().
		Str("transcription_id", transcriptionID.String()).
		Str("target", target).
		Msg("translation created")
	return created, nil
}

// CheckQuality returns the backend's quality assessment of a stored translation.
func (c *Client) CheckQuality(ctx context.Context, translationID backend.ID) (json.RawMessage, error) {
	return c.api.QualityCheck(ctx, translationID)
}

// Glossary returns the medical glossary for a language pair; an unknown pair
// is an empty glossary.
func (c *Client) Glossary(ctx context.Context, source, target string) (backend.Glossary, error) {
	return c.api.MedicalGlossary(ctx, source, target)
}

func sameLanguage(a, b string) bool {
	return strings.EqualFold(a, b) || language.Base(a) == language.Base(b)
}
