package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/config"
)

// Store abstracts export archive backends.
type Store interface {
	// Save stores data under key. key format: transcriptions/{YYYY-MM-DD}/{id}.json
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// URL returns a presigned URL for the object. Returns "" for local backends.
	URL(ctx context.Context, key string) (string, error)

	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Type returns "local" or "s3".
	Type() string
}

// NewStore creates a Store based on config. Returns an error if S3 is
// configured but unreachable.
func NewStore(cfg config.S3Config, exportDir string, log zerolog.Logger) (Store, error) {
	if !cfg.Enabled() {
		return NewLocalStore(exportDir), nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")
	return s3store, nil
}
