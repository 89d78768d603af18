// Package export archives saved transcriptions and their translations as
// JSON documents.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/snarg/medscribe/internal/backend"
)

// Document is the archived form of one transcription.
type Document struct {
	ExportedAt    time.Time             `json:"exported_at"`
	Transcription backend.Transcription `json:"transcription"`
	Translations  []backend.Translation `json:"translations"`
}

// Result says where a document was written.
type Result struct {
	Key   string `json:"key"`
	Store string `json:"store"`
	URL   string `json:"url,omitempty"`
	Bytes int    `json:"bytes"`
}

// Key returns the archive key for a transcription exported at t.
func Key(id backend.ID, t time.Time) string {
	return fmt.Sprintf("transcriptions/%s/%s.json", t.UTC().Format("2006-01-02"), id)
}

// Write serializes doc into store.
func Write(ctx context.Context, store Store, doc Document) (*Result, error) {
	if doc.ExportedAt.IsZero() {
		doc.ExportedAt = time.Now()
	}
	if doc.Translations == nil {
		doc.Translations = []backend.Translation{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	key := Key(doc.Transcription.ID, doc.ExportedAt)
	if err := store.Save(ctx, key, data, "application/json"); err != nil {
		return nil, fmt.Errorf("save export %s: %w", key, err)
	}
	url, err := store.URL(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("presign export %s: %w", key, err)
	}
	return &Result{Key: key, Store: store.Type(), URL: url, Bytes: len(data)}, nil
}
