package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/events"
)

// SavedEntry is one journaled save. The JSON form matches the payload of a
// session.saved event.
type SavedEntry struct {
	ID              int64      `json:"journal_id,omitempty"`
	SessionID       string     `json:"session_id"`
	TranscriptionID string     `json:"transcription_id"`
	SourceLanguage  string     `json:"source_language"`
	TargetLanguage  string     `json:"target_language"`
	Transcript      string     `json:"transcript"`
	Translation     string     `json:"translation"`
	TranslationID   string     `json:"translation_id,omitempty"`
	Created         bool       `json:"created"`
	SavedAt         time.Time  `json:"saved_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

func (db *DB) InsertSaved(ctx context.Context, e SavedEntry) (int64, error) {
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now()
	}
	var translationID *string
	if e.TranslationID != "" {
		translationID = &e.TranslationID
	}
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO saved_transcriptions
			(session_id, transcription_id, source_language, target_language,
			 transcript, translation, translation_id, created, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		e.SessionID, e.TranscriptionID, e.SourceLanguage, e.TargetLanguage,
		e.Transcript, e.Translation, translationID, e.Created, e.SavedAt,
	).Scan(&id)
	return id, err
}

// MarkDeleted stamps every journal row of a transcription deleted on the backend.
func (db *DB) MarkDeleted(ctx context.Context, transcriptionID string) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE saved_transcriptions SET deleted_at = now() WHERE transcription_id = $1 AND deleted_at IS NULL`,
		transcriptionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// JournalFilter narrows ListSaved. Empty fields do not filter.
type JournalFilter struct {
	SessionID       string
	TranscriptionID string
	TargetLanguage  string
	IncludeDeleted  bool
	Limit           int
	Offset          int
}

// ListSaved returns matching journal rows, newest first, and the total number
// of matches ignoring Limit and Offset.
func (db *DB) ListSaved(ctx context.Context, f JournalFilter) ([]SavedEntry, int, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	const where = `
		WHERE ($1::text IS NULL OR session_id::text = $1)
		  AND ($2::text IS NULL OR transcription_id = $2)
		  AND ($3::text IS NULL OR target_language = $3)
		  AND ($4 OR deleted_at IS NULL)`
	args := []any{pqString(f.SessionID), pqString(f.TranscriptionID), pqString(f.TargetLanguage), f.IncludeDeleted}

	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM saved_transcriptions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, session_id::text, transcription_id, source_language, target_language,
			transcript, translation, COALESCE(translation_id, ''), created, saved_at, deleted_at
		FROM saved_transcriptions`+where+`
		ORDER BY saved_at DESC
		LIMIT $5 OFFSET $6`, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []SavedEntry{}
	for rows.Next() {
		var e SavedEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.TranscriptionID, &e.SourceLanguage, &e.TargetLanguage,
			&e.Transcript, &e.Translation, &e.TranslationID, &e.Created, &e.SavedAt, &e.DeletedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// Journal is the event sink that writes session.saved and history.deleted
// events to the database.
type Journal struct {
	db  journalStore
	log zerolog.Logger
}

type journalStore interface {
	InsertSaved(ctx context.Context, e SavedEntry) (int64, error)
	MarkDeleted(ctx context.Context, transcriptionID string) (int64, error)
}

func NewJournal(db *DB, log zerolog.Logger) *Journal {
	return &Journal{db: db, log: log.With().Str("component", "journal").Logger()}
}

func (j *Journal) Name() string { return "journal" }

func (j *Journal) Publish(ctx context.Context, e events.Event) error {
	switch e.Type {
	case events.TypeSaved:
		var entry SavedEntry
		if err := json.Unmarshal(e.Data, &entry); err != nil {
			return fmt.Errorf("decode saved event: %w", err)
		}
		if entry.SessionID == "" {
			entry.SessionID = e.SessionID
		}
		id, err := j.db.InsertSaved(ctx, entry)
		if err != nil {
			return fmt.Errorf("insert saved transcription: %w", err)
		}
		j.log.Debug().Int64("journal_id", id).Str("transcription_id", entry.TranscriptionID).Msg("save journaled")
	case events.TypeDeleted:
		var payload struct {
			TranscriptionID string `json:"transcription_id"`
		}
		if err := json.Unmarshal(e.Data, &payload); err != nil {
			return fmt.Errorf("decode deleted event: %w", err)
		}
		n, err := j.db.MarkDeleted(ctx, payload.TranscriptionID)
		if err != nil {
			return fmt.Errorf("mark deleted: %w", err)
		}
		j.log.Debug().Int64("rows", n).Str("transcription_id", payload.TranscriptionID).Msg("deletion journaled")
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (j *Journal) Close() error { return nil }
