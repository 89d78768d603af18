package database

import (
	"context"
	"fmt"
	"strings"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply.
var migrations = []migration{
	{
		name: "create saved_transcriptions",
		sql: `CREATE TABLE IF NOT EXISTS saved_transcriptions (
			id               bigserial PRIMARY KEY,
			session_id       uuid NOT NULL,
			transcription_id text NOT NULL,
			source_language  text NOT NULL,
			target_language  text NOT NULL,
			transcript       text NOT NULL,
			translation      text NOT NULL DEFAULT '',
			translation_id   text,
			created          boolean NOT NULL,
			saved_at         timestamptz NOT NULL DEFAULT now()
		)`,
		check: `SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'saved_transcriptions')`,
	},
	{
		name:  "add saved_transcriptions transcription index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_saved_transcriptions_tid ON saved_transcriptions (transcription_id, saved_at DESC)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_saved_transcriptions_tid')`,
	},
	{
		name:  "add saved_transcriptions.deleted_at",
		sql:   `ALTER TABLE saved_transcriptions ADD COLUMN IF NOT EXISTS deleted_at timestamptz`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'saved_transcriptions' AND column_name = 'deleted_at')`,
	},
}

// Migrate runs all pending schema migrations.
// For each migration, it first checks whether the change is already present.
// If not, it attempts to apply it. A failed apply is returned as a
// *MigrationError; the journal queries depend on these objects existing.
func (db *DB) Migrate(ctx context.Context) error {
	var pending []migration
	for _, m := range migrations {
		if m.check != "" {
			var exists bool
			if err := db.Pool.QueryRow(ctx, m.check).Scan(&exists); err == nil && exists {
				continue
			}
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		return nil
	}

	applied := 0
	for _, m := range pending {
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return &MigrationError{
				failed:  m,
				pending: pending[applied:],
				err:     err,
			}
		}
		db.log.Info().Str("migration", m.name).Msg("schema migration applied")
		applied++
	}
	db.log.Info().Int("applied", applied).Msg("schema migrations complete")
	return nil
}

// MigrationError is returned when a migration fails.
// It includes the SQL needed to apply all remaining migrations manually.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	b.WriteString("Run the following SQL as the database owner to fix this:\n\n")
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	b.WriteString("\nThen restart medscribe.")
	return b.String()
}

func (e *MigrationError) Unwrap() error {
	return e.err
}
