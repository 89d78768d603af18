package database

import (
	"context"
	"time"
)

// PurgeSavedOlderThan deletes journal rows saved before now minus retention.
func (db *DB) PurgeSavedOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM saved_transcriptions WHERE saved_at < $1`,
		time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RunRetention purges expired journal rows every interval until ctx ends.
func (db *DB) RunRetention(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.PurgeSavedOlderThan(ctx, retention)
			if err != nil {
				db.log.Warn().Err(err).Msg("journal retention purge failed")
				continue
			}
			if n > 0 {
				db.log.Info().Int64("rows", n).Dur("retention", retention).Msg("journal rows purged")
			}
		}
	}
}
