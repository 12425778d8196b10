package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartSessionCleaner periodically deletes expired sessions and stored files
// older than retention that no post or profile references. Uploads orphaned
// by a client that failed between upload and document write are removed
// this way.
func StartSessionCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cleanOnce(ctx, db, time.Now(), retention, log)
			}
		}
	}()
}

func cleanOnce(ctx context.Context, db *sql.DB, now time.Time, retention time.Duration, log *zap.Logger) {
	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		log.Error("failed to clean expired sessions", zap.Error(err))
	} else if rows, _ := res.RowsAffected(); rows > 0 {
		log.Info("cleaned expired sessions", zap.Int64("removed", rows))
	}

	res, err = db.ExecContext(ctx, `
        DELETE FROM files f
         WHERE f.created_at < $1
           AND NOT EXISTS (SELECT 1 FROM posts p WHERE p.image_id = f.id)
           AND NOT EXISTS (SELECT 1 FROM users u WHERE u.image_id = f.id)
    `, now.Add(-retention))
	if err != nil {
		log.Error("failed to clean orphaned files", zap.Error(err))
		return
	}
	if rows, _ := res.RowsAffected(); rows > 0 {
		log.Info("cleaned orphaned files", zap.Int64("removed", rows))
	}
}
