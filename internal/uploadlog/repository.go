// Package uploadlog persists upload outcomes for later reconciliation.
// Degraded results (tier "original") carry a URL whose durability is not
// guaranteed, so operators periodically re-run those uploads; this log is
// how they find them.
package uploadlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storypress/imagestore/internal/upload"
)

// Entry is one recorded upload outcome.
type Entry struct {
	ID        int64       `json:"id"`
	SourceURL string      `json:"sourceUrl"`
	Folder    string      `json:"folder"`
	ResultURL string      `json:"resultUrl"`
	Tier      upload.Tier `json:"tier"`
	ObjectKey *string     `json:"objectKey,omitempty"`
	ElapsedMS int64       `json:"elapsedMs"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Repository handles all upload_log database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Record inserts one upload outcome. Implements upload.ResultRecorder.
func (r *Repository) Record(ctx context.Context, e upload.ResultEntry) error {
	var key *string
	if e.ObjectKey != "" {
		key = &e.ObjectKey
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO upload_log (source_url, folder, result_url, tier, object_key, elapsed_ms)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.SourceURL, e.Folder, e.URL, string(e.Tier), key, e.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

// ListDegraded returns the most recent tier-"original" entries, newest
// first. These are the uploads whose returned links may rot.
func (r *Repository) ListDegraded(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, source_url, folder, result_url, tier, object_key, elapsed_ms, created_at
		 FROM upload_log
		 WHERE tier = 'original'
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list degraded uploads: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SourceURL, &e.Folder, &e.ResultURL, &e.Tier, &e.ObjectKey, &e.ElapsedMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan upload_log row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate upload_log rows: %w", err)
	}
	return entries, nil
}
