package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SeenJob reports whether a job id was already alerted within the persisted
// window.
func (d *DB) SeenJob(ctx context.Context, jobID string) (bool, error) {
	var one int
	err := d.Pool.QueryRowContext(ctx, `
SELECT 1 FROM seen_jobs WHERE job_id = ? LIMIT 1;`, jobID).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("seen job %q: %w", jobID, err)
}

func (d *DB) RecordSeenJob(ctx context.Context, jobID string, at time.Time) error {
	if jobID == "" {
		return nil
	}
	_, err := d.Pool.ExecContext(ctx, `
INSERT OR IGNORE INTO seen_jobs(job_id, first_seen)
VALUES(?,?);`, jobID, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record seen job %q: %w", jobID, err)
	}
	return nil
}

// EvictSeenBefore drops ledger rows older than the cutoff so the persisted
// window tracks the recency horizon instead of growing forever.
func (d *DB) EvictSeenBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.Pool.ExecContext(ctx, `
DELETE FROM seen_jobs WHERE first_seen < ?;`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("evict seen jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
