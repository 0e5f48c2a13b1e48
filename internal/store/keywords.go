package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// KeywordsFor returns the stored terms for a destination. An unregistered
// destination yields an empty list, not an error.
func (d *DB) KeywordsFor(ctx context.Context, destination string) ([]string, error) {
	var termsJSON string
	err := d.Pool.QueryRowContext(ctx, `
SELECT terms FROM keywords WHERE destination = ?;`, destination).Scan(&termsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keywords for %q: %w", destination, err)
	}

	var terms []string
	if err := json.Unmarshal([]byte(termsJSON), &terms); err != nil {
		return nil, fmt.Errorf("keywords for %q: bad terms payload: %w", destination, err)
	}
	return terms, nil
}

func (d *DB) AllDestinations(ctx context.Context) ([]string, error) {
	rows, err := d.Pool.QueryContext(ctx, `
SELECT destination FROM keywords ORDER BY destination;`)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var dest string
		if err := rows.Scan(&dest); err != nil {
			return nil, err
		}
		out = append(out, dest)
	}
	return out, rows.Err()
}

func (d *DB) SetKeywords(ctx context.Context, destination string, terms []string) error {
	if destination == "" {
		return errors.New("destination is empty")
	}
	if terms == nil {
		terms = []string{}
	}
	b, err := json.Marshal(terms)
	if err != nil {
		return err
	}

	_, err = d.Pool.ExecContext(ctx, `
INSERT INTO keywords(destination, terms, updated_at)
VALUES(?,?,?)
ON CONFLICT(destination) DO UPDATE SET
  terms = excluded.terms,
  updated_at = excluded.updated_at;`,
		destination, string(b), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set keywords for %q: %w", destination, err)
	}
	return nil
}
