package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const scrapeColumns = `id, session_key, profile_url, status, strategy, chars, raw_text, parsed,
	error_code, error_message, created_at, updated_at, completed_at`

// CreateScrape records a pending profile sync and returns its ID
func (db *DB) CreateScrape(ctx context.Context, sessionKey, profileURL string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO profile_scrapes (session_key, profile_url, status)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		sessionKey, profileURL, ScrapeStatusPending,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create profile scrape: %w", err)
	}
	return id, nil
}

// MarkScrapeRunning flags a sync as started
func (db *DB) MarkScrapeRunning(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE profile_scrapes SET status = $1, updated_at = NOW() WHERE id = $2`,
		ScrapeStatusRunning, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark profile scrape running: %w", err)
	}
	return nil
}

// CompleteScrape stores the extracted text and marks the sync as synced
func (db *DB) CompleteScrape(ctx context.Context, id uuid.UUID, outcome ScrapeOutcome) error {
	var parsed any
	if len(outcome.Parsed) > 0 {
		parsed = []byte(outcome.Parsed)
	}
	_, err := db.pool.Exec(ctx,
		`UPDATE profile_scrapes
		 SET status = $1, raw_text = $2, parsed = $3, strategy = $4, chars = $5,
		     error_code = NULL, error_message = NULL, updated_at = NOW(), completed_at = NOW()
		 WHERE id = $6`,
		ScrapeStatusSynced, outcome.RawText, parsed, outcome.Strategy, outcome.Chars, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete profile scrape: %w", err)
	}
	return nil
}

// FailScrape records a failed or challenge-blocked sync
func (db *DB) FailScrape(ctx context.Context, id uuid.UUID, status, code, message string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE profile_scrapes
		 SET status = $1, error_code = $2, error_message = $3, updated_at = NOW(), completed_at = NOW()
		 WHERE id = $4`,
		status, code, message, id,
	)
	if err != nil {
		return fmt.Errorf("failed to record profile scrape failure: %w", err)
	}
	return nil
}

// GetScrape retrieves a sync by ID; returns nil, nil when it does not exist
func (db *DB) GetScrape(ctx context.Context, id uuid.UUID) (*ProfileScrape, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+scrapeColumns+` FROM profile_scrapes WHERE id = $1`, id)
	scrape, err := scanScrape(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile scrape: %w", err)
	}
	return scrape, nil
}

// LatestScrape returns the most recent sync for a session key, or nil. With statuses,
// only syncs in one of them are considered.
func (db *DB) LatestScrape(ctx context.Context, sessionKey string, statuses ...string) (*ProfileScrape, error) {
	if statuses == nil {
		statuses = []string{}
	}
	row := db.pool.QueryRow(ctx,
		`SELECT `+scrapeColumns+` FROM profile_scrapes
		 WHERE session_key = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		 ORDER BY created_at DESC LIMIT 1`, sessionKey, statuses)
	scrape, err := scanScrape(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest profile scrape: %w", err)
	}
	return scrape, nil
}

func scanScrape(row pgx.Row) (*ProfileScrape, error) {
	var s ProfileScrape
	var parsed []byte
	err := row.Scan(&s.ID, &s.SessionKey, &s.ProfileURL, &s.Status, &s.Strategy, &s.Chars,
		&s.RawText, &parsed, &s.ErrorCode, &s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt, &s.CompletedAt)
	if err != nil {
		return nil, err
	}
	if len(parsed) > 0 {
		s.Parsed = parsed
	}
	return &s, nil
}
