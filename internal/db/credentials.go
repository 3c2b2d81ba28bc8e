package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetLinkedInCredentials returns the stored credentials for a session key, or nil
func (db *DB) GetLinkedInCredentials(ctx context.Context, sessionKey string) (*StoredCredentials, error) {
	var c StoredCredentials
	err := db.pool.QueryRow(ctx,
		`SELECT session_key, email, password_encrypted, updated_at
		 FROM linkedin_credentials WHERE session_key = $1`,
		sessionKey,
	).Scan(&c.SessionKey, &c.Email, &c.PasswordEncrypted, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get linkedin credentials: %w", err)
	}
	return &c, nil
}

// SaveLinkedInCredentials upserts the credentials for a session key
func (db *DB) SaveLinkedInCredentials(ctx context.Context, sessionKey, email string, passwordEncrypted []byte) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO linkedin_credentials (session_key, email, password_encrypted)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_key) DO UPDATE
		 SET email = $2, password_encrypted = $3, updated_at = NOW()`,
		sessionKey, email, passwordEncrypted,
	)
	if err != nil {
		return fmt.Errorf("failed to save linkedin credentials: %w", err)
	}
	return nil
}

// DeleteLinkedInCredentials removes stored credentials; missing rows are not an error
func (db *DB) DeleteLinkedInCredentials(ctx context.Context, sessionKey string) error {
	_, err := db.pool.Exec(ctx,
		`DELETE FROM linkedin_credentials WHERE session_key = $1`, sessionKey)
	if err != nil {
		return fmt.Errorf("failed to delete linkedin credentials: %w", err)
	}
	return nil
}
