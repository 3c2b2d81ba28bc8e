package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Profile scrape statuses
const (
	ScrapeStatusPending   = "pending"
	ScrapeStatusRunning   = "running"
	ScrapeStatusSynced    = "synced"
	ScrapeStatusFailed    = "failed"
	ScrapeStatusChallenge = "challenge"
)

// ProfileScrape is one background profile sync and its outcome
type ProfileScrape struct {
	ID           uuid.UUID       `json:"id"`
	SessionKey   string          `json:"session_key"`
	ProfileURL   string          `json:"profile_url"`
	Status       string          `json:"status"`
	Strategy     *string         `json:"strategy,omitempty"`
	Chars        int             `json:"chars"`
	RawText      *string         `json:"raw_text,omitempty"`
	Parsed       json.RawMessage `json:"parsed,omitempty"`
	ErrorCode    *string         `json:"error_code,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Terminal reports whether the sync has finished, successfully or not
func (p *ProfileScrape) Terminal() bool {
	switch p.Status {
	case ScrapeStatusSynced, ScrapeStatusFailed, ScrapeStatusChallenge:
		return true
	default:
		return false
	}
}

// ScrapeOutcome is the payload stored when a sync succeeds
type ScrapeOutcome struct {
	RawText  string
	Parsed   json.RawMessage
	Strategy string
	Chars    int
}

// StoredCredentials are LinkedIn credentials saved for a user, password still encrypted
type StoredCredentials struct {
	SessionKey        string    `json:"session_key"`
	Email             string    `json:"email"`
	PasswordEncrypted []byte    `json:"-"`
	UpdatedAt         time.Time `json:"updated_at"`
}
