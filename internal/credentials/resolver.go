package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/profile-sync/internal/db"
	"github.com/jonathan/profile-sync/internal/scraper"
)

// Environment variables holding the fallback credentials.
const (
	EnvLogin    = "LinkedinLogin"
	EnvPassword = "LinkedinPassword"
)

// Source tells where resolved credentials came from.
type Source string

const (
	SourceRequest Source = "request"
	SourceStored  Source = "stored"
	SourceEnv     Source = "env"
)

// ErrStorageDisabled is returned by Save and Delete when storage is not configured.
var ErrStorageDisabled = errors.New("credential storage is not configured")

// Store persists encrypted credentials per session key. *db.DB implements it.
type Store interface {
	GetLinkedInCredentials(ctx context.Context, sessionKey string) (*db.StoredCredentials, error)
	SaveLinkedInCredentials(ctx context.Context, sessionKey, email string, passwordEncrypted []byte) error
	DeleteLinkedInCredentials(ctx context.Context, sessionKey string) error
}

// Status describes the credentials available to a session key without revealing them.
type Status struct {
	// Stored is true when credentials are saved and decrypt with the current key.
	Stored bool `json:"stored"`
	// Email is the masked stored e-mail address.
	Email     string     `json:"email,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	// EnvFallback is true when LinkedinLogin and LinkedinPassword are both set.
	EnvFallback bool `json:"env_fallback"`
}

// Resolver picks the credentials for a scrape: per-call override, then stored, then env.
type Resolver struct {
	store  Store
	vault  *Vault
	getenv func(string) string
	log    *zap.Logger
}

// NewResolver creates a resolver. store and vault may be nil, which disables stored
// credentials.
func NewResolver(store Store, vault *Vault, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, vault: vault, getenv: os.Getenv, log: logger.Named("credentials")}
}

// Resolve returns the credentials to use for sessionKey. override wins when both of its
// fields are set.
func (r *Resolver) Resolve(ctx context.Context, sessionKey string, override *scraper.Credentials) (scraper.Credentials, Source, error) {
	if override != nil && override.Complete() {
		return *override, SourceRequest, nil
	}

	if r.store != nil && r.vault != nil && sessionKey != "" {
		stored, err := r.store.GetLinkedInCredentials(ctx, sessionKey)
		if err != nil {
			return scraper.Credentials{}, "", fmt.Errorf("failed to load stored credentials: %w", err)
		}
		if stored != nil {
			password, err := r.vault.Decrypt(stored.PasswordEncrypted)
			if err != nil {
				return scraper.Credentials{}, "", err
			}
			r.log.Debug("using stored credentials", zap.String("email", Mask(stored.Email)))
			return scraper.Credentials{Email: stored.Email, Password: password}, SourceStored, nil
		}
	}

	if env := r.envCredentials(); env.Complete() {
		return env, SourceEnv, nil
	}

	return scraper.Credentials{}, "", &scraper.Error{
		Kind:       scraper.KindCredentialsMissing,
		SessionKey: sessionKey,
		Message: "LinkedIn credentials are not configured. Save your LinkedIn e-mail and password " +
			"in Settings or set LinkedinLogin and LinkedinPassword.",
	}
}

// Save encrypts and stores creds for sessionKey.
func (r *Resolver) Save(ctx context.Context, sessionKey string, creds scraper.Credentials) error {
	if r.store == nil || r.vault == nil {
		return ErrStorageDisabled
	}
	if !creds.Complete() {
		return &scraper.Error{Kind: scraper.KindCredentialsMissing, Message: "email and password are required"}
	}
	encrypted, err := r.vault.Encrypt(creds.Password)
	if err != nil {
		return err
	}
	if err := r.store.SaveLinkedInCredentials(ctx, sessionKey, creds.Email, encrypted); err != nil {
		return err
	}
	r.log.Info("saved credentials", zap.String("email", Mask(creds.Email)))
	return nil
}

// Status reports what Resolve would find for sessionKey besides a per-call override.
// Stored credentials that no longer decrypt are reported as not stored.
func (r *Resolver) Status(ctx context.Context, sessionKey string) (Status, error) {
	st := Status{EnvFallback: r.envCredentials().Complete()}
	if r.store == nil || r.vault == nil {
		return st, nil
	}
	stored, err := r.store.GetLinkedInCredentials(ctx, sessionKey)
	if err != nil {
		return Status{}, fmt.Errorf("failed to load stored credentials: %w", err)
	}
	if stored == nil {
		return st, nil
	}
	if _, err := r.vault.Decrypt(stored.PasswordEncrypted); err != nil {
		r.log.Warn("stored credentials do not decrypt", zap.String("email", Mask(stored.Email)), zap.Error(err))
		return st, nil
	}
	updated := stored.UpdatedAt
	st.Stored = true
	st.Email = Mask(stored.Email)
	st.UpdatedAt = &updated
	return st, nil
}

// Delete removes the stored credentials for sessionKey. Deleting nothing is not an error.
func (r *Resolver) Delete(ctx context.Context, sessionKey string) error {
	if r.store == nil {
		return ErrStorageDisabled
	}
	if err := r.store.DeleteLinkedInCredentials(ctx, sessionKey); err != nil {
		return err
	}
	r.log.Info("deleted credentials", zap.String("session_key", sessionKey))
	return nil
}

func (r *Resolver) envCredentials() scraper.Credentials {
	return scraper.Credentials{
		Email:    strings.TrimSpace(r.getenv(EnvLogin)),
		Password: r.getenv(EnvPassword),
	}
}
