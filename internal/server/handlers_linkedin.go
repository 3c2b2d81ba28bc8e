package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/profile-sync/internal/credentials"
	"github.com/jonathan/profile-sync/internal/db"
	"github.com/jonathan/profile-sync/internal/jobs"
	"github.com/jonathan/profile-sync/internal/scraper"
	"github.com/jonathan/profile-sync/internal/server/middleware"
)

type scrapeRequest struct {
	ProfileURL  string `json:"profile_url" validate:"required,url"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	Password    string `json:"password,omitempty"`
	PollSeconds int    `json:"poll_seconds,omitempty" validate:"gte=0,lte=300"`
}

func (r *scrapeRequest) normalize() {
	r.ProfileURL = strings.TrimSpace(r.ProfileURL)
	r.Email = strings.TrimSpace(r.Email)
}

func (r scrapeRequest) jobRequest(sessionKey string) jobs.Request {
	req := jobs.Request{
		SessionKey: sessionKey,
		ProfileURL: r.ProfileURL,
		PollBudget: time.Duration(r.PollSeconds) * time.Second,
	}
	if r.Email != "" || r.Password != "" {
		req.Credentials = &scraper.Credentials{Email: r.Email, Password: r.Password}
	}
	return req
}

type retryRequest struct {
	// ProfileURL defaults to the URL of the parked scrape.
	ProfileURL  string `json:"profile_url,omitempty" validate:"omitempty,url"`
	PollSeconds int    `json:"poll_seconds,omitempty" validate:"gte=0,lte=300"`
}

func (r *retryRequest) normalize() {
	r.ProfileURL = strings.TrimSpace(r.ProfileURL)
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *credentialsRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

type scrapeResponse struct {
	Text       string          `json:"text"`
	Chars      int             `json:"chars"`
	Strategy   string          `json:"strategy"`
	Sections   []string        `json:"sections"`
	LoginState string          `json:"login_state"`
	ElapsedMS  int64           `json:"elapsed_ms"`
	Profile    json.RawMessage `json:"profile,omitempty"`
	ParseError string          `json:"parse_error,omitempty"`
}

func newScrapeResponse(out *jobs.Outcome) scrapeResponse {
	sections := out.Sections
	if sections == nil {
		sections = []string{}
	}
	return scrapeResponse{
		Text:       out.Text,
		Chars:      out.Chars,
		Strategy:   string(out.Strategy),
		Sections:   sections,
		LoginState: out.LoginState.String(),
		ElapsedMS:  out.Elapsed.Milliseconds(),
		Profile:    out.Profile,
		ParseError: out.ParseError,
	}
}

// profileResponse is the caller's most recent synced profile.
type profileResponse struct {
	Found      bool            `json:"found"`
	ID         *uuid.UUID      `json:"id,omitempty"`
	ProfileURL string          `json:"profile_url,omitempty"`
	SyncedAt   *time.Time      `json:"synced_at,omitempty"`
	Text       string          `json:"text,omitempty"`
	Chars      int             `json:"chars,omitempty"`
	Profile    json.RawMessage `json:"profile,omitempty"`
}

func newProfileResponse(row *db.ProfileScrape) profileResponse {
	if row == nil {
		return profileResponse{}
	}
	resp := profileResponse{
		Found:      true,
		ID:         &row.ID,
		ProfileURL: row.ProfileURL,
		SyncedAt:   row.CompletedAt,
		Chars:      row.Chars,
		Profile:    row.Parsed,
	}
	if row.RawText != nil {
		resp.Text = *row.RawText
	}
	return resp
}

type syncResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

// handleScrape signs in and scrapes synchronously. A security challenge answers 422 with
// the session key to retry.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	sessionKey, err := middleware.SessionKey(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	var req scrapeRequest
	if err := s.decodeAndValidate(w, r, &req); err != nil {
		s.errorResponse(w, err)
		return
	}

	out, err := s.runner.Scrape(r.Context(), req.jobRequest(sessionKey))
	if err != nil {
		s.log.Info("scrape did not complete",
			zap.String("session_key", sessionKey), zap.String("code", jobs.ErrorCode(err)))
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newScrapeResponse(out))
}

// handleRetry resumes the caller's parked challenge session.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	sessionKey, err := middleware.SessionKey(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	var req retryRequest
	if err := s.decodeAndValidate(w, r, &req); err != nil {
		s.errorResponse(w, err)
		return
	}

	out, err := s.runner.Resume(r.Context(), sessionKey, req.ProfileURL,
		time.Duration(req.PollSeconds)*time.Second)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newScrapeResponse(out))
}

// handleRelease closes the caller's parked session, if any.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	sessionKey, err := middleware.SessionKey(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.runner.Release(sessionKey)
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmitSync starts a background sync.
func (s *Server) handleSubmitSync(w http.ResponseWriter, r *http.Request) {
	sessionKey, err := middleware.SessionKey(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	var req scrapeRequest
	if err := s.decodeAndValidate(w, r, &req); err != nil {
		s.errorResponse(w, err)
		return
	}

	id, err := s.runner.Submit(r.Context(), req.jobRequest(sessionKey))
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	w.Header().Set("Location", "/linkedin/sync/"+id.String())
	s.jsonResponse(w, http.StatusAccepted, syncResponse{ID: id, Status: db.ScrapeStatusPending})
}

// handleGetSync returns one of the caller's background syncs.
func (s *Server) handleGetSync(w http.ResponseWriter, r *http.Request) {
	sessionKey, err := middleware.SessionKey(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, &ErrValidation{Field: "id", Message: "must be a UUID"})
		return
	}

	row, err := s.runner.Get(r.Context(), id)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	// Other users' syncs are indistinguishable from missing ones.
	if row == nil || row.SessionKey != sessionKey {
		s.errorResponse(w, &ErrNotFound{Resource: "sync"})
		return
	}
	s.jsonResponse(w, http.StatusOK, row)
}

// handlePutCredentials encrypts and stores the caller's LinkedIn credentials.
func (s *Server) handlePutCredentials(w http.ResponseWriter, r *http.Request) {
	sessionKey, err := middleware.SessionKey(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	var req credentialsRequest
	if err := s.decodeAndValidate(w, r, &req); err != nil {
		s.errorResponse(w, err)
		return
	}
	if s.credentials == nil {
		s.errorResponse(w, credentials.ErrStorageDisabled)
		return
	}

	creds := scraper.Credentials{Email: req.Email, Password: req.Password}
	if err := s.credentials.Save(r.Context(), sessionKey, creds); err != nil {
		s.errorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetProfile returns the caller's most recent successful sync.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	sessionKey, err := middleware.SessionKey(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	row, err := s.runner.Latest(r.Context(), sessionKey)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newProfileResponse(row))
}

// handleGetCredentials reports whether credentials are stored, with the e-mail masked.
func (s *Server) handleGetCredentials(w http.ResponseWriter, r *http.Request) {
	sessionKey, err := middleware.SessionKey(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if s.credentials == nil {
		s.errorResponse(w, credentials.ErrStorageDisabled)
		return
	}
	status, err := s.credentials.Status(r.Context(), sessionKey)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, status)
}

// handleDeleteCredentials clears the caller's stored credentials.
func (s *Server) handleDeleteCredentials(w http.ResponseWriter, r *http.Request) {
	sessionKey, err := middleware.SessionKey(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if s.credentials == nil {
		s.errorResponse(w, credentials.ErrStorageDisabled)
		return
	}
	if err := s.credentials.Delete(r.Context(), sessionKey); err != nil {
		s.errorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
