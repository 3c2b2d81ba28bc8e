package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/profile-sync/internal/credentials"
	"github.com/jonathan/profile-sync/internal/db"
	"github.com/jonathan/profile-sync/internal/scraper"
)

const testProfileURL = "https://www.linkedin.com/in/jane-doe/"

type fakeEngine struct {
	mu       sync.Mutex
	scrapes  []scraper.ScrapeRequest
	resumes  []string
	released []string
	scrapeFn func(ctx context.Context, req scraper.ScrapeRequest) (*scraper.Result, error)
	resumeFn func(ctx context.Context, key string) (*scraper.Result, error)
}

func (e *fakeEngine) Scrape(ctx context.Context, req scraper.ScrapeRequest) (*scraper.Result, error) {
	e.mu.Lock()
	e.scrapes = append(e.scrapes, req)
	e.mu.Unlock()
	if e.scrapeFn != nil {
		return e.scrapeFn(ctx, req)
	}
	return okResult(), nil
}

func (e *fakeEngine) Resume(ctx context.Context, sessionKey, _ string, _ time.Duration) (*scraper.Result, error) {
	e.mu.Lock()
	e.resumes = append(e.resumes, sessionKey)
	e.mu.Unlock()
	if e.resumeFn != nil {
		return e.resumeFn(ctx, sessionKey)
	}
	return okResult(), nil
}

func (e *fakeEngine) Release(sessionKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released = append(e.released, sessionKey)
}

func (e *fakeEngine) scrapeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.scrapes)
}

func okResult() *scraper.Result {
	return &scraper.Result{
		Text:     "PROFILE HEADER\nJane Doe\n\nExperience\nStaff Engineer at Acme",
		Chars:    52,
		Strategy: scraper.StrategySections,
	}
}

type staticResolver struct {
	creds scraper.Credentials
	err   error
}

func (r staticResolver) Resolve(_ context.Context, _ string, override *scraper.Credentials) (scraper.Credentials, credentials.Source, error) {
	if override != nil && override.Complete() {
		return *override, credentials.SourceRequest, nil
	}
	if r.err != nil {
		return scraper.Credentials{}, "", r.err
	}
	return r.creds, credentials.SourceEnv, nil
}

func envResolver() staticResolver {
	return staticResolver{creds: scraper.Credentials{Email: "jane@example.com", Password: "hunter2"}}
}

type memStore struct {
	mu      sync.Mutex
	scrapes map[uuid.UUID]*db.ProfileScrape
	running []uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{scrapes: make(map[uuid.UUID]*db.ProfileScrape)}
}

func (s *memStore) CreateScrape(_ context.Context, sessionKey, profileURL string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.scrapes[id] = &db.ProfileScrape{
		ID: id, SessionKey: sessionKey, ProfileURL: profileURL,
		Status: db.ScrapeStatusPending, CreatedAt: time.Now(),
	}
	return id, nil
}

func (s *memStore) MarkScrapeRunning(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = append(s.running, id)
	s.scrapes[id].Status = db.ScrapeStatusRunning
	return nil
}

func (s *memStore) CompleteScrape(_ context.Context, id uuid.UUID, outcome db.ScrapeOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.scrapes[id]
	row.Status = db.ScrapeStatusSynced
	row.RawText = &outcome.RawText
	row.Parsed = outcome.Parsed
	row.Strategy = &outcome.Strategy
	row.Chars = outcome.Chars
	return nil
}

func (s *memStore) FailScrape(_ context.Context, id uuid.UUID, status, code, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.scrapes[id]
	row.Status = status
	row.ErrorCode = &code
	row.ErrorMessage = &message
	return nil
}

func (s *memStore) GetScrape(_ context.Context, id uuid.UUID) (*db.ProfileScrape, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.scrapes[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *memStore) LatestScrape(_ context.Context, sessionKey string, statuses ...string) (*db.ProfileScrape, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *db.ProfileScrape
	for _, row := range s.scrapes {
		if row.SessionKey != sessionKey {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, row.Status) {
			continue
		}
		if latest == nil || row.CreatedAt.After(latest.CreatedAt) {
			latest = row
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

type stubParser struct {
	out json.RawMessage
	err error
}

func (p stubParser) Parse(context.Context, string) (json.RawMessage, error) {
	return p.out, p.err
}

var errParse = errors.New("model returned prose")
