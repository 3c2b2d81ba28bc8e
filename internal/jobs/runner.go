// Package jobs runs profile scrapes on behalf of API and CLI callers.
//
// A Runner bounds how many browsers run at once, collapses duplicate calls for the same
// session key, optionally parses the scraped text into structured JSON, and records
// background syncs in the store.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/jonathan/profile-sync/internal/credentials"
	"github.com/jonathan/profile-sync/internal/db"
	"github.com/jonathan/profile-sync/internal/scraper"
)

const (
	// DefaultMaxConcurrent is the browser limit when none is configured.
	DefaultMaxConcurrent = 4
	// DefaultCallTimeout bounds a shared scrape or resume, including the wait for a slot.
	DefaultCallTimeout = 5 * time.Minute
)

// ErrNoStore is returned by Submit, Get and Latest when the runner has no store.
var ErrNoStore = errors.New("background sync requires a database")

// Engine runs scrapes. *scraper.Scraper implements it.
type Engine interface {
	Scrape(ctx context.Context, req scraper.ScrapeRequest) (*scraper.Result, error)
	Resume(ctx context.Context, sessionKey, profileURL string, pollBudget time.Duration) (*scraper.Result, error)
	Release(sessionKey string)
}

// CredentialResolver picks login credentials. *credentials.Resolver implements it.
type CredentialResolver interface {
	Resolve(ctx context.Context, sessionKey string, override *scraper.Credentials) (scraper.Credentials, credentials.Source, error)
}

// Store records background syncs. *db.DB implements it.
type Store interface {
	CreateScrape(ctx context.Context, sessionKey, profileURL string) (uuid.UUID, error)
	MarkScrapeRunning(ctx context.Context, id uuid.UUID) error
	CompleteScrape(ctx context.Context, id uuid.UUID, outcome db.ScrapeOutcome) error
	FailScrape(ctx context.Context, id uuid.UUID, status, code, message string) error
	GetScrape(ctx context.Context, id uuid.UUID) (*db.ProfileScrape, error)
	LatestScrape(ctx context.Context, sessionKey string, statuses ...string) (*db.ProfileScrape, error)
}

// Parser turns scraped text into structured profile JSON. *llm.ProfileParser implements it.
type Parser interface {
	Parse(ctx context.Context, rawText string) (json.RawMessage, error)
}

// Request describes a scrape run through the Runner.
type Request struct {
	SessionKey  string
	ProfileURL  string
	Credentials *scraper.Credentials
	PollBudget  time.Duration
}

// Outcome is a scrape result plus the optional parsed profile.
type Outcome struct {
	*scraper.Result
	Profile json.RawMessage
	// ParseError is set when parsing was attempted and failed; the raw text is still valid.
	ParseError string
}

// Runner coordinates scrapes. It is safe for concurrent use.
type Runner struct {
	engine   Engine
	resolver CredentialResolver
	store    Store
	parser   Parser
	sem      *semaphore.Weighted
	group    singleflight.Group
	timeout  time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	flights map[string]*flight

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Runner.
type Option func(*runnerOptions)

type runnerOptions struct {
	store         Store
	parser        Parser
	maxConcurrent int
	callTimeout   time.Duration
	logger        *zap.Logger
}

// WithStore enables background syncs.
func WithStore(store Store) Option {
	return func(o *runnerOptions) { o.store = store }
}

// WithParser enables profile parsing.
func WithParser(parser Parser) Option {
	return func(o *runnerOptions) { o.parser = parser }
}

// WithMaxConcurrent bounds concurrently running browsers.
func WithMaxConcurrent(n int) Option {
	return func(o *runnerOptions) { o.maxConcurrent = n }
}

// WithCallTimeout bounds each shared scrape or resume.
func WithCallTimeout(d time.Duration) Option {
	return func(o *runnerOptions) { o.callTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *runnerOptions) { o.logger = logger }
}

// NewRunner creates a Runner around engine.
func NewRunner(engine Engine, resolver CredentialResolver, opts ...Option) *Runner {
	o := runnerOptions{maxConcurrent: DefaultMaxConcurrent, callTimeout: DefaultCallTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxConcurrent < 1 {
		o.maxConcurrent = 1
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.callTimeout <= 0 {
		o.callTimeout = DefaultCallTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		engine:   engine,
		resolver: resolver,
		store:    o.store,
		parser:   o.parser,
		sem:      semaphore.NewWeighted(int64(o.maxConcurrent)),
		timeout:  o.callTimeout,
		log:      o.logger.Named("jobs"),
		flights:  make(map[string]*flight),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Scrape resolves credentials and runs a fresh scrape. Concurrent calls for the same
// session key and profile URL share one browser run.
func (r *Runner) Scrape(ctx context.Context, req Request) (*Outcome, error) {
	creds, source, err := r.resolver.Resolve(ctx, req.SessionKey, req.Credentials)
	if err != nil {
		return nil, err
	}
	r.log.Debug("resolved credentials",
		zap.String("session_key", req.SessionKey), zap.String("source", string(source)))

	return r.do(ctx, "scrape", req.SessionKey, req.ProfileURL, func(ctx context.Context) (*scraper.Result, error) {
		return r.engine.Scrape(ctx, scraper.ScrapeRequest{
			ProfileURL:  req.ProfileURL,
			Credentials: creds,
			SessionKey:  req.SessionKey,
			PollBudget:  req.PollBudget,
		})
	})
}

// Resume continues a parked challenge session.
func (r *Runner) Resume(ctx context.Context, sessionKey, profileURL string, pollBudget time.Duration) (*Outcome, error) {
	return r.do(ctx, "resume", sessionKey, profileURL, func(ctx context.Context) (*scraper.Result, error) {
		return r.engine.Resume(ctx, sessionKey, profileURL, pollBudget)
	})
}

// Release closes any parked session for sessionKey.
func (r *Runner) Release(sessionKey string) {
	r.engine.Release(sessionKey)
}

// flight is the context shared by callers collapsed onto one run. It is cancelled once
// every waiter has gone, so a run outlives a disconnected caller only while others wait.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stop    func() bool
	waiters int
}

func (r *Runner) do(ctx context.Context, op, sessionKey, profileURL string, run func(context.Context) (*scraper.Result, error)) (*Outcome, error) {
	if sessionKey == "" {
		return r.call(ctx, run)
	}

	key := op + ":" + sessionKey + ":" + profileURL
	f := r.join(ctx, key)
	defer r.leave(key, f)

	ch := r.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(f.ctx, r.timeout)
		defer cancel()
		return r.call(callCtx, run)
	})
	select {
	case res := <-ch:
		if res.Shared {
			r.log.Debug("shared in-flight call", zap.String("op", op), zap.String("session_key", sessionKey))
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Outcome), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Runner) join(ctx context.Context, key string) *flight {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel, stop: context.AfterFunc(r.baseCtx, cancel)}
		r.flights[key] = f
	}
	f.waiters++
	return f
}

func (r *Runner) leave(key string, f *flight) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.stop()
	f.cancel()
	if r.flights[key] == f {
		delete(r.flights, key)
	}
}

func (r *Runner) call(ctx context.Context, run func(context.Context) (*scraper.Result, error)) (*Outcome, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a browser slot: %w", err)
	}
	defer r.sem.Release(1)

	result, err := run(ctx)
	if err != nil {
		return nil, err
	}
	return r.parse(ctx, result), nil
}

func (r *Runner) parse(ctx context.Context, result *scraper.Result) *Outcome {
	out := &Outcome{Result: result}
	if r.parser == nil {
		return out
	}
	profile, err := r.parser.Parse(ctx, result.Text)
	if err != nil {
		r.log.Warn("profile parsing failed, keeping raw text", zap.Error(err))
		out.ParseError = err.Error()
		return out
	}
	out.Profile = profile
	return out
}

// Submit records a pending sync and runs it in the background.
func (r *Runner) Submit(ctx context.Context, req Request) (uuid.UUID, error) {
	if r.store == nil {
		return uuid.Nil, ErrNoStore
	}
	id, err := r.store.CreateScrape(ctx, req.SessionKey, req.ProfileURL)
	if err != nil {
		return uuid.Nil, err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(r.baseCtx, id, req)
	}()
	return id, nil
}

// Get returns a recorded sync, or nil when it does not exist.
func (r *Runner) Get(ctx context.Context, id uuid.UUID) (*db.ProfileScrape, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	return r.store.GetScrape(ctx, id)
}

// Latest returns the most recent successful sync for sessionKey, or nil when there is none.
func (r *Runner) Latest(ctx context.Context, sessionKey string) (*db.ProfileScrape, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	return r.store.LatestScrape(ctx, sessionKey, db.ScrapeStatusSynced)
}

func (r *Runner) run(ctx context.Context, id uuid.UUID, req Request) {
	log := r.log.With(zap.String("sync_id", id.String()), zap.String("session_key", req.SessionKey))
	recordCtx := context.WithoutCancel(ctx)

	if err := r.store.MarkScrapeRunning(recordCtx, id); err != nil {
		log.Error("failed to mark sync running", zap.Error(err))
	}

	out, err := r.Scrape(ctx, req)
	if err != nil {
		status := db.ScrapeStatusFailed
		if kind, ok := scraper.KindOf(err); ok && kind == scraper.KindSecurityChallenge {
			status = db.ScrapeStatusChallenge
		}
		code := ErrorCode(err)
		log.Warn("sync did not complete", zap.String("status", status), zap.String("code", code), zap.Error(err))
		if ferr := r.store.FailScrape(recordCtx, id, status, code, err.Error()); ferr != nil {
			log.Error("failed to record sync failure", zap.Error(ferr))
		}
		return
	}

	outcome := db.ScrapeOutcome{
		RawText:  out.Text,
		Parsed:   out.Profile,
		Strategy: string(out.Strategy),
		Chars:    out.Chars,
	}
	if err := r.store.CompleteScrape(recordCtx, id, outcome); err != nil {
		log.Error("failed to record sync result", zap.Error(err))
		return
	}
	log.Info("sync completed", zap.Int("chars", out.Chars), zap.String("strategy", string(out.Strategy)))
}

// Wait blocks until all background syncs have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close cancels background syncs and waits for them to stop.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}
