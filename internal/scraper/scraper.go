// Package scraper drives a logged-in LinkedIn browser session to extract profile text.
//
// A scrape launches a browser, signs in, and extracts the profile within a time budget.
// When LinkedIn asks for step-up verification the live browser is parked in a Registry
// under the caller's session key, and Resume continues polling on that same browser
// instead of signing in again.
package scraper

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jonathan/profile-sync/internal/browser"
	"github.com/jonathan/profile-sync/internal/pagetext"
)

const (
	// DefaultLoginPollBudget keeps a first attempt short so the user is prompted quickly.
	DefaultLoginPollBudget = 30 * time.Second
	// DefaultRetryPollBudget gives a resumed attempt time for the user to approve.
	DefaultRetryPollBudget = 60 * time.Second

	mainWaitTimeout  = 10 * time.Second
	mainMissingPause = 5 * time.Second
	renderPause      = 3 * time.Second
)

// Config tunes a Scraper. Zero values use the package defaults.
type Config struct {
	LoginURL        string
	TimeBudget      time.Duration
	LoginPollBudget time.Duration
	RetryPollBudget time.Duration
}

func (c Config) withDefaults() Config {
	if c.LoginURL == "" {
		c.LoginURL = DefaultLoginURL
	}
	if c.TimeBudget <= 0 {
		c.TimeBudget = DefaultTimeBudget
	}
	if c.LoginPollBudget <= 0 {
		c.LoginPollBudget = DefaultLoginPollBudget
	}
	if c.RetryPollBudget <= 0 {
		c.RetryPollBudget = DefaultRetryPollBudget
	}
	return c
}

// Launcher starts a fresh browser.
type Launcher func(ctx context.Context) (browser.Driver, error)

// ChromeLauncher launches headless Chrome with opts.
func ChromeLauncher(opts browser.LaunchOptions) Launcher {
	return func(ctx context.Context) (browser.Driver, error) {
		return browser.Launch(ctx, opts)
	}
}

// ScrapeRequest describes one fresh scrape.
type ScrapeRequest struct {
	ProfileURL  string
	Credentials Credentials
	// SessionKey, when set, lets a pending security challenge be resumed.
	SessionKey string
	// PollBudget overrides the login poll budget.
	PollBudget time.Duration
}

// Result is a validated profile extraction.
type Result struct {
	Text       string
	Chars      int
	Strategy   Strategy
	Sections   []string
	LoginState LoginState
	Elapsed    time.Duration
}

// Scraper runs scrapes and resumes. It is safe for concurrent use; each call drives
// its own browser.
type Scraper struct {
	cfg      Config
	launch   Launcher
	registry *Registry
	clock    Clock
	log      *zap.Logger
	tracer   trace.Tracer
}

const tracerName = "profile-sync/scraper"

// Option configures a Scraper.
type Option func(*Scraper)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(s *Scraper) { s.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scraper) { s.log = logger }
}

// WithTracerProvider records spans with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Scraper) { s.tracer = tp.Tracer(tracerName) }
}

// WithRegistry shares an existing session registry.
func WithRegistry(r *Registry) Option {
	return func(s *Scraper) { s.registry = r }
}

// New creates a Scraper that launches browsers with launch.
func New(cfg Config, launch Launcher, opts ...Option) *Scraper {
	s := &Scraper{
		cfg:    cfg.withDefaults(),
		launch: launch,
		clock:  RealClock(),
		log:    zap.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("scraper")
	if s.registry == nil {
		s.registry = NewRegistry(DefaultSessionTTL, s.clock, s.log)
	}
	return s
}

// Registry returns the registry holding parked sessions.
func (s *Scraper) Registry() *Registry {
	return s.registry
}

// Config returns the effective configuration.
func (s *Scraper) Config() Config {
	return s.cfg
}

// Scrape signs in with fresh credentials and extracts the profile at req.ProfileURL.
// A pending challenge with a session key parks the browser and returns a
// KindSecurityChallenge error; the browser is shut down on every other path.
func (s *Scraper) Scrape(ctx context.Context, req ScrapeRequest) (_ *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "scraper.Scrape", trace.WithAttributes(
		attribute.Bool("session_key.present", req.SessionKey != ""),
	))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(req.ProfileURL) == "" {
		return nil, newError(KindInvalidRequest, "profile URL is required", nil)
	}
	if !req.Credentials.Complete() {
		return nil, newError(KindCredentialsMissing,
			"LinkedIn credentials are not configured. Save your LinkedIn e-mail and password or set LinkedinLogin and LinkedinPassword.", nil)
	}

	if n := s.registry.Sweep(); n > 0 {
		s.log.Info("swept stale sessions", zap.Int("count", n))
	}

	budget := NewBudget(s.clock, s.cfg.TimeBudget)
	log := s.log.With(zap.String("url", req.ProfileURL))
	if req.SessionKey != "" {
		log = log.With(zap.String("session_key", req.SessionKey))
	}

	drv, err := s.launch(ctx)
	if err != nil {
		return nil, newError(KindBrowser, "failed to launch browser", err)
	}
	parked := false
	defer func() {
		if !parked {
			s.quit(drv, log)
		}
	}()

	page := newPage(drv, s.clock, log)
	l := &login{page: page, loginURL: s.cfg.LoginURL}
	if err := l.submit(ctx, req.Credentials); err != nil {
		return nil, err
	}

	pollBudget := req.PollBudget
	if pollBudget <= 0 {
		pollBudget = s.cfg.LoginPollBudget
	}
	res, err := s.poll(ctx, l, pollBudget)
	if err != nil {
		return nil, err
	}

	switch res.State {
	case StateHardFailure:
		return nil, loginFailedError()
	case StateChallengePending:
		if req.SessionKey == "" {
			return nil, newError(KindChallengeNoSession,
				"LinkedIn security verification timed out. Log into LinkedIn manually in a regular browser, approve any security checks, then retry the scrape.", nil)
		}
		s.registry.Park(req.SessionKey, drv, req.ProfileURL)
		parked = true
		return nil, challengeError(req.SessionKey)
	case StateSuccess, StateInconclusive:
		return s.extract(ctx, page, req.ProfileURL, budget, res.State)
	default:
		return nil, newError(KindBrowser, "login ended in unexpected state "+res.State.String(), nil)
	}
}

// Resume continues polling the browser parked under sessionKey. On a renewed challenge
// the session stays parked with a fresh TTL and the same key is returned in the error.
// An empty profileURL reuses the URL from the original scrape.
func (s *Scraper) Resume(ctx context.Context, sessionKey, profileURL string, pollBudget time.Duration) (_ *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "scraper.Resume")
	defer func() { endSpan(span, err) }()

	sess, err := s.registry.Checkout(sessionKey)
	if err != nil {
		return nil, err
	}
	if profileURL == "" {
		profileURL = sess.TargetURL
	}
	log := s.log.With(zap.String("session_key", sessionKey), zap.String("url", profileURL))

	if _, err := sess.Driver.CurrentURL(ctx); err != nil {
		log.Warn("parked browser is gone", zap.Error(err))
		s.registry.Discard(sess)
		return nil, &Error{
			Kind:       KindSessionExpired,
			SessionKey: sessionKey,
			Message:    "The LinkedIn session expired. Please start a new scrape.",
			Cause:      err,
		}
	}

	budget := NewBudget(s.clock, s.cfg.TimeBudget)
	if pollBudget <= 0 {
		pollBudget = s.cfg.RetryPollBudget
	}
	page := newPage(sess.Driver, s.clock, log)
	res, err := s.poll(ctx, &login{page: page, loginURL: s.cfg.LoginURL}, pollBudget)
	if err != nil {
		s.registry.Discard(sess)
		return nil, err
	}

	switch res.State {
	case StateChallengePending:
		s.registry.Return(sess)
		log.Info("challenge still pending, session kept")
		return nil, challengeError(sessionKey)
	case StateHardFailure:
		s.registry.Discard(sess)
		return nil, loginFailedError()
	case StateSuccess, StateInconclusive:
		s.registry.Detach(sess)
		defer s.quit(sess.Driver, log)
		return s.extract(ctx, page, profileURL, budget, res.State)
	default:
		s.registry.Discard(sess)
		return nil, newError(KindBrowser, "login ended in unexpected state "+res.State.String(), nil)
	}
}

// Release shuts down the browser parked under sessionKey, if any.
func (s *Scraper) Release(sessionKey string) {
	s.registry.Release(sessionKey)
}

func (s *Scraper) poll(ctx context.Context, l *login, budget time.Duration) (LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "scraper.LoginPoll", trace.WithAttributes(
		attribute.String("login.budget", budget.String()),
	))
	res, err := l.poll(ctx, budget)
	span.SetAttributes(res.attributes()...)
	endSpan(span, err)
	return res, err
}

// extract loads the profile and runs the budget-gated extraction steps, then validates
// the combined text.
func (s *Scraper) extract(ctx context.Context, page *Page, profileURL string, budget Budget, state LoginState) (_ *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "scraper.Extract")
	defer func() { endSpan(span, err) }()

	log := page.log
	log.Info("navigating to profile")
	if err := page.drv.Navigate(ctx, profileURL); err != nil {
		return nil, newError(KindBrowser, "failed to open profile", err)
	}
	_, found, err := page.WaitForElement(ctx, mainSelector, mainWaitTimeout)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := s.clock.Sleep(ctx, mainMissingPause); err != nil {
			return nil, err
		}
	}
	if err := s.clock.Sleep(ctx, renderPause); err != nil {
		return nil, err
	}
	if _, err := page.DismissOverlays(ctx); err != nil {
		return nil, err
	}

	doc, err := s.snapshot(ctx, page)
	if err != nil {
		return nil, err
	}
	if err := CheckRaw(doc.MainText(), doc.BodyText()); err != nil {
		return nil, err
	}

	if _, err := page.ProgressiveScroll(ctx, profileScroll); err != nil {
		return nil, err
	}
	if budget.Remaining() {
		if _, err := page.ExpandSeeMore(ctx); err != nil {
			return nil, err
		}
	}

	// Sections and raw text come from the profile as rendered before detail traversal.
	doc, err = s.snapshot(ctx, page)
	if err != nil {
		return nil, err
	}
	sections := extractSections(doc)
	raw := doc.MainText()
	bodySample := truncateRunes(doc.BodyText(), bodySampleMaxChars)

	detail := ""
	if budget.Remaining() {
		detail, err = page.TraverseDetails(ctx, profileURL, budget)
		if err != nil {
			return nil, err
		}
	} else {
		log.Info("time budget reached, skipping detail pages")
	}

	text, strategy := CombineContent(sections, detail, raw)
	if err := ValidateContent(text, bodySample); err != nil {
		return nil, err
	}

	result := &Result{
		Text:       text,
		Chars:      charCount(text),
		Strategy:   strategy,
		Sections:   SectionNames(text),
		LoginState: state,
		Elapsed:    budget.Elapsed(),
	}
	span.SetAttributes(
		attribute.Int("content.chars", result.Chars),
		attribute.String("content.strategy", string(strategy)),
	)
	log.Info("extracted profile",
		zap.Int("chars", result.Chars),
		zap.String("strategy", string(strategy)),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}

func (s *Scraper) snapshot(ctx context.Context, page *Page) (*pagetext.Document, error) {
	html, err := page.Snapshot(ctx)
	if err != nil {
		return nil, newError(KindBrowser, "failed to read profile page", err)
	}
	doc, err := pagetext.Parse(html)
	if err != nil {
		return nil, newError(KindBrowser, "failed to parse profile page", err)
	}
	return doc, nil
}

func (s *Scraper) quit(drv browser.Driver, log *zap.Logger) {
	if err := drv.Quit(); err != nil {
		log.Warn("failed to close browser", zap.Error(err))
	}
}

func loginFailedError() *Error {
	return newError(KindLoginFailed,
		"LinkedIn login failed: incorrect e-mail or password. Check your saved LinkedIn credentials.", nil)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
