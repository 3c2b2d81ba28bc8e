package scraper

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultLoginURL is the LinkedIn sign-in page.
const DefaultLoginURL = "https://www.linkedin.com/login"

const (
	loginFieldTimeout = 10 * time.Second
	loginInitialWait  = 4 * time.Second
	loginPollInterval = 3 * time.Second
)

var (
	// loginURLMarkers identify pages that are still part of the sign-in flow.
	loginURLMarkers = []string{"login", "checkpoint", "challenge"}

	hardFailureMarkers = []string{"incorrect", "wrong"}

	challengeKeywords = []string{
		"verification", "security", "challenge", "verify",
		"approve", "confirm", "recognize", "is this you",
	}
)

// LoginState is the position of the login state machine.
type LoginState int

const (
	StateSubmitting LoginState = iota
	StatePolling
	StateSuccess
	StateHardFailure
	StateChallengePending
	// StateInconclusive means the poll budget ran out on a sign-in page without a
	// challenge. Extraction is attempted anyway since redirects can lag.
	StateInconclusive
)

func (s LoginState) String() string {
	switch s {
	case StateSubmitting:
		return "submitting"
	case StatePolling:
		return "polling"
	case StateSuccess:
		return "success"
	case StateHardFailure:
		return "hard_failure"
	case StateChallengePending:
		return "challenge_pending"
	case StateInconclusive:
		return "inconclusive"
	default:
		return "unknown"
	}
}

// Credentials are the LinkedIn e-mail and password for one attempt.
type Credentials struct {
	Email    string
	Password string
}

// Complete reports whether both fields are set.
func (c Credentials) Complete() bool {
	return c.Email != "" && c.Password != ""
}

// LoginResult is the outcome of a polling run.
type LoginResult struct {
	State   LoginState
	URL     string
	Polls   int
	Elapsed time.Duration
	// TimedOut is set when the poll budget ran out before a terminal state.
	TimedOut bool
}

// observation is what one poll saw.
type observation struct {
	url       string
	sample    string
	challenge bool
}

type login struct {
	page     *Page
	loginURL string
}

// submit opens the sign-in page, fills the form and waits for the first redirect.
func (l *login) submit(ctx context.Context, creds Credentials) error {
	p := l.page
	p.log.Info("navigating to login", zap.String("url", l.loginURL))
	if err := p.drv.Navigate(ctx, l.loginURL); err != nil {
		return newError(KindBrowser, "failed to open the LinkedIn login page", err)
	}

	username, ok, err := p.WaitForElement(ctx, usernameSelector, loginFieldTimeout)
	if err != nil {
		return newError(KindBrowser, "waiting for login form", err)
	}
	if !ok {
		return newError(KindBrowser, "LinkedIn login form did not appear", nil)
	}
	password, ok, err := p.WaitForElement(ctx, passwordSelector, 0)
	if err != nil || !ok {
		return newError(KindBrowser, "LinkedIn password field not found", err)
	}
	submit, ok, err := p.WaitForElement(ctx, submitLoginSelector, 0)
	if err != nil || !ok {
		return newError(KindBrowser, "LinkedIn sign-in button not found", err)
	}

	if err := username.SendKeys(ctx, creds.Email); err != nil {
		return newError(KindBrowser, "typing e-mail", err)
	}
	if err := password.SendKeys(ctx, creds.Password); err != nil {
		return newError(KindBrowser, "typing password", err)
	}
	if err := submit.Click(ctx); err != nil {
		return newError(KindBrowser, "submitting login form", err)
	}
	return p.clock.Sleep(ctx, loginInitialWait)
}

// poll inspects the page every few seconds until a terminal state is reached or budget
// runs out. Driver failures reading the URL are returned as errors; everything else is a
// state.
func (l *login) poll(ctx context.Context, budget time.Duration) (LoginResult, error) {
	p := l.page
	start := p.clock.Now()
	result := LoginResult{State: StatePolling}
	var last observation

	for {
		obs, err := l.observe(ctx)
		if err != nil {
			return result, err
		}
		result.Polls++
		result.URL = obs.url
		result.Elapsed = p.clock.Now().Sub(start)
		last = obs

		lower := strings.ToLower(obs.sample)
		if containsAny(lower, hardFailureMarkers) {
			result.State = StateHardFailure
			return result, nil
		}
		if !containsAny(obs.url, loginURLMarkers) {
			result.State = StateSuccess
			p.log.Info("login succeeded", zap.Duration("elapsed", result.Elapsed), zap.String("url", obs.url))
			return result, nil
		}
		if obs.challenge {
			p.log.Info("security challenge pending, waiting for approval", zap.Duration("elapsed", result.Elapsed))
		} else {
			p.log.Info("still on login page", zap.String("url", obs.url), zap.Duration("elapsed", result.Elapsed))
		}

		if p.clock.Now().Sub(start)+loginPollInterval >= budget {
			break
		}
		if err := p.clock.Sleep(ctx, loginPollInterval); err != nil {
			return result, err
		}
	}

	result.TimedOut = true
	result.Elapsed = p.clock.Now().Sub(start)
	if last.challenge {
		result.State = StateChallengePending
		return result, nil
	}
	p.log.Warn("still on login-like page after poll budget", zap.String("url", last.url),
		zap.Duration("budget", budget))
	result.State = StateInconclusive
	return result, nil
}

func (l *login) observe(ctx context.Context) (observation, error) {
	p := l.page
	url, err := p.drv.CurrentURL(ctx)
	if err != nil {
		return observation{}, newError(KindBrowser, "browser stopped responding during login", err)
	}
	if _, err := p.DismissOverlays(ctx); err != nil {
		return observation{}, err
	}
	sample, err := p.BodySample(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return observation{}, ctx.Err()
		}
		p.log.Debug("could not read page text", zap.Error(err))
	}
	return observation{
		url:       url,
		sample:    sample,
		challenge: containsAny(strings.ToLower(sample), challengeKeywords),
	}, nil
}

func (r LoginResult) attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("login.state", r.State.String()),
		attribute.Int("login.polls", r.Polls),
		attribute.Bool("login.timed_out", r.TimedOut),
	}
}
