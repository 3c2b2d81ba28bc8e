package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	feedURL       = "https://www.linkedin.com/feed/"
	checkpointURL = "https://www.linkedin.com/checkpoint/challenge/AgE123"
)

func newLogin(d *fakeDriver, clock *fakeClock) *login {
	return &login{page: newPage(d, clock, zap.NewNop()), loginURL: DefaultLoginURL}
}

func TestLoginSubmit_FillsForm(t *testing.T) {
	d := newFakeDriver(loginStep{url: feedURL})
	clock := newFakeClock()
	l := newLogin(d, clock)

	require.NoError(t, l.submit(context.Background(), Credentials{Email: "jane@example.com", Password: "hunter2"}))

	form := d.pages[DefaultLoginURL].elements
	assert.Equal(t, []string{"jane@example.com"}, form[usernameSelector][0].keys)
	assert.Equal(t, []string{"hunter2"}, form[passwordSelector][0].keys)
	assert.Equal(t, 1, form[submitLoginSelector][0].clicks)
	assert.Equal(t, []time.Duration{loginInitialWait}, clock.Sleeps())
}

func TestLoginSubmit_FormMissing(t *testing.T) {
	d := newFakeDriver()
	d.pages[DefaultLoginURL] = &fakePage{html: "<html><body>blocked</body></html>"}
	clock := newFakeClock()

	err := newLogin(d, clock).submit(context.Background(), Credentials{Email: "a", Password: "b"})
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindBrowser, kind)
	assert.GreaterOrEqual(t, clock.Now().Sub(newFakeClock().Now()), loginFieldTimeout)
}

func TestLoginPoll(t *testing.T) {
	tests := []struct {
		name      string
		steps     []loginStep
		budget    time.Duration
		wantState LoginState
		wantPolls int
		timedOut  bool
	}{
		{
			name:      "immediate success",
			steps:     []loginStep{{url: feedURL, body: "Start a post"}},
			budget:    30 * time.Second,
			wantState: StateSuccess,
			wantPolls: 1,
		},
		{
			name: "success after challenge",
			steps: []loginStep{
				{url: checkpointURL, body: "Check your LinkedIn app to verify it's you"},
				{url: feedURL, body: "Start a post"},
			},
			budget:    30 * time.Second,
			wantState: StateSuccess,
			wantPolls: 2,
		},
		{
			name:      "wrong password",
			steps:     []loginStep{{url: DefaultLoginURL, body: "Wrong email or password. Try again"}},
			budget:    30 * time.Second,
			wantState: StateHardFailure,
			wantPolls: 1,
		},
		{
			name:      "challenge until budget runs out",
			steps:     []loginStep{{url: checkpointURL, body: "Let's do a quick security check"}},
			budget:    9 * time.Second,
			wantState: StateChallengePending,
			wantPolls: 3,
			timedOut:  true,
		},
		{
			name:      "stuck on login page",
			steps:     []loginStep{{url: DefaultLoginURL, body: "Sign in"}},
			budget:    6 * time.Second,
			wantState: StateInconclusive,
			wantPolls: 2,
			timedOut:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDriver(tt.steps...)
			d.current = DefaultLoginURL
			l := newLogin(d, newFakeClock())

			res, err := l.poll(context.Background(), tt.budget)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, res.State)
			assert.Equal(t, tt.wantPolls, res.Polls)
			assert.Equal(t, tt.timedOut, res.TimedOut)
		})
	}
}

func TestLoginPoll_HardFailureDoesNotWait(t *testing.T) {
	d := newFakeDriver(loginStep{url: DefaultLoginURL, body: "That's an incorrect password."})
	d.current = DefaultLoginURL
	clock := newFakeClock()

	res, err := newLogin(d, clock).poll(context.Background(), 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateHardFailure, res.State)
	assert.Empty(t, clock.Sleeps())
}

func TestLoginPoll_DriverGone(t *testing.T) {
	d := newFakeDriver()
	d.urlErr = errDriverGone

	_, err := newLogin(d, newFakeClock()).poll(context.Background(), 30*time.Second)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindBrowser, kind)
	assert.ErrorIs(t, err, errDriverGone)
}

func TestLoginPoll_DismissesModalsBetweenChecks(t *testing.T) {
	d := newFakeDriver(loginStep{url: feedURL, body: "Start a post"})
	d.current = DefaultLoginURL
	notNow := &fakeElement{id: "notifications", dismiss: true}
	d.pages[DefaultLoginURL].elements[dismissSelectors[0]] = []*fakeElement{notNow}

	_, err := newLogin(d, newFakeClock()).poll(context.Background(), 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, notNow.clicks)
}
