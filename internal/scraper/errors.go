package scraper

import (
	"errors"
	"fmt"
)

// Kind classifies scraper failures so callers can pick a response without string matching.
type Kind int

const (
	// KindBrowser covers launch, navigation and login-form failures.
	KindBrowser Kind = iota
	KindCredentialsMissing
	KindLoginFailed
	// KindSecurityChallenge is the only retryable kind: the browser was parked under SessionKey.
	KindSecurityChallenge
	// KindChallengeNoSession means a challenge was pending but nothing could be parked.
	KindChallengeNoSession
	KindSessionExpired
	// KindSessionBusy means another resume is already polling the parked browser.
	KindSessionBusy
	KindContentTooShort
	KindNoProfileSignal
	KindProfileNotFound
	// KindInvalidRequest rejects a call before any browser is launched.
	KindInvalidRequest
)

func (k Kind) String() string {
	switch k {
	case KindBrowser:
		return "browser"
	case KindCredentialsMissing:
		return "credentials_missing"
	case KindLoginFailed:
		return "login_failed"
	case KindSecurityChallenge:
		return "security_challenge"
	case KindChallengeNoSession:
		return "challenge_no_session"
	case KindSessionExpired:
		return "session_expired"
	case KindSessionBusy:
		return "session_busy"
	case KindContentTooShort:
		return "content_too_short"
	case KindNoProfileSignal:
		return "no_profile_signal"
	case KindProfileNotFound:
		return "profile_not_found"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ContentInsufficient reports whether k is one of the content gate failures.
func (k Kind) ContentInsufficient() bool {
	return k == KindContentTooShort || k == KindNoProfileSignal || k == KindProfileNotFound
}

// Error is returned by every public scraper operation.
type Error struct {
	Kind       Kind
	SessionKey string
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func challengeError(sessionKey string) *Error {
	return &Error{
		Kind:       KindSecurityChallenge,
		SessionKey: sessionKey,
		Message:    "LinkedIn is asking for security verification. Approve the notification on your phone, then retry.",
	}
}

// KindOf extracts the Kind of a scraper error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsRetryable reports whether err can be recovered by resuming the parked session.
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindSecurityChallenge
}

// SessionKeyOf returns the key of the parked session carried by a challenge error.
func SessionKeyOf(err error) (string, bool) {
	var se *Error
	if errors.As(err, &se) && se.Kind == KindSecurityChallenge && se.SessionKey != "" {
		return se.SessionKey, true
	}
	return "", false
}
