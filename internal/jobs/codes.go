package jobs

import "github.com/jonathan/profile-sync/internal/scraper"

// Error codes reported to API clients and stored on failed syncs.
const (
	CodeMissingCreds        = "MISSING_CREDS"
	CodeLoginFailed         = "LOGIN_FAILED"
	CodeSecurityChallenge   = "SECURITY_CHALLENGE"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeSessionBusy         = "SESSION_BUSY"
	CodeContentInsufficient = "CONTENT_INSUFFICIENT"
	CodeProfileNotFound     = "PROFILE_NOT_FOUND"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeError               = "ERROR"
)

// ErrorCode maps an error to its client-facing code.
func ErrorCode(err error) string {
	kind, ok := scraper.KindOf(err)
	if !ok {
		return CodeError
	}
	switch kind {
	case scraper.KindCredentialsMissing:
		return CodeMissingCreds
	case scraper.KindLoginFailed:
		return CodeLoginFailed
	case scraper.KindSecurityChallenge, scraper.KindChallengeNoSession:
		return CodeSecurityChallenge
	case scraper.KindSessionExpired:
		return CodeSessionExpired
	case scraper.KindSessionBusy:
		return CodeSessionBusy
	case scraper.KindContentTooShort, scraper.KindNoProfileSignal:
		return CodeContentInsufficient
	case scraper.KindProfileNotFound:
		return CodeProfileNotFound
	case scraper.KindInvalidRequest:
		return CodeInvalidRequest
	default:
		return CodeError
	}
}
