package oauth

import "errors"

var (
	// ErrUserNotFound signals that no credential record exists for the user id.
	ErrUserNotFound = errors.New("oauth: user not found")
	// ErrInvalidRequest indicates caller input validation errors.
	ErrInvalidRequest = errors.New("oauth: invalid request")
	// ErrInvalidState indicates the CSRF state is unknown, expired or mismatched.
	ErrInvalidState = errors.New("oauth: invalid state")
	// ErrTokenExchange wraps provider failures during the code exchange.
	ErrTokenExchange = errors.New("oauth: token exchange failed")
	// ErrIncompleteIdentity indicates the provider omitted a subject or email.
	ErrIncompleteIdentity = errors.New("oauth: incomplete identity")
	// ErrRefreshFailed wraps provider failures during a token refresh. The
	// stored record is left untouched; callers may retry with backoff.
	ErrRefreshFailed = errors.New("oauth: token refresh failed")
	// ErrReauthRequired is terminal: no usable refresh token remains and the
	// user must go through the authorization flow again.
	ErrReauthRequired = errors.New("oauth: reauthentication required")
)
