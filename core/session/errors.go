package session

import (
	"github.com/pkg/errors"
)

var (
	// ErrSessionExpired is returned once a refresh has failed and the tokens were cleared.
	ErrSessionExpired = errors.New("session expired")

	ErrNoRefreshToken   = errors.New("no refresh token")
	ErrRefreshTimeout   = errors.New("token refresh timed out")
	ErrEmptyAccessToken = errors.New("refresh returned an empty access token")
	ErrLoggedOut        = errors.New("logged out during token refresh")
)

// ExpiredError carries the refresh failure that ended a session.
// It matches ErrSessionExpired with errors.Is and unwraps to the refresh failure.
type ExpiredError struct {
	Err error
}

func (e *ExpiredError) Error() string {
	return ErrSessionExpired.Error() + ": " + e.Err.Error()
}

func (e *ExpiredError) Unwrap() error { return e.Err }

func (e *ExpiredError) Is(target error) bool { return target == ErrSessionExpired }
