package race

import "errors"

var (
	// ErrAuthentication means no session could be established; it aborts a
	// batch before any lot starts.
	ErrAuthentication = errors.New("race: authentication failed")
	// ErrWarmup is logged and ignored; a cold connection is only slower.
	ErrWarmup = errors.New("race: warm-up request failed")
	// ErrAttemptTransport covers timeouts and connection failures.
	ErrAttemptTransport = errors.New("race: attempt transport error")
	// ErrAttemptPayload covers bodies that cannot be read as a verdict.
	ErrAttemptPayload = errors.New("race: attempt payload error")
	// ErrSessionExpired is reported when an attempt was bounced to the login page.
	ErrSessionExpired = errors.New("race: session expired")
	// ErrLotExhausted is attached to lots where no attempt succeeded.
	ErrLotExhausted = errors.New("race: no successful attempt")
)
