package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/edgard/scposter/internal/resilience"
)

var (
	// ErrMalformedResponse is returned when a response body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed response payload")
	// ErrGuardRequired is returned when Steam Guard confirmation is needed but no handler accepts it.
	ErrGuardRequired = errors.New("steam guard confirmation required")
	// ErrNoSession is returned when an authenticated call is made without tokens.
	ErrNoSession = errors.New("no active session")
	// ErrNoRefreshToken is returned by Refresh when the session cannot be renewed.
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// RetryDisposition tells callers how to react to a failure.
type RetryDisposition int

const (
	// ImmediateRetry means the call can be repeated right away.
	ImmediateRetry RetryDisposition = iota
	// BackoffRetry means the call can be repeated after a delay.
	BackoffRetry
	// Reauthenticate means the session must be renewed first.
	Reauthenticate
	// Fatal means retrying will not help.
	Fatal
)

func (d RetryDisposition) String() string {
	switch d {
	case ImmediateRetry:
		return "immediate_retry"
	case BackoffRetry:
		return "backoff_retry"
	case Reauthenticate:
		return "reauthenticate"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ErrorDomain names the layer an error came from.
type ErrorDomain int

const (
	DomainAuthentication ErrorDomain = iota
	DomainTransport
	DomainApplication
	DomainUnknown
)

func (d ErrorDomain) String() string {
	switch d {
	case DomainAuthentication:
		return "authentication"
	case DomainTransport:
		return "transport"
	case DomainApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Inventory summarizes how an error should be treated.
type Inventory struct {
	Domain      ErrorDomain
	Disposition RetryDisposition
	Description string
}

// Retryable reports whether another attempt may succeed without user action.
func (i Inventory) Retryable() bool {
	return i.Disposition == ImmediateRetry || i.Disposition == BackoffRetry
}

// APIError is a non-OK answer from the Web API.
type APIError struct {
	Method  string
	Status  int
	Result  EResult
	Message string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("steam api %s: status %d, result %s", e.Method, e.Status, e.Result)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// LogonStage identifies the step of LogOn that failed.
type LogonStage string

const (
	StageDiscovery  LogonStage = "discovery"
	StageConnection LogonStage = "connection"
	StageInvariant  LogonStage = "invariant"
)

// LogonError wraps any failure raised while establishing a session.
type LogonError struct {
	Stage     LogonStage
	Err       error
	Inventory Inventory
}

func (e *LogonError) Error() string {
	switch e.Stage {
	case StageDiscovery:
		return fmt.Sprintf("failed to discover Steam servers: %v", e.Err)
	case StageInvariant:
		return fmt.Sprintf("invalid session state: %v", e.Err)
	default:
		return fmt.Sprintf("failed to establish connection: %v", e.Err)
	}
}

func (e *LogonError) Unwrap() error { return e.Err }

func newLogonError(stage LogonStage, err error) *LogonError {
	var le *LogonError
	if errors.As(err, &le) {
		return le
	}
	inv := Classify(err)
	if stage == StageDiscovery {
		inv = Inventory{DomainTransport, BackoffRetry, "server discovery failed"}
	}
	return &LogonError{Stage: stage, Err: err, Inventory: inv}
}

// InvariantError reports a session that came back from Steam in an unusable state.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string { return e.Message }

// Classify maps err onto the retry taxonomy.
func Classify(err error) Inventory {
	if err == nil {
		return Inventory{DomainUnknown, Fatal, "no error"}
	}

	var (
		le      *LogonError
		apiErr  *APIError
		invErr  *InvariantError
		netErr  net.Error
		syntax  *json.SyntaxError
		typeErr *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &le):
		return le.Inventory
	case errors.As(err, &invErr):
		return Inventory{DomainApplication, Fatal, invErr.Message}
	case errors.Is(err, ErrGuardRequired):
		return Inventory{DomainAuthentication, Reauthenticate, "two-factor confirmation required"}
	case errors.Is(err, context.Canceled):
		return Inventory{DomainTransport, Fatal, "operation aborted"}
	case errors.Is(err, context.DeadlineExceeded):
		return Inventory{DomainTransport, ImmediateRetry, "request timed out"}
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrNoRefreshToken):
		return Inventory{DomainAuthentication, Reauthenticate, "stale or invalid access token"}
	case errors.Is(err, resilience.ErrCircuitOpen):
		return Inventory{DomainTransport, BackoffRetry, "circuit breaker open"}
	case errors.As(err, &apiErr):
		return classifyAPIError(apiErr)
	case errors.Is(err, ErrMalformedResponse), errors.As(err, &syntax), errors.As(err, &typeErr):
		return Inventory{DomainApplication, Fatal, "malformed response payload"}
	case errors.As(err, &netErr) && netErr.Timeout():
		return Inventory{DomainTransport, ImmediateRetry, "request timed out"}
	case errors.As(err, &netErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return Inventory{DomainTransport, BackoffRetry, "transport dropped connection"}
	default:
		return Inventory{DomainUnknown, BackoffRetry, "unclassified error"}
	}
}

func classifyAPIError(e *APIError) Inventory {
	switch e.Result {
	case ResultTimeout:
		return Inventory{DomainTransport, ImmediateRetry, "steam backend timeout"}
	case ResultOK:
		if e.Status == 0 || e.Status < 300 {
			return Inventory{DomainUnknown, Fatal, "unexpected OK error code"}
		}
	case ResultRateLimitExceeded, ResultLimitExceeded, ResultAccountLoginDeniedThrottle:
		return Inventory{DomainTransport, BackoffRetry, "rate limited by Steam"}
	case ResultInvalidPassword, ResultAccountDisabled, ResultAccountLockedDown,
		ResultAccountNotFound, ResultBanned, ResultSuspended:
		return Inventory{DomainAuthentication, Fatal, "invalid credentials"}
	case ResultAccountLoginDeniedNeedTwoFactor, ResultTwoFactorCodeMismatch, ResultInvalidLoginAuthCode:
		return Inventory{DomainAuthentication, Reauthenticate, "two-factor authentication required"}
	case ResultExpired, ResultRevoked, ResultNotLoggedOn:
		return Inventory{DomainAuthentication, Reauthenticate, "stale or invalid access token"}
	case ResultServiceUnavailable, ResultBusy, ResultTryAnotherCM:
		return Inventory{DomainTransport, BackoffRetry, "steam service unavailable"}
	case ResultInvalidParam, ResultAccessDenied, ResultInsufficientPrivilege, ResultFileNotFound:
		return Inventory{DomainApplication, Fatal, "request rejected by Steam"}
	}

	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return Inventory{DomainAuthentication, Reauthenticate, "stale or invalid access token"}
	case e.Status == http.StatusTooManyRequests:
		return Inventory{DomainTransport, BackoffRetry, "rate limited by Steam"}
	case e.Status >= 500:
		return Inventory{DomainTransport, BackoffRetry, "steam service unavailable"}
	case e.Status == http.StatusBadRequest || e.Status == http.StatusNotFound:
		return Inventory{DomainApplication, Fatal, "request rejected by Steam"}
	}
	return Inventory{DomainUnknown, BackoffRetry, "unmapped Steam error code"}
}
