package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

var (
	// ErrMissingCSRFToken is returned before any network call when the CSRF cookie is absent.
	ErrMissingCSRFToken = errors.New("missing CSRF token")

	// ErrAuthenticationExpired matches any *APIError carrying a 401 status.
	ErrAuthenticationExpired = errors.New("authentication expired")

	// ErrRefreshFailed wraps failures of the refresh endpoint itself.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrTerminalAuthFailure marks a request rejected with 401 again after its replay.
	ErrTerminalAuthFailure = errors.New("authentication failed after token refresh")
)

// APIError captures a non-2xx response. The body is kept verbatim.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if detail := e.Detail(); detail != "" {
		msg += ": " + detail
	}
	return msg
}

// Is reports 401 responses as ErrAuthenticationExpired.
func (e *APIError) Is(target error) bool {
	return target == ErrAuthenticationExpired && e.StatusCode == http.StatusUnauthorized
}

// Detail returns the server-provided error detail, if any.
// Both {"detail": "..."} and validation lists {"detail": [{"msg": "..."}]} are understood.
func (e *APIError) Detail() string {
	detail := gjson.GetBytes(e.Body, "detail")
	switch {
	case !detail.Exists():
		return ""
	case detail.IsArray():
		return detail.Get("0.msg").String()
	default:
		return detail.String()
	}
}
