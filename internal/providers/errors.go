package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailoverReason categorizes an adapter error for the fallback path (§4.9):
// whether it is worth retrying the same preset, and whether it warrants
// switching presets entirely.
type FailoverReason string

const (
	FailoverTimeout     FailoverReason = "timeout"
	FailoverNetwork     FailoverReason = "network"
	FailoverRateLimit   FailoverReason = "rate_limit"
	FailoverAuth        FailoverReason = "auth"
	FailoverBilling     FailoverReason = "billing"
	FailoverServerError FailoverReason = "server_error"
	FailoverInvalid     FailoverReason = "invalid_request"
	FailoverDecode      FailoverReason = "decode_error"
	FailoverUnknown     FailoverReason = "unknown"
)

// IsRetryable reports whether retrying the same preset is worth attempting.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case FailoverRateLimit, FailoverTimeout, FailoverServerError, FailoverNetwork:
		return true
	default:
		return false
	}
}

// ShouldFailover reports whether the error warrants switching presets.
func (r FailoverReason) ShouldFailover() bool {
	switch r {
	case FailoverAuth, FailoverBilling, FailoverInvalid:
		return true
	default:
		return false
	}
}

// AdapterError is the structured error an Adapter returns on a failed call;
// it reaches fallback handlers as FallbackContext.ExcInfo, where its Reason
// can inform retry vs. failover (§4.9 "Fallback semantics"). The Engine's
// own retry decision does not look at Reason.
type AdapterError struct {
	Reason   FailoverReason
	Protocol string
	Model    string
	Status   int
	Message  string
	Cause    error
}

func (e *AdapterError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Protocol != "" {
		parts = append(parts, e.Protocol)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *AdapterError) Unwrap() error { return e.Cause }

// NewAdapterError wraps cause, classifying it from its text.
func NewAdapterError(protocol, model string, cause error) *AdapterError {
	e := &AdapterError{Protocol: protocol, Model: model, Cause: cause, Reason: FailoverUnknown}
	if cause != nil {
		e.Message = cause.Error()
		e.Reason = ClassifyError(cause)
	}
	return e
}

// WithStatus records an HTTP status and reclassifies the error from it.
func (e *AdapterError) WithStatus(status int) *AdapterError {
	e.Status = status
	e.Reason = classifyStatusCode(status)
	return e
}

// ClassifyError infers a FailoverReason from an error's text when no
// structured status/code is available (e.g. network-layer errors from an
// HTTP client).
func ClassifyError(err error) FailoverReason {
	if err == nil {
		return FailoverUnknown
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout") || strings.Contains(s, "deadline exceeded"):
		return FailoverTimeout
	case strings.Contains(s, "rate limit") || strings.Contains(s, "429"):
		return FailoverRateLimit
	case strings.Contains(s, "unauthorized") || strings.Contains(s, "invalid api key") || strings.Contains(s, "401") || strings.Contains(s, "403"):
		return FailoverAuth
	case strings.Contains(s, "billing") || strings.Contains(s, "quota") || strings.Contains(s, "402"):
		return FailoverBilling
	case strings.Contains(s, "connection") || strings.Contains(s, "no such host") || strings.Contains(s, "eof"):
		return FailoverNetwork
	case strings.Contains(s, "500") || strings.Contains(s, "502") || strings.Contains(s, "503") || strings.Contains(s, "504"):
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

func classifyStatusCode(status int) FailoverReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailoverAuth
	case status == http.StatusPaymentRequired:
		return FailoverBilling
	case status == http.StatusTooManyRequests:
		return FailoverRateLimit
	case status == http.StatusBadRequest:
		return FailoverInvalid
	case status >= 500:
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

// AsAdapterError extracts an *AdapterError from err's chain, if present.
func AsAdapterError(err error) (*AdapterError, bool) {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
