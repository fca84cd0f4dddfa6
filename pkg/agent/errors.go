package agent

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/harun/nava/internal/logger"
)

// Reason categorizes why a reasoning provider call failed.
type Reason string

const (
	ReasonAuth      Reason = "auth"
	ReasonRateLimit Reason = "rate_limit"
	ReasonTimeout   Reason = "timeout"
	ReasonBilling   Reason = "billing"
	ReasonFormat    Reason = "format"
	ReasonServer    Reason = "server"
	ReasonUnknown   Reason = "unknown"
)

// ProviderError is a failed reasoning provider call. It aborts the loop.
type ProviderError struct {
	Reason   Reason
	Provider string
	Model    string
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	switch {
	case e.Message != "":
		parts = append(parts, e.Message)
	case e.Err != nil:
		parts = append(parts, e.Err.Error())
	}
	return logger.RedactString(strings.Join(parts, " "))
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError classifies err by status and message.
func NewProviderError(provider, model string, status int, message string, err error) *ProviderError {
	pe := &ProviderError{
		Provider: provider,
		Model:    model,
		Status:   status,
		Message:  logger.RedactString(message),
		Err:      err,
		Reason:   classifyStatus(status),
	}
	if pe.Reason == ReasonUnknown {
		text := message
		if text == "" && err != nil {
			text = err.Error()
		}
		pe.Reason = classifyMessage(text)
	}
	return pe
}

func classifyStatus(status int) Reason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusPaymentRequired:
		return ReasonBilling
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ReasonFormat
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ReasonTimeout
	case status >= 500:
		return ReasonServer
	default:
		return ReasonUnknown
	}
}

var authMarkers = []string{
	"authentication",
	"unauthorized",
	"invalid api key",
	"invalid_api_key",
	"401",
	"403",
	"user not found",
}

func classifyMessage(msg string) Reason {
	s := strings.ToLower(msg)
	switch {
	case containsAny(s, authMarkers...):
		return ReasonAuth
	case containsAny(s, "timeout", "deadline exceeded"):
		return ReasonTimeout
	case containsAny(s, "rate limit", "rate_limit", "too many requests", "429"):
		return ReasonRateLimit
	case containsAny(s, "billing", "payment", "quota", "insufficient", "402"):
		return ReasonBilling
	case containsAny(s, "internal server", "server error", "502", "503"):
		return ReasonServer
	default:
		return ReasonUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// RootCause follows the Unwrap chain to its end.
func RootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}

// IsAuthError reports whether err is an authentication-class failure, either
// a classified ProviderError in the chain or a root cause whose message
// carries an authentication marker.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason == ReasonAuth
	}
	return classifyMessage(RootCause(err).Error()) == ReasonAuth
}
