package chat

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies why a model call failed.
type Kind string

const (
	KindAuth        Kind = "auth"
	KindRateLimited Kind = "rate_limited"
	KindContent     Kind = "content"
	KindConnection  Kind = "connection"
	KindUnavailable Kind = "unavailable"
)

// ServiceError is returned by every backend when the model API cannot produce
// a reply.
type ServiceError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// UserMessage is the text shown in the page when the call fails.
func (e *ServiceError) UserMessage() string {
	switch e.Kind {
	case KindAuth:
		return "The AI service rejected our credentials. Check the API key configuration."
	case KindRateLimited:
		return "The AI service is busy or over quota. Please try again in a moment."
	case KindContent:
		return "The AI service refused to process this image or message."
	case KindConnection:
		return "Could not reach the AI service. Please try again."
	default:
		return "The AI service returned an error. Please try again."
	}
}

// IsServiceError reports whether err wraps a *ServiceError.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// NewServiceError wraps err, classifying it by HTTP status when one is known
// (status > 0) and by message otherwise. A nil err yields nil.
func NewServiceError(op string, status int, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	kind := KindFromStatus(status)
	if kind == "" {
		kind = KindFromMessage(err.Error())
	}
	return &ServiceError{Op: op, Kind: kind, Err: err}
}

// KindFromStatus maps an HTTP status to a Kind, or "" when status is not an
// error status.
func KindFromStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 400:
		return KindUnavailable
	default:
		return ""
	}
}

// KindFromMessage guesses a Kind from an SDK error string. Only explicit
// safety signals count as content refusals; a malformed request is reported as
// unavailable.
func KindFromMessage(msg string) Kind {
	s := strings.ToLower(msg)
	switch {
	case containsAny(s, "401", "403", "unauthorized", "api key", "authentication", "permission", "forbidden"):
		return KindAuth
	case containsAny(s, "429", "rate limit", "rate_limit", "quota", "resource exhausted", "too many requests"):
		return KindRateLimited
	case containsAny(s, "safety", "blocked", "prohibited_content", "refusal"):
		return KindContent
	case containsAny(s, "connection", "eof", "timeout", "deadline", "dial", "refused", "no such host"):
		return KindConnection
	default:
		return KindUnavailable
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
