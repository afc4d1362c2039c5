package resilience

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/josephgoksu/IdeaForge/internal/llm"
)

var codeKinds = map[llm.Code]Kind{
	llm.CodeAuth:           KindServiceAuth,
	llm.CodeRateLimit:      KindServiceRateLimit,
	llm.CodeQuota:          KindServiceQuota,
	llm.CodeUnavailable:    KindServiceUnavailable,
	llm.CodeNetwork:        KindNetwork,
	llm.CodeInvalidRequest: KindValidation,
}

// Classify maps err to a taxonomy entry. Structured information is used
// first: an existing *Error, an llm.ServiceError code, context errors and
// net.Error. Anything else falls through to message matching.
// meta is copied into the result's metadata.
func Classify(err error, meta map[string]string) *Error {
	if err == nil {
		return nil
	}
	e := classify(err)
	for k, v := range meta {
		e.WithMetadata(k, v)
	}
	return e
}

func classify(err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		// Copy so callers can attach metadata without sharing maps.
		out := *classified
		out.Metadata = nil
		for k, v := range classified.Metadata {
			out.WithMetadata(k, v)
		}
		return &out
	}

	var se *llm.ServiceError
	if errors.As(err, &se) {
		if kind, ok := codeKinds[se.Code]; ok {
			e := NewError(kind, err.Error(), err).WithMetadata("service", se.Service)
			if se.StatusCode > 0 {
				e.StatusCode = se.StatusCode
			}
			return e
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindServiceUnavailable, "generation timed out: "+err.Error(), err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(KindDelegate, "canceled: "+err.Error(), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewError(KindNetwork, err.Error(), err)
	}

	return classifyMessage(err)
}

// classifyMessage is a best-effort fallback for errors that carry no
// structured code. It only inspects the message text.
func classifyMessage(err error) *Error {
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case containsAny(lower, "api key", "apikey", "unauthorized", "authentication", "401", "permission denied", "invalid x-api-key"):
		return NewError(KindServiceAuth, msg, err)
	case containsAny(lower, "quota", "insufficient_quota", "billing", "credit balance"):
		return NewError(KindServiceQuota, msg, err)
	case containsAny(lower, "rate limit", "rate_limit", "too many requests", "429"):
		return NewError(KindServiceRateLimit, msg, err)
	case containsAny(lower, "connection refused", "no such host", "connection reset", "network is unreachable", "i/o timeout", "econnrefused"):
		return NewError(KindNetwork, msg, err)
	case containsAny(lower, "service unavailable", "overloaded", "503", "502", "bad gateway", "circuit open"):
		return NewError(KindServiceUnavailable, msg, err)
	case containsAny(lower, "validation", "invalid input", "malformed"):
		return NewError(KindValidation, msg, err)
	}
	return NewError(KindDelegate, msg, err)
}

// delegateSeverity derives DELEGATE_ERROR severity from the message.
func delegateSeverity(message string) Severity {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "critical", "fatal"):
		return SeverityCritical
	case containsAny(lower, "llm", "openai", "anthropic", "claude", "gemini", "ollama", "generation service", "model"):
		return SeverityHigh
	case containsAny(lower, "validation", "invalid"):
		return SeverityLow
	}
	return SeverityMedium
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
