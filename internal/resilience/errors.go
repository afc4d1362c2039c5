// Package resilience classifies generation failures and guards generation
// services with circuit breakers.
package resilience

import (
	"fmt"
	"net/http"
)

// Kind is an entry of the error taxonomy.
type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindServiceAuth        Kind = "GENERATION_SERVICE_AUTH"
	KindServiceRateLimit   Kind = "GENERATION_SERVICE_RATE_LIMIT"
	KindServiceQuota       Kind = "GENERATION_SERVICE_QUOTA"
	KindServiceUnavailable Kind = "GENERATION_SERVICE_UNAVAILABLE"
	KindNetwork            Kind = "NETWORK"
	KindDelegate           Kind = "DELEGATE_ERROR"
)

// Severity grades how serious an error is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

type taxonomyEntry struct {
	severity   Severity
	retryable  bool
	statusCode int
}

// taxonomy holds the defaults for each kind. DELEGATE_ERROR severity is
// derived from the message instead.
var taxonomy = map[Kind]taxonomyEntry{
	KindValidation:         {SeverityLow, false, http.StatusBadRequest},
	KindServiceAuth:        {SeverityHigh, false, http.StatusUnauthorized},
	KindServiceRateLimit:   {SeverityMedium, true, http.StatusTooManyRequests},
	KindServiceQuota:       {SeverityHigh, false, http.StatusPaymentRequired},
	KindServiceUnavailable: {SeverityHigh, true, http.StatusServiceUnavailable},
	KindNetwork:            {SeverityMedium, true, http.StatusBadGateway},
	KindDelegate:           {SeverityMedium, false, http.StatusInternalServerError},
}

var hints = map[Kind][]string{
	KindServiceAuth: {
		"Check that the API key for the configured provider is set and has not been revoked.",
		"Set IDEAFORGE_LLM_APIKEY or the provider's *_API_KEY environment variable.",
		"Make sure the key belongs to the provider selected in llm.provider.",
	},
	KindServiceRateLimit: {
		"The provider is throttling requests; wait a moment and advance the project again.",
		"Lower the number of concurrent projects or configure a fallback provider.",
	},
	KindServiceQuota: {
		"The account has exhausted its quota or credits; check billing with the provider.",
		"Switch llm.provider to another provider or to a local Ollama model.",
	},
	KindServiceUnavailable: {
		"The generation service is failing or the circuit breaker is open; retry after the cool-down.",
		"Check the provider status page, or for Ollama that `ollama serve` is running.",
		"Configure llm.fallback to keep working while the primary provider is down.",
	},
	KindNetwork: {
		"Check network connectivity and any proxy settings.",
		"For Ollama, verify llm.baseURL points at a reachable server.",
	},
}

// Error is a classified failure.
type Error struct {
	Kind       Kind              `json:"kind"`
	Severity   Severity          `json:"severity"`
	Retryable  bool              `json:"retryable"`
	StatusCode int               `json:"statusCode"`
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Hints      []string          `json:"hints,omitempty"`
	Cause      error             `json:"-"`
}

// NewError builds an Error with the taxonomy defaults for kind.
func NewError(kind Kind, message string, cause error) *Error {
	entry, ok := taxonomy[kind]
	if !ok {
		kind = KindDelegate
		entry = taxonomy[KindDelegate]
	}
	e := &Error{
		Kind:       kind,
		Severity:   entry.severity,
		Retryable:  entry.retryable,
		StatusCode: entry.statusCode,
		Message:    message,
		Cause:      cause,
	}
	if kind == KindDelegate {
		e.Severity = delegateSeverity(message)
	}
	if h := hints[kind]; len(h) > 0 {
		e.Hints = append([]string(nil), h...)
	}
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithMetadata returns e with key set in its metadata.
func (e *Error) WithMetadata(key, value string) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// IsServiceFailure reports whether the error should count against a
// generation service's breaker.
func (e *Error) IsServiceFailure() bool {
	switch e.Kind {
	case KindServiceAuth, KindServiceRateLimit, KindServiceQuota, KindServiceUnavailable, KindNetwork:
		return true
	}
	return false
}
