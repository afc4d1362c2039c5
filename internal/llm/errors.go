package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/genai"
)

// Code is a structured failure code reported by a generation service.
type Code string

const (
	CodeAuth           Code = "auth"
	CodeRateLimit      Code = "rate_limit"
	CodeQuota          Code = "quota"
	CodeUnavailable    Code = "unavailable"
	CodeNetwork        Code = "network"
	CodeInvalidRequest Code = "invalid_request"
)

// ServiceError is a generation-service failure with a structured code.
type ServiceError struct {
	Service    string
	Code       Code
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Service, e.Code, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Code, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// CodeForStatus maps an HTTP status code to a Code. The second value is false
// when the status carries no classification.
func CodeForStatus(status int) (Code, bool) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeAuth, true
	case status == http.StatusTooManyRequests:
		return CodeRateLimit, true
	case status == http.StatusPaymentRequired:
		return CodeQuota, true
	case status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusUnprocessableEntity:
		return CodeInvalidRequest, true
	case status >= 500:
		return CodeUnavailable, true
	}
	return "", false
}

// annotate attaches a structured code to err when the provider error carries one.
// Errors that cannot be classified are returned unchanged.
func annotate(service string, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := CodeForStatus(apiErr.Code); ok {
			return &ServiceError{Service: service, Code: code, StatusCode: apiErr.Code, Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ServiceError{Service: service, Code: CodeNetwork, Err: err}
	}
	return err
}
