package apierrors

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Classify maps an arbitrary failure into exactly one Category.
// It is pure and total: it never fails and always returns a category.
//
// Precedence:
//  1. An *APIError with an explicit category is returned unchanged.
//  2. Transport-level signals (timeouts, refused/reset connections).
//  3. HTTP status code, when one is attached.
//  4. Message text heuristics.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Category != "" {
		return apiErr.Category
	}

	if isNetworkError(err) {
		return CategoryNetwork
	}

	status := 0
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	text := strings.ToLower(err.Error())

	switch {
	case status == 401 || containsAny(text, "unauthorized", "authentication", "invalid access token", "invalid api key"):
		return CategoryAuthentication
	case status == 403 || containsAny(text, "forbidden", "permission", "not allowed"):
		return CategoryAuthorization
	case status == 400 || containsAny(text, "validation", "invalid input", "bad request"):
		return CategoryValidation
	case status == 429 || containsAny(text, "rate limit", "throttled", "too many requests"):
		return CategoryRateLimit
	case status >= 500 || containsAny(text, "server error", "internal error", "bad gateway", "service unavailable"):
		return CategoryServer
	case status >= 400:
		return CategoryClient
	default:
		return CategoryUnknown
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	text := strings.ToLower(err.Error())
	return containsAny(text, "connection refused", "connection reset", "no such host", "network is unreachable", "timeout", "timed out", "broken pipe", "eof")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
