package apierrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_ExplicitCategoryWins(t *testing.T) {
	err := &APIError{Category: CategoryRateLimit, StatusCode: 500, Message: "server exploded"}
	// Even though status and text point at SERVER, the explicit category
	// is authoritative.
	assert.Equal(t, CategoryRateLimit, Classify(err))
}

func TestClassify_WrappedExplicitCategory(t *testing.T) {
	inner := &APIError{Category: CategoryAuthentication, Message: "bad token"}
	wrapped := fmt.Errorf("executing request: %w", inner)
	assert.Equal(t, CategoryAuthentication, Classify(wrapped))
}

func TestClassify_NetworkSignals(t *testing.T) {
	assert.Equal(t, CategoryNetwork, Classify(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.Equal(t, CategoryNetwork, Classify(context.DeadlineExceeded))
	assert.Equal(t, CategoryNetwork, Classify(errors.New("dial tcp: connection reset by peer")))
}

func TestClassify_ByStatusCode(t *testing.T) {
	cases := []struct {
		status int
		want   Category
	}{
		{401, CategoryAuthentication},
		{403, CategoryAuthorization},
		{400, CategoryValidation},
		{429, CategoryRateLimit},
		{500, CategoryServer},
		{502, CategoryServer},
		{404, CategoryClient},
		{418, CategoryClient},
	}
	for _, tc := range cases {
		err := &APIError{StatusCode: tc.status, Message: "upstream replied"}
		assert.Equal(t, tc.want, Classify(err), "status %d", tc.status)
	}
}

func TestClassify_ByMessageText(t *testing.T) {
	cases := []struct {
		text string
		want Category
	}{
		{"request was throttled, retry later", CategoryRateLimit},
		{"rate limit exceeded", CategoryRateLimit},
		{"unauthorized: invalid access token", CategoryAuthentication},
		{"forbidden: missing scope", CategoryAuthorization},
		{"validation failed on field 'first'", CategoryValidation},
		{"internal error", CategoryServer},
		{"something inexplicable", CategoryUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(errors.New(tc.text)), "text %q", tc.text)
	}
}

func TestClassify_TotalOnNil(t *testing.T) {
	assert.Equal(t, CategoryUnknown, Classify(nil))
}

func TestAPIError_IsMatchesByCategory(t *testing.T) {
	err := &APIError{Category: CategoryServer, StatusCode: 503}
	assert.True(t, errors.Is(err, &APIError{Category: CategoryServer}))
	assert.False(t, errors.Is(err, &APIError{Category: CategoryClient}))
}

func TestAPIError_UnwrapPreservesCause(t *testing.T) {
	cause := errors.New("tcp broke")
	err := &APIError{Category: CategoryNetwork, Cause: cause}
	assert.ErrorIs(t, err, cause)
}

func TestNewSecurityRejection(t *testing.T) {
	err := NewSecurityRejection(430)
	assert.Equal(t, CodeSecurityRejection, err.Code)
	assert.Equal(t, CategoryClient, Classify(err))
}
