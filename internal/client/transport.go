// Package client - transport.go speaks HTTP to the GraphQL endpoint.
//
// DESIGN: The transport knows nothing about retries or caching. It performs
// one POST, maps transport-level failures to typed errors, and parses the
// response body (data, errors, extensions.cost) without unmarshaling the
// whole document.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/storelane/graphmeter/internal/apierrors"
	"github.com/storelane/graphmeter/internal/usage"
)

// StatusSecurityRejection is the distinguished status the upstream returns
// when its security screening rejects a request outright.
const StatusSecurityRejection = 430

const userAgent = "graphmeter/1.0"

// maxErrorBodyLen limits upstream error bodies carried in error messages.
const maxErrorBodyLen = 500

// GraphQLError is one entry of a response's errors array.
type GraphQLError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"` // extensions.code
}

// Response is the outcome of one logical API call.
type Response struct {
	Data      json.RawMessage       `json:"data,omitempty"`
	Errors    []GraphQLError        `json:"errors,omitempty"`
	Cost      *usage.CostExtensions `json:"cost,omitempty"`
	FromCache bool                  `json:"from_cache"`
}

// HasErrors reports whether the server returned GraphQL-level errors.
func (r *Response) HasErrors() bool {
	return len(r.Errors) > 0
}

type transport struct {
	endpoint    string
	accessToken string
	tokenHeader string
	httpClient  *http.Client
}

// do executes a single POST of {query, variables} and parses the reply.
// variablesJSON may be nil for queries without variables.
func (t *transport) do(ctx context.Context, document string, variablesJSON []byte) (*Response, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "query", document)
	if err != nil {
		return nil, fmt.Errorf("building request body: %w", err)
	}
	if len(variablesJSON) > 0 {
		if body, err = sjson.SetRawBytes(body, "variables", variablesJSON); err != nil {
			return nil, fmt.Errorf("building request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if t.accessToken != "" {
		req.Header.Set(t.tokenHeader, t.accessToken)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, &apierrors.APIError{
			Category: apierrors.CategoryNetwork,
			Message:  "request failed",
			Cause:    err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apierrors.APIError{
			Category: apierrors.CategoryNetwork,
			Message:  "reading response",
			Cause:    err,
		}
	}

	if resp.StatusCode == StatusSecurityRejection {
		return nil, apierrors.NewSecurityRejection(resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &apierrors.APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, truncate(respBody, maxErrorBodyLen)),
		}
		apiErr.Category = apierrors.Classify(apiErr)
		return nil, apiErr
	}

	return parseResponse(respBody), nil
}

// parseResponse extracts data, errors, and cost metadata from a 200 reply.
func parseResponse(body []byte) *Response {
	parsed := gjson.ParseBytes(body)
	out := &Response{}

	if data := parsed.Get("data"); data.Exists() {
		out.Data = json.RawMessage(data.Raw)
	}

	for _, e := range parsed.Get("errors").Array() {
		out.Errors = append(out.Errors, GraphQLError{
			Message: e.Get("message").String(),
			Code:    e.Get("extensions.code").String(),
		})
	}

	if cost := parsed.Get("extensions.cost"); cost.Exists() {
		out.Cost = &usage.CostExtensions{
			RequestedQueryCost: cost.Get("requestedQueryCost").Float(),
			ActualQueryCost:    cost.Get("actualQueryCost").Float(),
			ThrottleStatus: usage.ThrottleStatus{
				MaximumAvailable:   cost.Get("throttleStatus.maximumAvailable").Float(),
				CurrentlyAvailable: cost.Get("throttleStatus.currentlyAvailable").Float(),
				RestoreRate:        cost.Get("throttleStatus.restoreRate").Float(),
			},
		}
	}

	return out
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
