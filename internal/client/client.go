// Package client executes GraphQL requests against a cost-metered API with
// context injection, caching, retries, and usage telemetry.
//
// FILES:
//   - client.go:    Client, options, and the request pipeline
//   - transport.go: HTTP POST and response parsing
//   - observer.go:  Rate-limit and error callbacks
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/storelane/graphmeter/internal/apierrors"
	"github.com/storelane/graphmeter/internal/cache"
	"github.com/storelane/graphmeter/internal/incontext"
	"github.com/storelane/graphmeter/internal/metrics"
	"github.com/storelane/graphmeter/internal/retry"
	"github.com/storelane/graphmeter/internal/usage"
)

// DefaultTokenHeader carries the access token to the upstream API.
const DefaultTokenHeader = "X-Storefront-Access-Token"

// DefaultCacheTTL applies when a request doesn't specify its own.
const DefaultCacheTTL = 5 * time.Minute

// Client performs logical API calls. All collaborators are constructed and
// injected explicitly; nothing here is a process-wide singleton.
type Client struct {
	endpoint  string
	version   string
	transport *transport

	cache      *cache.Cache
	tagger     cache.TagStrategy
	defaultTTL time.Duration

	monitor   *usage.Monitor
	policy    retry.Policy
	callbacks Callbacks
	limits    *limitTracker
	collector *metrics.Collector

	mu         sync.RWMutex
	reqContext *incontext.RequestContext

	// Flat operational counters, exposed via Stats
	requests    atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	retries     atomic.Int64
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.transport.httpClient = hc }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.transport.httpClient.Timeout = timeout }
}

// WithTokenHeader overrides the header carrying the access token.
func WithTokenHeader(name string) ClientOption {
	return func(c *Client) { c.transport.tokenHeader = name }
}

// WithRetryPolicy replaces the process-wide default retry policy.
func WithRetryPolicy(p retry.Policy) ClientOption {
	return func(c *Client) { c.policy = p }
}

// WithCache attaches a response cache. Without one, every request goes to
// the transport.
func WithCache(cc *cache.Cache) ClientOption {
	return func(c *Client) { c.cache = cc }
}

// WithDefaultCacheTTL sets the TTL used when a request doesn't supply one.
func WithDefaultCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) { c.defaultTTL = ttl }
}

// WithTagStrategy replaces the default tag inference.
func WithTagStrategy(t cache.TagStrategy) ClientOption {
	return func(c *Client) { c.tagger = t }
}

// WithUsageMonitor attaches a usage telemetry monitor.
func WithUsageMonitor(m *usage.Monitor) ClientOption {
	return func(c *Client) { c.monitor = m }
}

// WithCallbacks installs the application's observer callbacks.
func WithCallbacks(cb Callbacks) ClientOption {
	return func(c *Client) { c.callbacks = cb }
}

// WithApproachingThreshold sets the used-percentage that triggers the
// approaching-limit callback.
func WithApproachingThreshold(pct float64) ClientOption {
	return func(c *Client) { c.limits = newLimitTracker(pct) }
}

// WithMetrics attaches a Prometheus collector.
func WithMetrics(mc *metrics.Collector) ClientOption {
	return func(c *Client) { c.collector = mc }
}

// WithEndpoint overrides the resolved API URL entirely. Intended for
// development stores behind proxies and for tests.
func WithEndpoint(url string) ClientOption {
	return func(c *Client) {
		c.endpoint = url
		c.transport.endpoint = url
	}
}

// WithRequestContext sets the initial request context.
func WithRequestContext(rc *incontext.RequestContext) ClientOption {
	return func(c *Client) { c.reqContext = rc }
}

// New creates a client for https://<domain>/api/<version>/graphql.json.
func New(domain, version, accessToken string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: fmt.Sprintf("https://%s/api/%s/graphql.json", domain, version),
		version:  version,
		transport: &transport{
			accessToken: accessToken,
			tokenHeader: DefaultTokenHeader,
			httpClient:  &http.Client{Timeout: 30 * time.Second},
		},
		tagger:     cache.NewFieldTagger(),
		defaultTTL: DefaultCacheTTL,
		policy:     retry.DefaultPolicy(),
		limits:     newLimitTracker(DefaultApproachingThreshold),
	}
	c.transport.endpoint = c.endpoint

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the resolved API URL.
func (c *Client) Endpoint() string { return c.endpoint }

// RequestOptions tune one call.
type RequestOptions struct {
	SkipCache bool
	TTL       time.Duration // Zero means the client default
	Tags      []string      // Added to the inferred tags
}

// SetRequestContext swaps the active request context. Cached responses are
// context-dependent, so the endpoint's whole cache scope is invalidated
// rather than risking stale localized data.
func (c *Client) SetRequestContext(rc *incontext.RequestContext) {
	c.mu.Lock()
	c.reqContext = rc
	c.mu.Unlock()

	if c.cache != nil {
		removed := c.cache.InvalidateScope(c.endpoint)
		log.Debug().Int("entries", removed).Msg("request context changed, cache scope invalidated")
	}
}

// RequestContext returns the active request context.
func (c *Client) RequestContext() *incontext.RequestContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reqContext
}

// Request performs one logical API call: inject context, check the cache,
// execute with retry, record telemetry, update the cache, and report
// throttle status.
func (c *Client) Request(ctx context.Context, document string, variables map[string]any, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	c.requests.Add(1)
	start := time.Now()

	rc := c.RequestContext()
	doc := incontext.Inject(document, rc)
	operation := operationName(doc)

	var variablesJSON []byte
	if len(variables) > 0 {
		var err error
		if variablesJSON, err = json.Marshal(variables); err != nil {
			return nil, fmt.Errorf("marshaling variables: %w", err)
		}
	}
	contextJSON, _ := json.Marshal(rc)

	key := cache.Key(c.endpoint, c.version, doc, string(variablesJSON), string(contextJSON))

	if c.cache != nil && !opts.SkipCache {
		if v, ok := c.cache.Get(key); ok {
			c.cacheHits.Add(1)
			if c.collector != nil {
				c.collector.CacheHits.Inc()
			}
			cached := *v.(*Response)
			cached.FromCache = true
			return &cached, nil
		}
		c.cacheMisses.Add(1)
		if c.collector != nil {
			c.collector.CacheMisses.Inc()
		}
	}

	var attempts int64
	resp, err := retry.Do(ctx, c.policy, func(ctx context.Context) (*Response, error) {
		if n := atomic.AddInt64(&attempts, 1); n > 1 {
			c.retries.Add(1)
			if c.collector != nil {
				c.collector.RetriesTotal.Inc()
			}
		}
		return c.transport.do(ctx, doc, variablesJSON)
	})

	if c.collector != nil {
		c.collector.RequestDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		c.observeFailure(err, operation)
		return nil, err
	}

	if resp.HasErrors() {
		// The server produced a definitive answer; never retried, never
		// cached. Only vendor codes worth acting on reach the observer.
		c.observeGraphQLErrors(resp, operation)
		c.countRequest("graphql_error")
		return resp, nil
	}

	c.finishSuccess(resp, key, doc, operation, opts)
	return resp, nil
}

// observeFailure handles a transport-level failure after retries are
// exhausted: telemetry, observers, metrics.
func (c *Client) observeFailure(err error, operation string) {
	category := apierrors.Classify(err)
	log.Warn().
		Str("operation", operation).
		Str("category", string(category)).
		Err(err).
		Msg("request failed")

	c.notifyError(err)
	c.countRequest("error")

	if category == apierrors.CategoryRateLimit {
		var last *usage.ThrottleStatus
		if c.monitor != nil {
			last = c.monitor.CurrentStatus()
			c.monitor.RecordThrottled(last, c.endpoint, operation)
		}
		status := usage.ThrottleStatus{}
		if last != nil {
			status = *last
		}
		c.limits.throttledEvent(status, c.callbacks)
		if c.collector != nil {
			c.collector.ThrottledTotal.Inc()
		}
	}
}

// observeGraphQLErrors notifies the observer for actionable vendor codes
// while staying silent on plain field errors.
func (c *Client) observeGraphQLErrors(resp *Response, operation string) {
	for _, gqlErr := range resp.Errors {
		switch gqlErr.Code {
		case apierrors.CodeAccessDenied:
			c.notifyError(&apierrors.APIError{
				Category: apierrors.CategoryAuthorization,
				Code:     gqlErr.Code,
				Message:  gqlErr.Message,
			})
		case apierrors.CodeThrottled:
			c.notifyError(&apierrors.APIError{
				Category: apierrors.CategoryRateLimit,
				Code:     gqlErr.Code,
				Message:  gqlErr.Message,
			})
			var last *usage.ThrottleStatus
			if c.monitor != nil {
				last = c.monitor.CurrentStatus()
				c.monitor.RecordThrottled(last, c.endpoint, operation)
			}
			status := usage.ThrottleStatus{}
			if last != nil {
				status = *last
			}
			c.limits.throttledEvent(status, c.callbacks)
			if c.collector != nil {
				c.collector.ThrottledTotal.Inc()
			}
		case apierrors.CodeValidationFailed:
			c.notifyError(&apierrors.APIError{
				Category: apierrors.CategoryValidation,
				Code:     gqlErr.Code,
				Message:  gqlErr.Message,
			})
		}
	}
}

// finishSuccess caches the response, records telemetry, and reports the new
// throttle status.
func (c *Client) finishSuccess(resp *Response, key, document, operation string, opts *RequestOptions) {
	c.countRequest("success")

	if c.cache != nil && !opts.SkipCache {
		ttl := opts.TTL
		if ttl <= 0 {
			ttl = c.defaultTTL
		}
		tags := append(c.tagger.Tags(document), opts.Tags...)
		c.cache.Set(key, resp, ttl, tags)
	}

	if resp.Cost != nil {
		if c.monitor != nil {
			c.monitor.Record(*resp.Cost, c.endpoint, operation, true, false)
		}
		c.limits.observe(resp.Cost.ThrottleStatus, c.callbacks)
		if c.collector != nil {
			c.collector.ThrottleAvailable.Set(resp.Cost.ThrottleStatus.CurrentlyAvailable)
			c.collector.ThrottleMaximum.Set(resp.Cost.ThrottleStatus.MaximumAvailable)
			c.collector.QueryCost.Observe(resp.Cost.ActualQueryCost)
		}
	}
}

func (c *Client) countRequest(outcome string) {
	if c.collector != nil {
		c.collector.RequestsTotal.WithLabelValues(outcome).Inc()
	}
}

// Stats returns flat operational counters.
func (c *Client) Stats() map[string]int64 {
	return map[string]int64{
		"requests":     c.requests.Load(),
		"cache_hits":   c.cacheHits.Load(),
		"cache_misses": c.cacheMisses.Load(),
		"retries":      c.retries.Load(),
	}
}

var operationNamePattern = regexp.MustCompile(`^\s*(?:query|mutation)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// operationName extracts the operation name for telemetry, or "" for
// anonymous documents.
func operationName(document string) string {
	if m := operationNamePattern.FindStringSubmatch(document); m != nil {
		return m[1]
	}
	return ""
}
