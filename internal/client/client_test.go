package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storelane/graphmeter/internal/apierrors"
	"github.com/storelane/graphmeter/internal/cache"
	"github.com/storelane/graphmeter/internal/incontext"
	"github.com/storelane/graphmeter/internal/retry"
	"github.com/storelane/graphmeter/internal/usage"
)

const successBody = `{
	"data": {"shop": {"name": "Demo"}},
	"extensions": {"cost": {
		"requestedQueryCost": 12,
		"actualQueryCost": 10,
		"throttleStatus": {"maximumAvailable": 1000, "currentlyAvailable": 990, "restoreRate": 50}
	}}
}`

func fastPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.InitialDelay = time.Millisecond
	p.MaxDelay = 5 * time.Millisecond
	return p
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]ClientOption{
		WithEndpoint(srv.URL),
		WithRetryPolicy(fastPolicy()),
	}, opts...)
	return New("shop.example", "2025-07", "test-token", opts...), srv
}

func TestRequest_SuccessParsesCost(t *testing.T) {
	monitor := usage.NewMonitor(10)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get(DefaultTokenHeader))
		w.Write([]byte(successBody))
	}, WithUsageMonitor(monitor))

	resp, err := c.Request(context.Background(), `query Shop { shop { name } }`, nil, nil)
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	assert.JSONEq(t, `{"shop": {"name": "Demo"}}`, string(resp.Data))
	require.NotNil(t, resp.Cost)
	assert.InDelta(t, 10.0, resp.Cost.ActualQueryCost, 0.0001)

	require.NotNil(t, monitor.CurrentStatus())
	assert.InDelta(t, 990.0, monitor.CurrentStatus().CurrentlyAvailable, 0.0001)
}

func TestRequest_InjectsContextDirective(t *testing.T) {
	var seenQuery atomic.Value
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seenQuery.Store(string(body))
		w.Write([]byte(successBody))
	}, WithRequestContext(&incontext.RequestContext{Country: "US"}))

	_, err := c.Request(context.Background(), `query Shop { shop { name } }`, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, seenQuery.Load().(string), `@inContext(country: US)`)
}

func TestRequest_CacheHitSkipsTransport(t *testing.T) {
	var calls atomic.Int64
	store := cache.New(0)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(successBody))
	}, WithCache(store))

	first, err := c.Request(context.Background(), `query Shop { shop { name } }`, nil, nil)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := c.Request(context.Background(), `query Shop { shop { name } }`, nil, nil)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.JSONEq(t, string(first.Data), string(second.Data))

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, int64(1), c.Stats()["cache_hits"])
}

func TestRequest_SkipCacheBypassesBothWays(t *testing.T) {
	var calls atomic.Int64
	store := cache.New(0)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(successBody))
	}, WithCache(store))

	opts := &RequestOptions{SkipCache: true}
	_, err := c.Request(context.Background(), `query Shop { shop { name } }`, nil, opts)
	require.NoError(t, err)
	_, err = c.Request(context.Background(), `query Shop { shop { name } }`, nil, opts)
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls.Load())
	assert.Zero(t, store.Stats().Size)
}

func TestRequest_CacheExpiry(t *testing.T) {
	var calls atomic.Int64
	store := cache.New(0)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(successBody))
	}, WithCache(store), WithDefaultCacheTTL(10*time.Millisecond))

	_, err := c.Request(context.Background(), `query Shop { shop { name } }`, nil, nil)
	require.NoError(t, err)

	time.Sleep(15 * time.Millisecond)

	resp, err := c.Request(context.Background(), `query Shop { shop { name } }`, nil, nil)
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	assert.Equal(t, int64(2), calls.Load())
}

func TestRequest_RetriesTransientServerErrors(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(successBody))
	})

	resp, err := c.Request(context.Background(), `query Shop { shop { name } }`, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, resp.Data)
	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, int64(2), c.Stats()["retries"])
}

func TestRequest_GraphQLErrorsAreNotRetriedOrCached(t *testing.T) {
	var calls atomic.Int64
	store := cache.New(0)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"errors": [{"message": "field unavailable", "extensions": {"code": "FIELD_ERROR"}}]}`))
	}, WithCache(store))

	resp, err := c.Request(context.Background(), `query Shop { shop { name } }`, nil, nil)
	require.NoError(t, err)
	require.True(t, resp.HasErrors())
	assert.Equal(t, "field unavailable", resp.Errors[0].Message)

	// A definitive server answer: one transport call, nothing cached.
	assert.Equal(t, int64(1), calls.Load())
	assert.Zero(t, store.Stats().Size)
}

func TestRequest_ObserverFiresOnlyForActionableCodes(t *testing.T) {
	var observed []error
	body := `{"errors": [
		{"message": "plain field error"},
		{"message": "denied", "extensions": {"code": "ACCESS_DENIED"}}
	]}`
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}, WithCallbacks(Callbacks{OnError: func(err error) { observed = append(observed, err) }}))

	_, err := c.Request(context.Background(), `query Shop { shop { name } }`, nil, nil)
	require.NoError(t, err)

	// The generic field error stays silent; only ACCESS_DENIED surfaces.
	require.Len(t, observed, 1)
	assert.Equal(t, apierrors.CategoryAuthorization, apierrors.Classify(observed[0]))
}

func TestRequest_ThrottledCodeRecordsTelemetry(t *testing.T) {
	monitor := usage.NewMonitor(10)
	var throttledEvents atomic.Int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors": [{"message": "throttled", "extensions": {"code": "THROTTLED"}}]}`))
	},
		WithUsageMonitor(monitor),
		WithCallbacks(Callbacks{
			OnThrottled: func(usage.ThrottleStatus) { throttledEvents.Add(1) },
			OnError:     func(error) {},
		}))

	for i := 0; i < 3; i++ {
		_, err := c.Request(context.Background(), `query Shop { shop { name } }`, nil, &RequestOptions{SkipCache: true})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, monitor.Summary().ThrottledRequests)
	// Edge-triggered: three throttled responses, one callback.
	assert.Equal(t, int64(1), throttledEvents.Load())
}

func TestRequest_SecurityRejectionIsTypedAndFinal(t *testing.T) {
	var calls atomic.Int64
	var observed atomic.Int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(StatusSecurityRejection)
	}, WithCallbacks(Callbacks{OnError: func(error) { observed.Add(1) }}))

	_, err := c.Request(context.Background(), `query Shop { shop { name } }`, nil, nil)
	require.Error(t, err)

	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierrors.CodeSecurityRejection, apiErr.Code)
	assert.Equal(t, int64(1), calls.Load(), "security rejections are not retryable")
	assert.Equal(t, int64(1), observed.Load())
}

func TestRequest_AuthFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid access token", http.StatusUnauthorized)
	})

	_, err := c.Request(context.Background(), `query Shop { shop { name } }`, nil, nil)
	require.Error(t, err)
	assert.Equal(t, apierrors.CategoryAuthentication, apierrors.Classify(err))
	assert.Equal(t, int64(1), calls.Load())
}

func TestRequest_ApproachingCallbackFiresOncePerCrossing(t *testing.T) {
	var approaching atomic.Int64
	nearLimit := `{
		"data": {"shop": {"name": "Demo"}},
		"extensions": {"cost": {
			"requestedQueryCost": 12, "actualQueryCost": 10,
			"throttleStatus": {"maximumAvailable": 1000, "currentlyAvailable": 100, "restoreRate": 50}
		}}
	}`
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(nearLimit))
	}, WithCallbacks(Callbacks{
		OnRateLimitApproaching: func(usage.ThrottleStatus) { approaching.Add(1) },
	}))

	for i := 0; i < 3; i++ {
		_, err := c.Request(context.Background(), `query Shop { shop { name } }`, nil, &RequestOptions{SkipCache: true})
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), approaching.Load())
}

func TestSetRequestContext_InvalidatesCacheScope(t *testing.T) {
	var calls atomic.Int64
	store := cache.New(0)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(successBody))
	}, WithCache(store))

	_, err := c.Request(context.Background(), `query Shop { shop { name } }`, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, store.Stats().Size)

	c.SetRequestContext(&incontext.RequestContext{Country: "CA"})
	assert.Zero(t, store.Stats().Size)

	// The next call misses and goes back to the transport.
	_, err = c.Request(context.Background(), `query Shop { shop { name } }`, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestRequest_CancellationPropagates(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(successBody))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Request(ctx, `query Shop { shop { name } }`, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOperationName(t *testing.T) {
	assert.Equal(t, "Products", operationName(`query Products { products { id } }`))
	assert.Equal(t, "CartCreate", operationName(`mutation CartCreate { cartCreate { cart { id } } }`))
	assert.Equal(t, "", operationName(`{ shop { name } }`))
}
