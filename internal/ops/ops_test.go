package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-picks/internal/breaker"
	"github.com/wonny/aegis-picks/internal/ratelimit"
	"github.com/wonny/aegis-picks/internal/scheduler"
	"github.com/wonny/aegis-picks/pkg/kvstore"
	"github.com/wonny/aegis-picks/pkg/logger"
	"github.com/wonny/aegis-picks/pkg/metrics"
)

type fakeJobs struct{}

func (fakeJobs) GetJobStats() map[string]scheduler.JobStats {
	return map[string]scheduler.JobStats{
		"daily_recommendation": {JobName: "daily_recommendation", Schedule: "0 30 16 * * 1-5", TotalRuns: 2, SuccessCount: 2, SuccessRate: 1},
	}
}

type fakeCache struct {
	date  time.Time
	all   bool
	err   error
	count int
}

func (f *fakeCache) ClearForDate(_ context.Context, d time.Time) (int, error) {
	f.date = d
	return f.count, f.err
}

func (f *fakeCache) Clear(context.Context) (int, error) {
	f.all = true
	return f.count, f.err
}

type fixture struct {
	router  http.Handler
	breaker *breaker.Breaker
	limiter *ratelimit.Tiered
	global  *ratelimit.Global
	cache   *fakeCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := metrics.New()
	brk := breaker.New(kvstore.NewMemory(), breaker.Settings{Threshold: 2, Timeout: time.Minute}, logger.Nop(), breaker.WithMetrics(m))
	lim := ratelimit.NewTiered(nil, ratelimit.TieredConfig{
		Table:         ratelimit.DefaultTierTable(),
		AccountPoints: 2000,
		SafetyMargin:  0.8,
	}, logger.Nop())
	glob := ratelimit.NewGlobal(nil, "test", 10, time.Minute, logger.Nop())
	cache := &fakeCache{count: 7}

	h := NewHandler(logger.Nop(),
		WithBreaker(brk, []string{"daily", "fund_nav"}),
		WithLimiters(lim, glob),
		WithJobs(fakeJobs{}),
		WithCache(cache),
	)
	return &fixture{
		router:  NewRouter(h, m.Registry(), logger.Nop()),
		breaker: brk,
		limiter: lim,
		global:  glob,
		cache:   cache,
	}
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestBreakerEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.breaker.RecordFailure(ctx, "daily")
	f.breaker.RecordFailure(ctx, "daily")

	rec := f.do(t, http.MethodGet, "/ops/breakers/daily")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[breaker.Status](t, rec)
	assert.Equal(t, breaker.StateOpen, st.State)
	assert.Equal(t, 2, st.FailureCount)
	assert.NotNil(t, st.RetryAt)

	rec = f.do(t, http.MethodGet, "/ops/breakers")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]breaker.Status](t, rec)
	require.Len(t, all, 2)
	assert.Equal(t, breaker.StateClosed, all[1].State)

	rec = f.do(t, http.MethodPost, "/ops/breakers/daily/reset")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.breaker.IsOpen(ctx, "daily"))

	rec = f.do(t, http.MethodGet, "/ops/breakers/daily/reset")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLimiterEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.limiter.Acquire(ctx, "fund_nav", 0))
	}
	require.True(t, f.global.Acquire(ctx))

	rec := f.do(t, http.MethodGet, "/ops/limiters/fund_nav")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[ratelimit.Stats](t, rec)
	assert.Equal(t, 80, st.Capacity, "min(200, 100) * 0.8")
	assert.Equal(t, 3, st.InWindow)
	assert.Equal(t, 77, st.Remaining)
	assert.Equal(t, int64(3), st.Granted)

	rec = f.do(t, http.MethodGet, "/ops/limiters/_global")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"remaining": 9}, decode[map[string]int](t, rec))
}

func TestJobsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/ops/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]scheduler.JobStats](t, rec)
	assert.Equal(t, 2, stats["daily_recommendation"].TotalRuns)
}

func TestClearCacheEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		err      error
		wantCode int
		wantAll  bool
		wantDate time.Time
	}{
		{"one date", "/ops/cache?date=2026-10-16", nil, http.StatusOK, false, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)},
		{"everything", "/ops/cache", nil, http.StatusOK, true, time.Time{}},
		{"bad date", "/ops/cache?date=16.10.2026", nil, http.StatusBadRequest, false, time.Time{}},
		{"kv tier failure", "/ops/cache", errors.New("redis down"), http.StatusAccepted, true, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.cache.err = tt.err

			rec := f.do(t, http.MethodDelete, tt.path)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantAll, f.cache.all)
			assert.Equal(t, tt.wantDate, f.cache.date)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.breaker.RecordFailure(ctx, "fund_nav")
	f.breaker.RecordFailure(ctx, "fund_nav")

	rec := f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `picks_breaker_state{dep="fund_nav"} 2`)
}

func TestUnconfiguredHandler(t *testing.T) {
	router := NewRouter(NewHandler(nil), nil, nil)

	for _, path := range []string{"/ops/breakers/daily", "/ops/limiters/daily", "/ops/limiters/_global", "/ops/jobs"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_MethodAndPathErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/ops/breakers/daily/reset", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/ops/breakers/daily", http.StatusMethodNotAllowed},
		{http.MethodGet, "/ops/cache", http.StatusMethodNotAllowed},
		{http.MethodPost, "/ops/jobs", http.StatusMethodNotAllowed},
		{http.MethodGet, "/ops/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}

	// 등록된 메서드는 그대로 동작
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/ops/jobs").Code)
}
