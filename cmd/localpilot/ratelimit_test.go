package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/localpilot/types"
)

func TestRateLimiter_PerIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimiter(ctx, 1, 2, zap.NewNop())(okHandler)

	do := func(addr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1001").Code)
	limited := do("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, string(types.ErrRateLimited), decodeError(t, limited).Code)

	assert.Equal(t, http.StatusOK, do("10.0.0.2:1000").Code, "other clients keep their own budget")
}

func TestRateLimiter_RetryAfterAndDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limited := RateLimiter(ctx, 1, 1, zap.NewNop())(okHandler)
	limited.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	w := httptest.NewRecorder()
	limited.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	open := RateLimiter(ctx, 0, 0, zap.NewNop())(okHandler)
	for range 20 {
		w := httptest.NewRecorder()
		open.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestIPLimiter_Sweep(t *testing.T) {
	l := newIPLimiter(10, 5)
	now := time.Now()
	assert.True(t, l.allow("10.0.0.1", now.Add(-10*time.Minute)))
	assert.True(t, l.allow("10.0.0.2", now))

	assert.Equal(t, 1, l.sweep(now, limiterIdleAfter))
	assert.Equal(t, 0, l.sweep(now.Add(time.Hour), limiterIdleAfter))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "[::1]:52100"
	assert.Equal(t, "::1", clientIP(r))
	r.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientIP(r))
}
