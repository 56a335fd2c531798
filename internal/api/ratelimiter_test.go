package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLimiter struct {
	allow bool
}

func (s *staticLimiter) Allow() bool {
	return s.allow
}

func TestLimitAdminRejectsWithRetryAfter(t *testing.T) {
	h := limitAdmin(&staticLimiter{allow: false}, func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run when limited")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/config", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "Too many admin requests")
}

func TestLimitAdminPassesThrough(t *testing.T) {
	var called bool
	h := limitAdmin(&staticLimiter{allow: true}, func(http.ResponseWriter, *http.Request) {
		called = true
	})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/admin/config", nil))
	assert.True(t, called)

	called = false
	limitAdmin(nil, func(http.ResponseWriter, *http.Request) {
		called = true
	}).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/admin/config", nil))
	assert.True(t, called)
}

func TestTokenBucketRetryAfter(t *testing.T) {
	slow, ok := newTokenBucketLimiter(0.25, 1).(*adminLimiter)
	require.True(t, ok)
	assert.Equal(t, 4*time.Second, slow.retryAfter())

	fast, ok := newTokenBucketLimiter(100, 5).(*adminLimiter)
	require.True(t, ok)
	assert.Equal(t, time.Second, fast.retryAfter())

	defaults := newTokenBucketLimiter(0, 0)
	assert.True(t, defaults.Allow())
	assert.False(t, defaults.Allow())
}
