package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkadyev/reqguard/internal/dispatch"
	"github.com/arkadyev/reqguard/internal/ratelimit"
	"github.com/arkadyev/reqguard/internal/ratelimit/store"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
}

func newTestDispatcher(t *testing.T, limit int, window time.Duration) *dispatch.Dispatcher {
	t.Helper()
	ws := store.NewWindowStore(window, 2*window)
	t.Cleanup(ws.Close)
	fallback := &dispatch.Rule{
		Name:    "default",
		Kind:    dispatch.KindGlobal,
		Limiter: ratelimit.NewWindowLimiter(ws, limit, window),
		KeyFunc: ratelimit.IPKeyFunc,
	}
	return dispatch.NewDispatcher(fallback)
}

func doRequest(t *testing.T, handler http.Handler, ip string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest("GET", "/data", nil)
	r.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestAdmission_AllowsUnderLimit(t *testing.T) {
	t.Parallel()

	handler := Admission(newTestDispatcher(t, 3, time.Minute))(okHandler())

	for i := 0; i < 3; i++ {
		w := doRequest(t, handler, "203.0.113.7")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", w.Body.String())
	}
}

func TestAdmission_RejectsOverLimit(t *testing.T) {
	t.Parallel()

	handler := Admission(newTestDispatcher(t, 1, time.Minute))(okHandler())

	doRequest(t, handler, "203.0.113.7")
	w := doRequest(t, handler, "203.0.113.7")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, ErrRateLimitExceeded, w.Body.String())
	assert.Equal(t, ContentTypeJSON, w.Header().Get(HeaderContentType))

	assert.Equal(t, "1", w.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "0", w.Header().Get(HeaderRateLimitRemaining))

	// Reset and Retry-After round up so clients never retry early.
	assert.NotEmpty(t, w.Header().Get(HeaderRateLimitReset))
	retryAfter := w.Header().Get(HeaderRetryAfter)
	require.NotEmpty(t, retryAfter)
	assert.NotEqual(t, "0", retryAfter)
}

func TestAdmission_OtherClientsUnaffected(t *testing.T) {
	t.Parallel()

	handler := Admission(newTestDispatcher(t, 1, time.Minute))(okHandler())

	doRequest(t, handler, "203.0.113.7")
	w := doRequest(t, handler, "203.0.113.7")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	w = doRequest(t, handler, "203.0.113.99")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdmission_CustomRejectionHandler(t *testing.T) {
	t.Parallel()

	handler := Admission(newTestDispatcher(t, 1, time.Minute),
		WithRejectionHandler(func(w http.ResponseWriter, _ *http.Request, rej *dispatch.Rejection) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":"slow down","rule":"`+rej.Rule+`"}`)
		}),
	)(okHandler())

	doRequest(t, handler, "203.0.113.7")
	w := doRequest(t, handler, "203.0.113.7")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"slow down","rule":"default"}`, w.Body.String())
	// The standard headers are set before the custom handler runs.
	assert.Equal(t, "1", w.Header().Get(HeaderRateLimitLimit))
}

func TestCeilSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{-time.Second, 0},
		{300 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{2 * time.Second, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ceilSeconds(tt.d), "duration %s", tt.d)
	}
}
