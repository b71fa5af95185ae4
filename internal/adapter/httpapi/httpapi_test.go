package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/internal/channel"
	"notifier/internal/dispatcher"
	"notifier/internal/shared"
	"notifier/internal/storage/journal"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeQueue struct {
	mu   sync.Mutex
	jobs []dispatcher.Job
	err  error
}

func (q *fakeQueue) Submit(_ context.Context, job dispatcher.Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.jobs = append(q.jobs, job)
	return "id-1", nil
}

func (q *fakeQueue) Pending() int { return len(q.jobs) }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func nopTransport() channel.Transport {
	return channel.TransportFunc(func(context.Context, channel.Message) error { return nil })
}

func newTestRouter(q Queue, l Lookup, limiter *RateLimiter) *gin.Engine {
	set := channel.NewSet(channel.NewEmail(nopTransport()), channel.NewPush(nopTransport()))
	return NewRouter(NewHandler(set, q, l, 3, quiet()), limiter)
}

func post(t *testing.T, r http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/notifications", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateNotification(t *testing.T) {
	q := &fakeQueue{}
	r := newTestRouter(q, journal.NewMemory(), nil)

	w := post(t, r, map[string]any{"channel": "email", "recipient": "a@example.com", "text": "hi"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"id":"id-1"}`, w.Body.String())

	require.Len(t, q.jobs, 1)
	assert.Equal(t, channel.KindEmail, q.jobs[0].Channel.Kind())
	assert.Equal(t, 3, q.jobs[0].MaxAttempts)
	assert.Equal(t, "a@example.com", q.jobs[0].Message.Recipient)
}

func TestCreateNotificationMaxAttempts(t *testing.T) {
	q := &fakeQueue{}
	r := newTestRouter(q, journal.NewMemory(), nil)

	w := post(t, r, map[string]any{"channel": "push", "text": "hi", "max_attempts": 0})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, q.jobs, 1)
	assert.Equal(t, 0, q.jobs[0].MaxAttempts)
}

func TestCreateNotificationValidation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"unknown channel", map[string]any{"channel": "fax", "recipient": "x", "text": "hi"}, http.StatusBadRequest},
		{"missing text", map[string]any{"channel": "email", "recipient": "x"}, http.StatusBadRequest},
		{"negative attempts", map[string]any{"channel": "email", "recipient": "x", "text": "hi", "max_attempts": -1}, http.StatusBadRequest},
		{"missing recipient", map[string]any{"channel": "email", "text": "hi"}, http.StatusBadRequest},
		{"unconfigured channel", map[string]any{"channel": "sms", "recipient": "+1", "text": "hi"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{}
			w := post(t, newTestRouter(q, journal.NewMemory(), nil), tt.body)
			assert.Equal(t, tt.want, w.Code)
			assert.Empty(t, q.jobs)
		})
	}
}

func TestCreateNotificationPoolClosed(t *testing.T) {
	q := &fakeQueue{err: dispatcher.ErrPoolClosed}
	w := post(t, newTestRouter(q, journal.NewMemory(), nil), map[string]any{"channel": "email", "recipient": "x", "text": "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetNotification(t *testing.T) {
	store := journal.NewMemory()
	require.NoError(t, store.RecordDelivery(context.Background(), journal.Delivery{
		ID: "abc", Channel: "sms", Outcome: "success", Attempts: 2, StartedAt: time.Now(),
	}))
	r := newTestRouter(&fakeQueue{}, store, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/notifications/abc", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got journal.Delivery
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "success", got.Outcome)
	assert.Equal(t, 2, got.Attempts)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/notifications/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(&fakeQueue{}, journal.NewMemory(), nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","pending":0}`, w.Body.String())
}

func TestRateLimit(t *testing.T) {
	r := newTestRouter(&fakeQueue{}, journal.NewMemory(), NewRateLimiter(time.Hour))
	body := map[string]any{"channel": "email", "recipient": "x", "text": "hi"}

	assert.Equal(t, http.StatusAccepted, post(t, r, body).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(t, r, body).Code)
}

func TestRateLimiterAllow(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))

	assert.True(t, NewRateLimiter(0).Allow("a"))
	assert.True(t, NewRateLimiter(0).Allow("a"))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{shared.ErrValidation, http.StatusBadRequest},
		{shared.ErrNotFound, http.StatusNotFound},
		{shared.ErrDependencyFailure, http.StatusBadGateway},
		{context.Canceled, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{dispatcher.ErrPoolClosed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), tt.err.Error())
	}
}
