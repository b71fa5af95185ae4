package httpclient_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"notifier/internal/platform/httpclient"
	"notifier/internal/shared"
)

func quiet() httpclient.Option {
	return httpclient.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_Do_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := httpclient.New(quiet())
	req, err := http.NewRequest(http.MethodPost, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NoError(t, c.CheckStatus(resp))
}

func TestClient_Do_NoRetryOn5xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := httpclient.New(quiet())
	req, err := http.NewRequest(http.MethodPost, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	err = c.CheckStatus(resp)
	require.Error(t, err)
	require.EqualValues(t, 1, attempts.Load())
	require.True(t, shared.IsDependencyFailure(err))

	var se *httpclient.StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	require.Equal(t, 7*time.Second, se.RetryAfter)
	require.Equal(t, http.MethodPost, se.Method)
}

func TestClient_Do_DefaultHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "1" {
			t.Errorf("missing default header")
		}
		if r.Header.Get("X-Override") != "request" {
			t.Errorf("request header overridden: %q", r.Header.Get("X-Override"))
		}
	}))
	defer srv.Close()

	c := httpclient.New(quiet(), httpclient.WithHeaders(map[string]string{"X-Test": "1", "X-Override": "default"}))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("X-Override", "request")

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestClient_Do_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := httpclient.New(quiet(), httpclient.WithTimeout(20*time.Millisecond))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = c.Do(context.Background(), req)
	require.Error(t, err)
	require.True(t, shared.IsTimeout(err))
}

func TestClient_Do_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := httpclient.New(quiet())
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = c.Do(ctx, req)
	require.ErrorIs(t, err, context.Canceled)
}

type rtFunc func(*http.Request) (*http.Response, error)

func (f rtFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestClient_Do_TransportError(t *testing.T) {
	c := httpclient.New(quiet(), httpclient.WithTransport(rtFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})))
	req, err := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)

	_, err = c.Do(context.Background(), req)
	require.True(t, shared.IsDependencyFailure(err))
}

func TestClient_URLRedactor(t *testing.T) {
	c := httpclient.New(quiet(), httpclient.WithURLRedactor(func(u *url.URL) string { return u.Host }))
	resp := &http.Response{
		StatusCode: http.StatusBadRequest,
		Body:       http.NoBody,
		Request:    &http.Request{Method: http.MethodPost, URL: &url.URL{Scheme: "https", Host: "hooks.example.com", Path: "/secret"}},
		Header:     http.Header{},
	}
	err := c.CheckStatus(resp)
	var se *httpclient.StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "hooks.example.com", se.URL)
}
