package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/internal/adapter/webhook"
	"notifier/internal/channel"
	"notifier/internal/platform/httpclient"
	"notifier/internal/shared"
)

func client() *httpclient.Client {
	return httpclient.New(httpclient.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestDeliverPostsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "m-1", r.Header.Get("Idempotency-Key"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{
			"id":        "m-1",
			"channel":   "email",
			"recipient": "user@example.com",
			"text":      "Your order has shipped!",
		}, body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tr, err := webhook.New(client(), channel.KindEmail, srv.URL, "key")
	require.NoError(t, err)

	err = tr.Deliver(context.Background(), channel.Message{ID: "m-1", Recipient: "user@example.com", Text: "Your order has shipped!"})
	require.NoError(t, err)
}

func TestDeliverNon2xxFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr, err := webhook.New(client(), channel.KindSMS, srv.URL, "")
	require.NoError(t, err)

	err = tr.Deliver(context.Background(), channel.Message{Recipient: "+15550100"})
	require.Error(t, err)
	assert.True(t, shared.IsDependencyFailure(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestDeliverRetriedByChannel(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr, err := webhook.New(client(), channel.KindSMS, srv.URL, "")
	require.NoError(t, err)
	sms := channel.NewSMS(tr)

	require.Error(t, sms.Send(context.Background(), channel.Message{}))
	require.NoError(t, sms.Send(context.Background(), channel.Message{}))
}

func TestNewRequiresURL(t *testing.T) {
	_, err := webhook.New(client(), channel.KindEmail, "", "")
	assert.ErrorIs(t, err, webhook.ErrNoEndpoint)
	assert.True(t, shared.IsValidation(err))
}
