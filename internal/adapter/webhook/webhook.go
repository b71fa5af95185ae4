// Package webhook delivers notifications by POSTing JSON to a provider
// endpoint (email or SMS gateway).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"notifier/internal/channel"
	"notifier/internal/platform/httpclient"
	"notifier/internal/shared"
)

// ErrNoEndpoint is returned by New without a URL.
var ErrNoEndpoint = errors.New("webhook: endpoint url is empty")

// payload is the request body sent to the provider.
type payload struct {
	ID        string `json:"id"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

// Transport posts each message to one endpoint. Any 2xx response is a
// delivery; everything else is a failed attempt.
type Transport struct {
	client *httpclient.Client
	url    string
	apiKey string
	kind   channel.Kind
}

var _ channel.Transport = (*Transport)(nil)

// New creates a Transport for messages of kind. apiKey, when set, is sent as
// a bearer token.
func New(c *httpclient.Client, kind channel.Kind, url, apiKey string) (*Transport, error) {
	if url == "" {
		return nil, shared.MarkKind(ErrNoEndpoint, shared.KindValidation)
	}
	return &Transport{client: c, url: url, apiKey: apiKey, kind: kind}, nil
}

// Deliver implements channel.Transport.
func (t *Transport) Deliver(ctx context.Context, msg channel.Message) error {
	body, err := json.Marshal(payload{
		ID:        msg.ID,
		Channel:   t.kind.String(),
		Recipient: msg.Recipient,
		Text:      msg.Text,
	})
	if err != nil {
		return shared.MarkKind(err, shared.KindInternal)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return shared.MarkKind(err, shared.KindValidation)
	}
	req.Header.Set("Content-Type", "application/json")
	if msg.ID != "" {
		req.Header.Set("Idempotency-Key", msg.ID)
	}
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := t.client.CheckStatus(resp); err != nil {
		return err
	}
	drain(resp)
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
