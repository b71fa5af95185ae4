// Package simulated provides a transport that fails at random. Used by the
// demo and for local runs without provider credentials.
package simulated

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"

	"notifier/internal/channel"
)

// ErrSimulatedFailure is returned for a failed simulated send.
var ErrSimulatedFailure = errors.New("simulated: provider rejected message")

// Transport succeeds with probability SuccessRate.
type Transport struct {
	name        string
	successRate float64
	log         *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

var _ channel.Transport = (*Transport)(nil)

// New creates a Transport. seed makes the outcome sequence reproducible.
func New(name string, successRate float64, seed uint64, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}
	return &Transport{
		name:        name,
		successRate: successRate,
		log:         log,
		rnd:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Deliver implements channel.Transport.
func (t *Transport) Deliver(ctx context.Context, msg channel.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	ok := t.rnd.Float64() < t.successRate
	t.mu.Unlock()

	t.log.Info("simulated send",
		slog.String("transport", t.name),
		slog.String("recipient", msg.Recipient),
		slog.String("text", msg.Text),
		slog.Bool("ok", ok),
	)
	if !ok {
		return ErrSimulatedFailure
	}
	return nil
}
