// Package channel binds delivery mechanisms to their retry policies.
//
// Every channel owns exactly one retry.Policy, chosen by its kind when the
// channel is constructed and never replaced:
//
//	email  exponential backoff (providers rate-limit, widening waits helps)
//	sms    linear backoff
//	push   no retry (a second push is no better than the first)
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notifier/internal/shared"
	"notifier/pkg/retry"
)

// ErrNoTransport is returned by Send on a channel built without a transport.
var ErrNoTransport = errors.New("channel: no transport")

// Message is the payload handed to a transport unchanged.
type Message struct {
	ID        string
	Recipient string
	Text      string
}

// Transport performs the actual delivery. A nil error means the provider
// accepted the message.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, msg Message) error

// Deliver implements Transport.
func (f TransportFunc) Deliver(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Channel is a delivery mechanism with its bound retry policy.
type Channel interface {
	Kind() Kind
	Policy() retry.Policy
	Send(ctx context.Context, msg Message) error
}

var (
	_ Channel = (*Email)(nil)
	_ Channel = (*SMS)(nil)
	_ Channel = (*Push)(nil)
)

type options struct {
	unit     time.Duration
	maxDelay time.Duration
}

// Option configures channel construction.
type Option func(*options)

// WithTimeUnit sets the time unit the bound policy counts delays in.
func WithTimeUnit(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.unit = d
		}
	}
}

// WithMaxDelay caps exponential delays. Other policies ignore it.
func WithMaxDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxDelay = d
		}
	}
}

// policyFactory is implemented by every concrete channel.
type policyFactory interface {
	createPolicy(o options) retry.Policy
}

type base struct {
	kind      Kind
	policy    retry.Policy
	transport Transport
}

func newBase(kind Kind, f policyFactory, t Transport, opts []Option) base {
	o := options{unit: retry.DefaultUnit}
	for _, opt := range opts {
		opt(&o)
	}
	return base{kind: kind, policy: f.createPolicy(o), transport: t}
}

// Kind returns the channel kind.
func (b *base) Kind() Kind { return b.kind }

// Policy returns the retry policy bound at construction.
func (b *base) Policy() retry.Policy { return b.policy }

// Send hands msg to the transport once.
func (b *base) Send(ctx context.Context, msg Message) error {
	if b.transport == nil {
		return ErrNoTransport
	}
	return b.transport.Deliver(ctx, msg)
}

// Email is a channel with exponential backoff.
type Email struct{ base }

// NewEmail returns an email channel delivering through t.
func NewEmail(t Transport, opts ...Option) *Email {
	c := &Email{}
	c.base = newBase(KindEmail, c, t, opts)
	return c
}

func (*Email) createPolicy(o options) retry.Policy {
	return retry.Exponential{Unit: o.unit, MaxDelay: o.maxDelay}
}

// SMS is a channel with linear backoff.
type SMS struct{ base }

// NewSMS returns an SMS channel delivering through t.
func NewSMS(t Transport, opts ...Option) *SMS {
	c := &SMS{}
	c.base = newBase(KindSMS, c, t, opts)
	return c
}

func (*SMS) createPolicy(o options) retry.Policy {
	return retry.Linear{Unit: o.unit}
}

// Push is a fire-once channel.
type Push struct{ base }

// NewPush returns a push channel delivering through t.
func NewPush(t Transport, opts ...Option) *Push {
	c := &Push{}
	c.base = newBase(KindPush, c, t, opts)
	return c
}

func (*Push) createPolicy(options) retry.Policy {
	return retry.NoRetry{}
}

// New constructs the channel for kind.
func New(kind Kind, t Transport, opts ...Option) (Channel, error) {
	switch kind {
	case KindEmail:
		return NewEmail(t, opts...), nil
	case KindSMS:
		return NewSMS(t, opts...), nil
	case KindPush:
		return NewPush(t, opts...), nil
	default:
		return nil, shared.MarkKind(fmt.Errorf("unsupported channel kind %d", int(kind)), shared.KindValidation)
	}
}

// Set holds one channel per kind.
type Set map[Kind]Channel

// NewSet indexes channels by their kind; a later channel replaces an
// earlier one of the same kind.
func NewSet(chs ...Channel) Set {
	s := make(Set, len(chs))
	for _, c := range chs {
		if c != nil {
			s[c.Kind()] = c
		}
	}
	return s
}

// Get returns the channel for kind.
func (s Set) Get(kind Kind) (Channel, error) {
	if c, ok := s[kind]; ok {
		return c, nil
	}
	return nil, shared.MarkKind(fmt.Errorf("channel %s not configured", kind), shared.KindNotFound)
}
