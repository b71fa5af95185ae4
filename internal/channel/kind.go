package channel

import (
	"fmt"
	"strings"

	"notifier/internal/shared"
)

// Kind identifies a delivery mechanism.
type Kind int

const (
	// KindUnknown is the zero value.
	KindUnknown Kind = iota
	// KindEmail delivers through an email provider.
	KindEmail
	// KindSMS delivers through an SMS gateway.
	KindSMS
	// KindPush delivers a push notification.
	KindPush
)

// Kinds lists every supported kind.
func Kinds() []Kind { return []Kind{KindEmail, KindSMS, KindPush} }

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindEmail:
		return "email"
	case KindSMS:
		return "sms"
	case KindPush:
		return "push"
	default:
		return "unknown"
	}
}

// ParseKind parses "email", "sms" or "push".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email":
		return KindEmail, nil
	case "sms":
		return KindSMS, nil
	case "push":
		return KindPush, nil
	default:
		return KindUnknown, shared.MarkKind(fmt.Errorf("unknown channel %q", s), shared.KindValidation)
	}
}
