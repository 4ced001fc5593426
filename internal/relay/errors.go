package relay

import (
	"errors"
	"fmt"
)

// Kind classifies forwarding failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindUnknownClient: no credentials are registered for the client.
	KindUnknownClient
	// KindConfig: the client exists but cannot be used (no assistant, undecryptable key).
	KindConfig
	// KindRemote: the backend call failed or returned a malformed stream.
	KindRemote
	// KindStore: the credential store could not be read.
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindUnknownClient:
		return "unknown_client"
	case KindConfig:
		return "config_error"
	case KindRemote:
		return "remote_error"
	case KindStore:
		return "store_error"
	default:
		return "unknown"
	}
}

// ErrUnknownClient matches any Error of KindUnknownClient via errors.Is.
var ErrUnknownClient = errors.New("relay: unknown client")

var (
	errNoAssistant = errors.New("no assistant registered")
	errNoCipher    = errors.New("no encryption key configured")
	errEmptyKey    = errors.New("decrypted key is empty")
)

// Error is the typed failure returned by the Forwarder.
type Error struct {
	Kind     Kind
	ClientID string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("relay: %s: %s (client %s)", e.Op, e.Kind, e.ClientID)
	}
	return fmt.Sprintf("relay: %s: %s (client %s): %v", e.Op, e.Kind, e.ClientID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == ErrUnknownClient && e.Kind == KindUnknownClient
}

// KindOf returns the Kind of err, or KindUnknown when err is not a relay Error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}
