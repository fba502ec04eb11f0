package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies upstream failures. The orchestrator and the strategy
// selector act on kinds, never on raw error strings.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindRateLimited
	KindNetwork
	KindProtocol
	KindNotFound
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Error carries a failure kind and the client that produced it.
type Error struct {
	Kind   Kind
	Client string
	Err    error
}

func (e *Error) Error() string {
	if e.Client == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Client, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and an optional client tag.
func E(kind Kind, client string, err error) *Error {
	return &Error{Kind: kind, Client: client, Err: err}
}

// KindOf extracts the kind from err, mapping context deadline errors to
// KindTimeout. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindInternal
}

// Transient reports whether err is worth retrying: network trouble and
// upstream throttling recover, auth and protocol failures do not.
func Transient(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindRateLimited:
		return true
	}
	return false
}

// severity orders kinds for picking the "worst" error when every client
// failed: Unauthorized > RateLimited > Network > Protocol > the rest.
func severity(k Kind) int {
	switch k {
	case KindUnauthorized:
		return 5
	case KindRateLimited:
		return 4
	case KindNetwork:
		return 3
	case KindProtocol:
		return 2
	case KindTimeout:
		return 1
	default:
		return 0
	}
}

// Worst returns the most severe error of the slice, or nil for an empty
// slice.
func Worst(errs []error) error {
	var worst error
	best := -1
	for _, err := range errs {
		if err == nil {
			continue
		}
		if s := severity(KindOf(err)); s > best {
			best = s
			worst = err
		}
	}
	return worst
}
