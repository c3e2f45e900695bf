package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps a fault that is safe to retry locally without being
// surfaced as a unit failure.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError marks err as retryable.
func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

// IsTransient reports whether the error (or any error in its chain) is a
// TransientError, a network timeout, or one of the known transient UI faults
// reported by browser bindings.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Browser bindings report UI faults as plain errors; match the messages
	// the drivers are known to produce.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"stale element reference",
		"element click intercepted",
		"element not interactable",
		"render timeout",
		"navigation timeout",
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
		"tls handshake timeout",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
