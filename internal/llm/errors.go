package llm

import (
	"context"
	"errors"
	"net"
	"strings"
)

var (
	// ErrQuotaExceeded marks usage-limit exhaustion; retried with backoff.
	ErrQuotaExceeded = errors.New("llm: quota exceeded")
	// ErrEmptyAnswer marks a reply with no text; retried like a validation failure.
	ErrEmptyAnswer = errors.New("Model returned no output.")
	// ErrTimeout marks a collaborator timeout; fatal.
	ErrTimeout = errors.New("llm: timed out")
)

// Class is the retry class of a collaborator error.
type Class int

const (
	ClassFatal Class = iota
	ClassQuota
	ClassEmpty
	ClassTimeout
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassQuota:
		return "quota"
	case ClassEmpty:
		return "empty"
	case ClassTimeout:
		return "timeout"
	case ClassCanceled:
		return "canceled"
	}
	return "fatal"
}

// quotaSignature is the substring providers use in usage-limit messages,
// e.g. "You have exceeded your monthly included credits".
const quotaSignature = "exceeded"

// Classify maps a collaborator error to its retry class. Cancellation and
// timeouts are checked before the quota signature, since "deadline exceeded"
// also contains it.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return ClassQuota
	}
	if errors.Is(err, ErrEmptyAnswer) {
		return ClassEmpty
	}
	if strings.Contains(strings.ToLower(err.Error()), quotaSignature) {
		return ClassQuota
	}
	return ClassFatal
}

// statusClass maps an HTTP-like status code from a provider to a sentinel.
func statusClass(code int) error {
	switch code {
	case 429:
		return ErrQuotaExceeded
	case 408, 504:
		return ErrTimeout
	}
	return nil
}
