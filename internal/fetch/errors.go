package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/wonny/fundscope/pkg/httputil"
)

// Kind classifies a fetch failure
type Kind string

const (
	KindNetwork             Kind = "NetworkError"        // timeout, connection, 5xx; retried
	KindRateLimited         Kind = "RateLimited"         // 429; retried with extended backoff
	KindParse               Kind = "ParseError"          // malformed payload; not retried
	KindUnavailable         Kind = "SourceUnavailable"   // 4xx, bad params, open breaker; not retried
	KindInsufficientData    Kind = "InsufficientData"    // payload too short to use
	KindRetriesExhausted    Kind = "RetriesExhausted"    // max attempts reached
	KindAllSourcesExhausted Kind = "AllSourcesExhausted" // every provider failed
	KindCancelled           Kind = "Cancelled"           // run deadline or cancellation
)

// Sentinels for extractors and validators
var (
	ErrParse            = errors.New("parse error")
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidRequest   = errors.New("invalid request") // bad params; retrying cannot help
)

// Transient reports whether another attempt may succeed
func (k Kind) Transient() bool {
	return k == KindNetwork || k == KindRateLimited
}

// Error is the failure half of an Outcome
type Error struct {
	Kind     Kind
	Op       string // logical operation (nav_history, ranking ...)
	Source   string // provider name, empty for chain-level failures
	Attempts int
	Err      error // last underlying error
}

func (e *Error) Error() string {
	src := e.Source
	if src == "" {
		src = "-"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s %s/%s after %d attempt(s)", e.Kind, e.Op, src, e.Attempts)
	}
	return fmt.Sprintf("%s %s/%s after %d attempt(s): %v", e.Kind, e.Op, src, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps an error returned by a provider call to a Kind
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}

	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrInsufficientData):
		return KindInsufficientData
	case errors.Is(err, ErrInvalidRequest):
		return KindUnavailable
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return KindUnavailable
	}

	var se *httputil.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests:
			return KindRateLimited
		case se.StatusCode >= 500:
			return KindNetwork
		default:
			return KindUnavailable
		}
	}

	// per-attempt timeouts surface as DeadlineExceeded
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}

	// net.Error, EOF, connection reset ...
	return KindNetwork
}
