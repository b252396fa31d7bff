// Package scraper defines the source adapter contract and the scheduler that
// runs all adapters concurrently under time budgets.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"

	"imovel-search/models"
)

// Adapter turns search filters into normalized listing records for one
// external site. Implementations must honour ctx cancellation: an abandoned
// fetch should return promptly with ctx.Err().
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, filters models.SearchFilters) ([]*models.ListingRecord, error)
}

// ErrorKind classifies adapter failures for the retry policy.
type ErrorKind string

const (
	// KindTimeout: the adapter did not finish inside its deadline. Retried.
	KindTimeout ErrorKind = "timeout"
	// KindTransient: connection resets, rate-limit responses, 5xx. Retried.
	KindTransient ErrorKind = "transient"
	// KindPermanent: a malformed page signalling a site redesign. Never retried.
	KindPermanent ErrorKind = "permanent"
)

// AdapterError wraps a source failure with its classification.
type AdapterError struct {
	Kind   ErrorKind
	Source string
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Timeout builds a timeout-classified adapter error.
func Timeout(source string, err error) *AdapterError {
	return &AdapterError{Kind: KindTimeout, Source: source, Err: err}
}

// Transient builds a transient-classified adapter error.
func Transient(source string, err error) *AdapterError {
	return &AdapterError{Kind: KindTransient, Source: source, Err: err}
}

// Permanent builds a permanent-classified adapter error.
func Permanent(source string, err error) *AdapterError {
	return &AdapterError{Kind: KindPermanent, Source: source, Err: err}
}

// Classify maps an arbitrary adapter failure onto an ErrorKind. Unknown
// errors count as transient: retrying an unclassified network hiccup is
// cheaper than silently losing a source.
func Classify(err error) ErrorKind {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindTransient
}
