package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestFailed signals that the upstream lookup could not be completed
	// (transport error, timeout, non-2xx status).
	ErrRequestFailed = errors.New("request failed")
	// ErrResponseUnparseable signals that the upstream answered with markup or
	// JSON that could not be decoded.
	ErrResponseUnparseable = errors.New("response unparseable")
	// ErrSourceNotLocatable signals that the response decoded but the element
	// holding the source link was missing.
	ErrSourceNotLocatable = errors.New("source not locatable")
)

// SearchErrorKind classifies a searcher failure.
type SearchErrorKind int

const (
	// RequestFailed maps to ErrRequestFailed.
	RequestFailed SearchErrorKind = iota + 1
	// ResponseUnparseable maps to ErrResponseUnparseable.
	ResponseUnparseable
	// SourceNotLocatable maps to ErrSourceNotLocatable.
	SourceNotLocatable
)

func (k SearchErrorKind) sentinel() error {
	switch k {
	case RequestFailed:
		return ErrRequestFailed
	case ResponseUnparseable:
		return ErrResponseUnparseable
	case SourceNotLocatable:
		return ErrSourceNotLocatable
	default:
		return errors.New("unknown search error")
	}
}

// String returns the metric/log label of the kind.
func (k SearchErrorKind) String() string {
	switch k {
	case RequestFailed:
		return "request_failed"
	case ResponseUnparseable:
		return "response_unparseable"
	case SourceNotLocatable:
		return "source_not_locatable"
	default:
		return "unknown"
	}
}

// maxBodyExcerpt bounds how much of a raw upstream response is kept on an error.
const maxBodyExcerpt = 2048

// SearchError is a typed searcher failure carrying enough context to diagnose
// it later: which backend, which image URL, and for parse failures the raw body.
type SearchError struct {
	Searcher string
	URL      string
	Kind     SearchErrorKind
	Body     string
	Err      error
}

// NewSearchError builds a SearchError, truncating body to a log-friendly excerpt.
func NewSearchError(searcher, url string, kind SearchErrorKind, body []byte, err error) *SearchError {
	excerpt := string(body)
	if len(excerpt) > maxBodyExcerpt {
		excerpt = excerpt[:maxBodyExcerpt]
	}
	return &SearchError{Searcher: searcher, URL: url, Kind: kind, Body: excerpt, Err: err}
}

func (e *SearchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s for %s", e.Searcher, e.Kind.sentinel(), e.URL)
	}
	return fmt.Sprintf("%s: %s for %s: %v", e.Searcher, e.Kind.sentinel(), e.URL, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is/As.
func (e *SearchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// SearchErrorKindOf returns the kind of a searcher failure, or RequestFailed for
// untyped errors (anything that did not come back as a classified answer).
func SearchErrorKindOf(err error) SearchErrorKind {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Kind
	}
	return RequestFailed
}
