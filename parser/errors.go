package parser

import (
	"errors"
	"fmt"
)

// Sentinel kinds of ParseError. Match them with errors.Is.
var (
	ErrStructuredDataMissing   = errors.New("structured data block missing")
	ErrStructuredDataMalformed = errors.New("structured data block malformed")
	ErrPriceUnparseable        = errors.New("price unparseable")
	ErrUnitUnrecognized        = errors.New("area unit unrecognized")
	ErrAreaUnparseable         = errors.New("area unparseable")
	ErrCoordinatesMalformed    = errors.New("coordinates malformed")
)

// ParseError reports that a page's markup did not have the shape its source
// parser expects. Kind is one of the Err* sentinels above.
type ParseError struct {
	Source string
	Kind   error
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parser: %s: %s", e.Source, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is lets errors.Is(err, ErrPriceUnparseable) match on the kind.
func (e *ParseError) Is(target error) bool {
	return target == e.Kind
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(source string, kind error, detail string, cause error) *ParseError {
	return &ParseError{Source: source, Kind: kind, Detail: detail, Err: cause}
}

// UnsupportedSourceError is returned when no parser is registered for a URL's
// canonical source. It is a user-facing rejection, never worth retrying.
type UnsupportedSourceError struct {
	URL    string
	Source string
}

func (e *UnsupportedSourceError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("parser: unsupported source for %q", e.URL)
	}
	return fmt.Sprintf("parser: source %q is not supported", e.Source)
}

// ErrInvalidURL is returned when a listing URL has no usable host.
var ErrInvalidURL = errors.New("parser: invalid listing url")
