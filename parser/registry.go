// Package parser turns raw listing pages into normalized records. Each
// supported site has one Parser; a Registry dispatches on the canonical
// source identifier derived from the listing URL's host.
package parser

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"rental-finder/models"
)

// Parser extracts a ListingRecord from one source's page markup. It performs
// no I/O.
type Parser interface {
	// Source is the canonical identifier this parser is registered under.
	Source() string
	// Parse returns a complete record or a *ParseError.
	Parse(body []byte, pageURL string) (models.ListingRecord, error)
}

// Registry maps canonical source identifiers to parsers. It is built once at
// startup and only read afterwards, so it is safe for concurrent use.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry builds a Registry. Registering two parsers for the same source
// is a programming error and panics.
func NewRegistry(parsers ...Parser) *Registry {
	m := make(map[string]Parser, len(parsers))
	for _, p := range parsers {
		key := strings.ToLower(p.Source())
		if _, dup := m[key]; dup {
			panic(fmt.Sprintf("parser: duplicate registration for %q", key))
		}
		m[key] = p
	}
	return &Registry{parsers: m}
}

// Resolve canonicalizes rawURL and returns the parser bound to its source.
func (r *Registry) Resolve(rawURL string) (Parser, string, error) {
	source, err := CanonicalSource(rawURL)
	if err != nil {
		return nil, "", err
	}
	p, ok := r.parsers[source]
	if !ok {
		return nil, source, &UnsupportedSourceError{URL: rawURL, Source: source}
	}
	return p, source, nil
}

// Sources lists the registered identifiers in sorted order.
func (r *Registry) Sources() []string {
	out := make([]string, 0, len(r.parsers))
	for k := range r.parsers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CanonicalSource returns the second-level domain label of rawURL's host,
// e.g. "https://vancouver.craigslist.org/x" -> "craigslist".
func CanonicalSource(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", fmt.Errorf("%w: no host in %q", ErrInvalidURL, rawURL)
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return labels[0], nil
	}
	return labels[len(labels)-2], nil
}
