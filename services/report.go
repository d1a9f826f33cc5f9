package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// RouteCount is how many enriched rows a route serves.
type RouteCount struct {
	Route string
	Rows  int
}

// SweepReport summarizes the results of one enrichment run.
type SweepReport struct {
	Total        int
	Enriched     int
	NoRoutes     int
	LookupFailed int
	PatchFailed  int
	Skipped      int
	TopRoutes    []RouteCount
}

// NewSweepReport tallies results.
func NewSweepReport(results []RowResult) *SweepReport {
	r := &SweepReport{Total: len(results)}
	counts := make(map[string]int)

	for _, res := range results {
		switch {
		case res.Skipped:
			r.Skipped++
		case res.PatchErr != nil:
			r.PatchFailed++
		case res.LookupErr != nil:
			r.LookupFailed++
		case res.Routes == "":
			r.NoRoutes++
		default:
			r.Enriched++
			for _, route := range strings.Split(res.Routes, ", ") {
				counts[route]++
			}
		}
	}

	for route, n := range counts {
		r.TopRoutes = append(r.TopRoutes, RouteCount{Route: route, Rows: n})
	}
	sort.Slice(r.TopRoutes, func(i, j int) bool {
		if r.TopRoutes[i].Rows != r.TopRoutes[j].Rows {
			return r.TopRoutes[i].Rows > r.TopRoutes[j].Rows
		}
		return r.TopRoutes[i].Route < r.TopRoutes[j].Route
	})
	if len(r.TopRoutes) > 5 {
		r.TopRoutes = r.TopRoutes[:5]
	}
	return r
}

// Print writes the report as a console table.
func (r *SweepReport) Print(w io.Writer) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  TRANSIT ENRICHMENT\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Rows\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Processed      : \033[1m%d\033[0m\n", r.Total)
	fmt.Fprintf(w, "  Enriched       : \033[1;32m%d\033[0m\n", r.Enriched)
	fmt.Fprintf(w, "  No stops nearby: %d\n", r.NoRoutes)
	fmt.Fprintf(w, "  Lookup failed  : \033[1;31m%d\033[0m\n", r.LookupFailed)
	fmt.Fprintf(w, "  Patch failed   : \033[1;31m%d\033[0m\n", r.PatchFailed)
	if r.Skipped > 0 {
		fmt.Fprintf(w, "  Skipped        : %d\n", r.Skipped)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Most Common Routes\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.TopRoutes) == 0 {
		fmt.Fprintf(w, "  No routes found\n")
	}
	for _, rc := range r.TopRoutes {
		bar := strings.Repeat("█", rc.Rows)
		fmt.Fprintf(w, "  %-10s %s (%d)\n", rc.Route, bar, rc.Rows)
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}
