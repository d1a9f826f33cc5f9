package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"rental-finder/geo"
	"rental-finder/utils"
)

// TransitProvider looks up the transit routes serving stops near a point.
type TransitProvider interface {
	NearbyRoutes(ctx context.Context, p geo.Point) ([]string, error)
}

// Stop is one entry of the TransLink stop search response.
type Stop struct {
	StopNo int    `json:"StopNo"`
	Name   string `json:"Name"`
	Routes string `json:"Routes"`
}

// codeNoStopsFound is the RTTI error code sent with a 404 when the search
// radius contains no stops.
const codeNoStopsFound = "1012"

// apiError is the body RTTI sends with non-200 responses.
type apiError struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

// TransLinkClient queries the TransLink RTTI stop search. Lookups are made
// once; a failed or timed out request is reported to the caller as is.
type TransLinkClient struct {
	baseURL string
	apiKey  string
	radius  int
	client  *http.Client
}

// NewTransLinkClient returns a client searching radius metres around each point.
func NewTransLinkClient(baseURL, apiKey string, radius int, timeout time.Duration) *TransLinkClient {
	return &TransLinkClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		radius:  radius,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *TransLinkClient) NearbyRoutes(ctx context.Context, p geo.Point) ([]string, error) {
	q := url.Values{}
	q.Set("apikey", c.apiKey)
	q.Set("lat", fmt.Sprintf("%.6f", p.Lat))
	q.Set("long", fmt.Sprintf("%.6f", p.Lon))
	q.Set("radius", fmt.Sprint(c.radius))
	endpoint := c.baseURL + "/RTTIAPI/V1/stops?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "transit: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "transit: request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && resp.StatusCode == http.StatusNotFound && apiErr.Code == codeNoStopsFound {
			return []string{}, nil
		}
		return nil, eris.Errorf("transit: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var stops []Stop
	if err := json.NewDecoder(resp.Body).Decode(&stops); err != nil {
		return nil, eris.Wrap(err, "transit: decode stops")
	}
	return normalizeRoutes(stops), nil
}

// normalizeRoutes collects the route identifiers of every stop in first-seen
// order. A single leading space and then a single leading zero are stripped
// from each identifier, so "099" becomes "99" and "007" becomes "07".
func normalizeRoutes(stops []Stop) []string {
	set := utils.NewOrderedSet()
	for _, s := range stops {
		for _, r := range strings.Split(s.Routes, ",") {
			r = strings.TrimPrefix(r, " ")
			r = strings.TrimPrefix(r, "0")
			if r == "" {
				continue
			}
			set.Add(r)
		}
	}
	return set.Items()
}

// JoinRoutes renders routes the way the sheet stores them.
func JoinRoutes(routes []string) string {
	return strings.Join(routes, ", ")
}
