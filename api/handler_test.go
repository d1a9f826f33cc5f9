package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rental-finder/fetch"
	"rental-finder/models"
	"rental-finder/parser"
	"rental-finder/services"
	"rental-finder/storage"
	"rental-finder/utils"
)

type fakeIngester struct {
	err  error
	urls []string
}

func (f *fakeIngester) Ingest(ctx context.Context, rawURL string) (services.IngestResult, error) {
	f.urls = append(f.urls, rawURL)
	if f.err != nil {
		return services.IngestResult{RequestID: "req-err"}, f.err
	}
	rec := models.ListingRecord{ListingFields: models.ListingFields{Title: "Bright 2br"}}
	return services.IngestResult{RequestID: "req-1", Source: "craigslist", Row: 4, Record: rec}, nil
}

type fakeSweeper struct {
	calls   chan bool
	release chan struct{}
}

func (f *fakeSweeper) Sweep(ctx context.Context, refresh bool) ([]services.RowResult, error) {
	f.calls <- refresh
	if f.release != nil {
		<-f.release
	}
	return nil, nil
}

func newTestServer(ing Ingester, sw Sweeper) http.Handler {
	return NewHandler(context.Background(), ing, sw, utils.NewNopLogger()).Router()
}

func TestListingFormRedirects(t *testing.T) {
	ing := &fakeIngester{}
	srv := newTestServer(ing, &fakeSweeper{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/listing?url=https%3A%2F%2Fvancouver.craigslist.org%2Fx.html", nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location: %q", loc)
	}
	if len(ing.urls) != 1 || ing.urls[0] != "https://vancouver.craigslist.org/x.html" {
		t.Errorf("ingested: %v", ing.urls)
	}
}

func TestListingFormMissingURL(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&fakeIngester{}, &fakeSweeper{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/listing", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestCreateListing(t *testing.T) {
	srv := newTestServer(&fakeIngester{}, &fakeSweeper{})

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"url":"https://vancouver.craigslist.org/x.html"}`)
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/listings", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201: %s", rec.Code, rec.Body)
	}
	var resp createListingResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Row != 4 || resp.Source != "craigslist" || resp.RequestID != "req-1" || resp.Title != "Bright 2br" {
		t.Errorf("response: %+v", resp)
	}
}

func TestCreateListingErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantKind string
	}{
		{"bad body", `not json`, nil, http.StatusBadRequest, "bad_request"},
		{"empty url", `{"url":""}`, nil, http.StatusBadRequest, "bad_request"},
		{"unsupported", `{"url":"https://www.kijiji.ca/1"}`, &parser.UnsupportedSourceError{URL: "https://www.kijiji.ca/1", Source: "kijiji"}, http.StatusBadRequest, "unsupported_source"},
		{"invalid url", `{"url":"ftp://x"}`, fmt.Errorf("%w: scheme", parser.ErrInvalidURL), http.StatusBadRequest, "bad_request"},
		{"fetch", `{"url":"https://vancouver.craigslist.org/1"}`, &fetch.FetchError{URL: "u", StatusCode: 404, Err: errors.New("Not Found")}, http.StatusBadGateway, "fetch_failed"},
		{"parse", `{"url":"https://vancouver.craigslist.org/1"}`, &parser.ParseError{Source: "craigslist", Kind: parser.ErrPriceUnparseable}, http.StatusUnprocessableEntity, "parse_failed"},
		{"store", `{"url":"https://vancouver.craigslist.org/1"}`, &storage.StoreUnavailableError{Op: "append", Err: errors.New("quota")}, http.StatusServiceUnavailable, "store_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeIngester{err: tt.err}, &fakeSweeper{})
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/listings", strings.NewReader(tt.body)))

			if rec.Code != tt.wantCode {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantCode)
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Kind != tt.wantKind {
				t.Errorf("kind: got %q, want %q", resp.Kind, tt.wantKind)
			}
		})
	}
}

func TestEnrichStartsOneSweep(t *testing.T) {
	sw := &fakeSweeper{calls: make(chan bool, 2), release: make(chan struct{})}
	srv := newTestServer(&fakeIngester{}, sw)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/enrich?refresh=true", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", rec.Code)
	}

	select {
	case refresh := <-sw.calls:
		if !refresh {
			t.Errorf("refresh flag not passed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never started")
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/enrich", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("second sweep: got %d, want 409", rec.Code)
	}
	close(sw.release)
}

func TestWaitBlocksUntilSweepFinishes(t *testing.T) {
	sw := &fakeSweeper{calls: make(chan bool, 1), release: make(chan struct{})}
	h := NewHandler(context.Background(), &fakeIngester{}, sw, utils.NewNopLogger())

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/enrich", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", rec.Code)
	}
	select {
	case <-sw.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never started")
	}

	done := make(chan struct{})
	go func() {
		h.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned while the sweep was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(sw.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the sweep finished")
	}
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(&fakeIngester{}, &fakeSweeper{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `action="/listing"`) {
		t.Errorf("index: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/listings", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /listings: got %d, want 405", rec.Code)
	}
}
