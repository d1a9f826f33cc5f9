// Package api exposes listing ingestion and enrichment over HTTP.
package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"rental-finder/fetch"
	"rental-finder/parser"
	"rental-finder/services"
	"rental-finder/storage"
	"rental-finder/utils"
)

//go:embed index.html
var indexHTML []byte

// Ingester stores one listing URL.
type Ingester interface {
	Ingest(ctx context.Context, rawURL string) (services.IngestResult, error)
}

// Sweeper runs a transit enrichment sweep.
type Sweeper interface {
	Sweep(ctx context.Context, refresh bool) ([]services.RowResult, error)
}

// Handler serves the HTTP endpoints.
type Handler struct {
	ingester Ingester
	sweeper  Sweeper
	logger   *utils.Logger

	// sweeps started from a request outlive it
	baseCtx  context.Context
	sweeping atomic.Bool
	sweeps   sync.WaitGroup
}

// NewHandler creates a Handler. Background sweeps run under baseCtx.
func NewHandler(baseCtx context.Context, ingester Ingester, sweeper Sweeper, logger *utils.Logger) *Handler {
	return &Handler{
		ingester: ingester,
		sweeper:  sweeper,
		logger:   logger,
		baseCtx:  baseCtx,
	}
}

// Router registers every route on a new gorilla/mux router.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", h.HandleIndex).Methods(http.MethodGet)
	r.HandleFunc("/listing", h.HandleListingForm).Methods(http.MethodGet)
	r.HandleFunc("/listings", h.HandleCreateListing).Methods(http.MethodPost)
	r.HandleFunc("/enrich", h.HandleEnrich).Methods(http.MethodPost)
	r.HandleFunc("/healthz", h.HandleHealth).Methods(http.MethodGet)
	r.Use(h.logRequests)
	return r
}

func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

// HandleListingForm ingests ?url= and redirects back to the form.
func (h *Handler) HandleListingForm(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}

	if _, err := h.ingester.Ingest(r.Context(), rawURL); err != nil {
		http.Error(w, err.Error(), StatusFor(err))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type createListingRequest struct {
	URL string `json:"url"`
}

type createListingResponse struct {
	Row       int    `json:"row"`
	Source    string `json:"source"`
	RequestID string `json:"request_id"`
	Title     string `json:"title"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}

// HandleCreateListing ingests {"url": "..."} and answers with the stored row.
func (h *Handler) HandleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be {\"url\": \"...\"}", Kind: "bad_request"})
		return
	}

	res, err := h.ingester.Ingest(r.Context(), req.URL)
	if err != nil {
		writeJSON(w, StatusFor(err), errorResponse{Error: err.Error(), Kind: KindOf(err), RequestID: res.RequestID})
		return
	}

	writeJSON(w, http.StatusCreated, createListingResponse{
		Row:       res.Row,
		Source:    res.Source,
		RequestID: res.RequestID,
		Title:     res.Record.Title,
	})
}

// HandleEnrich starts a background sweep. ?refresh=true re-enriches rows
// that already have routes.
func (h *Handler) HandleEnrich(w http.ResponseWriter, r *http.Request) {
	if !h.sweeping.CompareAndSwap(false, true) {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "sweep already running"})
		return
	}
	refresh := r.URL.Query().Get("refresh") == "true"

	h.sweeps.Add(1)
	go func() {
		defer h.sweeps.Done()
		defer h.sweeping.Store(false)
		start := time.Now()
		results, err := h.sweeper.Sweep(h.baseCtx, refresh)
		if err != nil {
			h.logger.Error("[api] Enrichment sweep failed: %v", err)
			return
		}
		h.logger.Info("[api] Enrichment sweep finished: %d rows in %v", len(results), time.Since(start).Round(time.Millisecond))
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sweep started"})
}

// Wait blocks until background sweeps have finished.
func (h *Handler) Wait() {
	h.sweeps.Wait()
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug("[api] %s %s (%v)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

// StatusFor maps a pipeline error to an HTTP status code.
func StatusFor(err error) int {
	switch KindOf(err) {
	case "unsupported_source", "bad_request":
		return http.StatusBadRequest
	case "fetch_failed":
		return http.StatusBadGateway
	case "parse_failed":
		return http.StatusUnprocessableEntity
	case "store_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// KindOf names the class of a pipeline error.
func KindOf(err error) string {
	var (
		unsupported *parser.UnsupportedSourceError
		fetchErr    *fetch.FetchError
		parseErr    *parser.ParseError
		storeErr    *storage.StoreUnavailableError
		rowErr      *storage.RowNotFoundError
	)
	switch {
	case errors.As(err, &unsupported):
		return "unsupported_source"
	case errors.Is(err, parser.ErrInvalidURL):
		return "bad_request"
	case errors.As(err, &fetchErr):
		return "fetch_failed"
	case errors.As(err, &parseErr):
		return "parse_failed"
	case errors.As(err, &storeErr), errors.As(err, &rowErr), errors.Is(err, storage.ErrHeaderMismatch):
		return "store_unavailable"
	default:
		return "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
