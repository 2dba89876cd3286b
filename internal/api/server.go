package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pauljones0/deal-aggregator/internal/models"
	"github.com/pauljones0/deal-aggregator/internal/storage"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type Server struct {
	store       storage.Store
	runner      *Runner
	searchLimit int
}

func NewServer(store storage.Store, runner *Runner, searchLimit int) *Server {
	return &Server{store: store, runner: runner, searchLimit: searchLimit}
}

// Routes returns the HTTP handler for the API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /pipeline/run", s.handleRunPipeline)
	mux.HandleFunc("GET /pipeline/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /deals", s.handleListDeals)
	mux.HandleFunc("GET /deal/{id}", s.handleGetDeal)
	mux.HandleFunc("POST /deal/{id}/click", s.handleClick)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /categories", s.handleCategories)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("Store error", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	// Run processing asynchronously so the HTTP response isn't blocked
	// by the forum, catalog and store calls.
	id := s.runner.Start()
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Deal pipeline started in the background.",
		"run_id":  id,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	status, ok := s.runner.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// queryInt parses a non-negative integer query parameter.
func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func (s *Server) handleListDeals(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", defaultPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	sort, err := storage.ParseSort(r.URL.Query().Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 {
		writeJSON(w, http.StatusOK, []models.Deal{})
		return
	}

	deals, err := s.store.List(r.Context(), storage.ListOptions{
		Skip:     skip,
		Limit:    limit,
		Category: r.URL.Query().Get("filter"),
		Sort:     sort,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(deals))
}

func (s *Server) handleGetDeal(w http.ResponseWriter, r *http.Request) {
	deal, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if deal == nil {
		writeError(w, http.StatusNotFound, "Deal not found")
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	deal, err := s.store.IncrementClicks(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if deal == nil {
		writeError(w, http.StatusNotFound, "Deal not found")
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	deals, err := s.store.Search(r.Context(), q, s.searchLimit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(deals))
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.Categories(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if categories == nil {
		categories = []models.CategoryCount{}
	}
	writeJSON(w, http.StatusOK, categories)
}

func nonNil(deals []models.Deal) []models.Deal {
	if deals == nil {
		return []models.Deal{}
	}
	return deals
}

