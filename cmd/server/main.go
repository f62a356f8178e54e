package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/connexus-ai/ragbox-backend/internal/config"
	"github.com/connexus-ai/ragbox-backend/internal/engine"
	retrievalmetrics "github.com/connexus-ai/ragbox-backend/internal/metrics"
	"github.com/connexus-ai/ragbox-backend/internal/store"
)

const Version = "0.1.0"

// queryRequest is the wire shape the gateway (out of scope per spec §1)
// would translate an HTTP POST /query body into before calling
// Engine.Query. Kept minimal: this binary exists to demonstrate the core
// API, not to reimplement the production gateway.
type queryRequest struct {
	Question         string   `json:"question"`
	K                 int      `json:"k"`
	ActiveSources     []string `json:"active_sources"`
	UseAgenticRAG     bool     `json:"use_agentic_rag"`
	SearchMode        string   `json:"search_mode"`
	SemanticWeight    float64  `json:"semantic_weight"`
	KeywordWeight     float64  `json:"keyword_weight"`
	RerankTopK        int      `json:"rerank_top_k"`
	MaxSubQueries     int      `json:"max_sub_queries"`
	ChunksPerSubquery int      `json:"chunks_per_subquery"`
}

func newRouter(eng *engine.Engine, reg *prometheus.Registry) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","version":"%s"}`, Version)
	})

	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	if eng != nil {
		r.Post("/query", queryHandler(eng))
		r.Get("/occurrences", occurrencesHandler(eng))
	}

	return r
}

// queryHandler is the demo surface for the core API's Query entry point
// (spec §6). The surrounding gateway (auth, rate limiting, request
// validation beyond JSON shape) is out of scope per spec §1 and is not
// reproduced here.
func queryHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Question == "" {
			writeJSONError(w, http.StatusBadRequest, "question is required")
			return
		}

		resp, err := eng.Query(r.Context(), req.Question, engine.QueryOptions{
			K:                 req.K,
			ActiveSources:     req.ActiveSources,
			UseAgenticRAG:     req.UseAgenticRAG,
			SearchMode:        req.SearchMode,
			SemanticWeight:    req.SemanticWeight,
			KeywordWeight:     req.KeywordWeight,
			RerankTopK:        req.RerankTopK,
			MaxSubQueries:     req.MaxSubQueries,
			ChunksPerSubquery: req.ChunksPerSubquery,
		})
		if err != nil {
			slog.Error("handler.Query: engine.Query failed", "error", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// occurrencesHandler is the demo surface for Engine.FindAllOccurrences.
func occurrencesHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		term := r.URL.Query().Get("term")
		if term == "" {
			writeJSONError(w, http.StatusBadRequest, "term is required")
			return
		}
		var sources []string
		if s := r.URL.Query().Get("sources"); s != "" {
			sources = []string{s}
		}
		resp := eng.FindAllOccurrences(r.Context(), term, sources, 0)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "8080"
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}

	pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return fmt.Errorf("store.NewPool: %w", err)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	m := retrievalmetrics.New(reg)

	eng, err := engine.New(ctx, cfg, pool, m)
	if err != nil {
		return fmt.Errorf("engine.New: %w", err)
	}
	defer eng.Close()

	port := getPort()
	router := newRouter(eng, reg)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("ragbox-backend v%s starting on port %s", Version, port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down gracefully", sig)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Println("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
