package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRerankProvider_Rerank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Query != "vacation policy" {
			t.Errorf("query = %q, want %q", req.Query, "vacation policy")
		}
		if len(req.Passages) != 2 {
			t.Fatalf("expected 2 passages, got %d", len(req.Passages))
		}
		resp := rerankResponse{Scores: []struct {
			ID    string  `json:"id"`
			Score float64 `json:"score"`
		}{
			{ID: "chunk-1", Score: 0.9},
			{ID: "chunk-2", Score: 0.3},
		}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewRerankProvider(server.URL, server.Client())
	results, err := p.Rerank(context.Background(), "vacation policy", []RerankPassage{
		{ID: "chunk-1", Text: "the vacation policy allows 15 days"},
		{ID: "chunk-2", Text: "unrelated text about parking"},
	})
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(results) != 2 || results[0].ID != "chunk-1" || results[0].Score != 0.9 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestRerankProvider_Rerank_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("backend down"))
	}))
	defer server.Close()

	p := NewRerankProvider(server.URL, server.Client())
	_, err := p.Rerank(context.Background(), "q", []RerankPassage{{ID: "a", Text: "text"}})
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestRerankProvider_HealthCheck_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewRerankProvider(server.URL, server.Client())
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check failure")
	}
}
