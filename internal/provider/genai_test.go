package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenAIProvider_GenerateContentREST(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req restGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.GenerationConfig == nil || req.GenerationConfig.Temperature == nil {
			t.Fatalf("expected generation config with temperature, got %+v", req.GenerationConfig)
		}
		if *req.GenerationConfig.Temperature != 0.1 {
			t.Errorf("temperature = %v, want 0.1", *req.GenerationConfig.Temperature)
		}
		if req.GenerationConfig.MaxOutputTokens == nil || *req.GenerationConfig.MaxOutputTokens != 2500 {
			t.Errorf("max output tokens = %v, want 2500", req.GenerationConfig.MaxOutputTokens)
		}
		resp := restGenerateResponse{}
		resp.Candidates = []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		}{
			{Content: struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			}{Parts: []struct {
				Text string `json:"text"`
			}{{Text: "hello from gemini"}}}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := &GenAIProvider{
		httpClient: server.Client(),
		project:    "proj",
		location:   "global",
		model:      "gemini-2.0-flash",
		useREST:    true,
	}

	// generateContentREST always targets the real Vertex AI host; this test
	// exercises the request/response marshalling logic directly.
	got, err := p.generateContentRESTAgainst(context.Background(), server.URL, "sys", "hi", GenOpts{Temperature: 0.1, MaxOutputTokens: 2500})
	if err != nil {
		t.Fatalf("generateContentREST: %v", err)
	}
	if got != "hello from gemini" {
		t.Errorf("got %q, want %q", got, "hello from gemini")
	}
}

func TestRestGenerateResponse_ParsesError(t *testing.T) {
	raw := `{"error":{"code":429,"message":"quota exceeded"}}`
	var resp restGenerateResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != 429 {
		t.Fatalf("unexpected error field: %+v", resp.Error)
	}
}

func TestGenOpts_StopSequencesSerialize(t *testing.T) {
	cfg := restGenerationConfig{StopSequences: []string{"Best regards", "Thank you"}}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round restGenerationConfig
	if err := json.Unmarshal(b, &round); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(round.StopSequences) != 2 || round.StopSequences[0] != "Best regards" {
		t.Errorf("round-trip mismatch: %+v", round.StopSequences)
	}
}
