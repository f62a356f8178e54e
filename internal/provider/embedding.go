package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2/google"
)

// EmbeddingProvider calls the Vertex AI text embedding REST API. Both the
// Search Executor (query embeddings) and the ingestion-facing document
// embedding path (out of scope here) share this adapter.
type EmbeddingProvider struct {
	project  string
	location string
	model    string
	client   *http.Client
}

// NewEmbeddingProvider creates an EmbeddingProvider using default credentials.
func NewEmbeddingProvider(ctx context.Context, project, location, model string) (*EmbeddingProvider, error) {
	client, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("provider.NewEmbeddingProvider: %w", err)
	}
	return &EmbeddingProvider{
		project:  project,
		location: location,
		model:    model,
		client:   client,
	}, nil
}

// Dimensions reports the vector size this provider's model produces, used
// by the Search Executor's startup dimension check (spec §4.2).
func (p *EmbeddingProvider) Dimensions(ctx context.Context) (int, error) {
	vecs, err := p.EmbedQuery(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, err
	}
	if len(vecs) == 0 {
		return 0, fmt.Errorf("provider.Dimensions: empty response")
	}
	return len(vecs[0]), nil
}

type embeddingRequest struct {
	Instances []embeddingInstance `json:"instances"`
}

type embeddingInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type"`
}

type embeddingResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

// EmbedDocuments generates embeddings using RETRIEVAL_DOCUMENT task type,
// for chunks that will be stored and searched against.
func (p *EmbeddingProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embedWithTaskType(ctx, texts, "RETRIEVAL_DOCUMENT")
}

// EmbedQuery generates embeddings using RETRIEVAL_QUERY task type, for
// search queries fed into C2/C3's k-NN stage.
func (p *EmbeddingProvider) EmbedQuery(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embedWithTaskType(ctx, texts, "RETRIEVAL_QUERY")
}

// embedWithTaskType sends texts to the Vertex AI embedding API with the
// given task_type. text-embedding-004 produces different vector spaces for
// RETRIEVAL_DOCUMENT vs RETRIEVAL_QUERY, optimized for asymmetric retrieval.
// Retries up to 3 times on 429/RESOURCE_EXHAUSTED with 500->1000->2000ms
// backoff (4s ceiling).
func (p *EmbeddingProvider) embedWithTaskType(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	return withRetry(ctx, "embedding", "EmbedTexts", func() ([][]float32, error) {
		return p.doEmbed(ctx, texts, taskType)
	})
}

func (p *EmbeddingProvider) doEmbed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	instances := make([]embeddingInstance, len(texts))
	for i, t := range texts {
		instances[i] = embeddingInstance{Content: t, TaskType: taskType}
	}

	reqBody, err := json.Marshal(embeddingRequest{Instances: instances})
	if err != nil {
		return nil, fmt.Errorf("provider.EmbedTexts marshal: %w", err)
	}

	url := p.buildEndpointURL()

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("provider.EmbedTexts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider.EmbedTexts call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if isRetryableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("provider.EmbedTexts: 429/503 status %d: %s", resp.StatusCode, body)
		}
		return nil, fmt.Errorf("provider.EmbedTexts: status %d: %s", resp.StatusCode, body)
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("provider.EmbedTexts decode: %w", err)
	}

	results := make([][]float32, len(embResp.Predictions))
	for i, p := range embResp.Predictions {
		results[i] = p.Embeddings.Values
	}
	return results, nil
}

// buildEndpointURL returns the correct Vertex AI endpoint URL. For "global"
// location, uses the non-regional endpoint.
func (p *EmbeddingProvider) buildEndpointURL() string {
	if p.location == "global" {
		return fmt.Sprintf(
			"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:predict",
			p.project, p.model,
		)
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		p.location, p.project, p.location, p.model,
	)
}

// HealthCheck validates the embedding service connection.
func (p *EmbeddingProvider) HealthCheck(ctx context.Context) error {
	if _, err := p.EmbedQuery(ctx, []string{"health check"}); err != nil {
		return fmt.Errorf("embedding health check failed: %w", err)
	}
	return nil
}
