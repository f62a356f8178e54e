package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"golang.org/x/oauth2/google"
)

// GenOpts configures a single generation call (spec §4.7.2): temperature,
// max output tokens, and stop sequences are all caller-configurable per
// request rather than fixed at construction time.
type GenOpts struct {
	Temperature    float64
	MaxOutputTokens int
	StopSequences   []string
}

// GenAIProvider wraps the Vertex AI Gemini client. Supports both regional
// endpoints (via the Go SDK) and the global endpoint (via REST), since the
// SDK does not support "global" locations.
type GenAIProvider struct {
	client     *genai.Client // nil when using the global endpoint
	httpClient *http.Client  // used for global endpoint REST calls
	project    string
	location   string
	model      string
	useREST    bool
}

// NewGenAIProvider creates a GenAIProvider for the given model.
func NewGenAIProvider(ctx context.Context, project, location, model string) (*GenAIProvider, error) {
	if location == "global" {
		httpClient, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return nil, fmt.Errorf("provider.NewGenAIProvider: default credentials: %w", err)
		}
		return &GenAIProvider{
			httpClient: httpClient,
			project:    project,
			location:   location,
			model:      model,
			useREST:    true,
		}, nil
	}

	client, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, fmt.Errorf("provider.NewGenAIProvider: %w", err)
	}
	return &GenAIProvider{
		client:   client,
		project:  project,
		location: location,
		model:    model,
	}, nil
}

// GenerateContent sends a prompt to Gemini and returns the text response.
// Retries up to 3 times on 429/RESOURCE_EXHAUSTED with 500->1000->2000ms
// backoff (4s ceiling).
func (p *GenAIProvider) GenerateContent(ctx context.Context, systemPrompt, userPrompt string, opts GenOpts) (string, error) {
	return withRetry(ctx, "llm", "GenerateContent", func() (string, error) {
		if p.useREST {
			return p.generateContentREST(ctx, systemPrompt, userPrompt, opts)
		}
		return p.generateContentSDK(ctx, systemPrompt, userPrompt, opts)
	})
}

func (p *GenAIProvider) generateContentSDK(ctx context.Context, systemPrompt, userPrompt string, opts GenOpts) (string, error) {
	model := p.client.GenerativeModel(p.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	temp := float32(opts.Temperature)
	model.Temperature = &temp
	if opts.MaxOutputTokens > 0 {
		maxTok := int32(opts.MaxOutputTokens)
		model.MaxOutputTokens = &maxTok
	}
	if len(opts.StopSequences) > 0 {
		model.StopSequences = opts.StopSequences
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("provider.GenerateContent: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("provider.GenerateContent: empty response from model")
	}

	var parts []string
	for _, pt := range resp.Candidates[0].Content.Parts {
		if t, ok := pt.(genai.Text); ok {
			parts = append(parts, string(t))
		}
	}
	return strings.Join(parts, ""), nil
}

type restGenerateRequest struct {
	Contents          []restContent         `json:"contents"`
	SystemInstruction *restContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *restGenerationConfig `json:"generationConfig,omitempty"`
}

type restContent struct {
	Role  string     `json:"role"`
	Parts []restPart `json:"parts"`
}

type restPart struct {
	Text string `json:"text"`
}

type restGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type restGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *GenAIProvider) generateContentREST(ctx context.Context, systemPrompt, userPrompt string, opts GenOpts) (string, error) {
	url := fmt.Sprintf(
		"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:generateContent",
		p.project, p.model,
	)
	return p.generateContentRESTAgainst(ctx, url, systemPrompt, userPrompt, opts)
}

// generateContentRESTAgainst performs the REST generateContent call against
// an explicit endpoint URL, separated out from generateContentREST so tests
// can point it at a local server instead of the real Vertex AI host.
func (p *GenAIProvider) generateContentRESTAgainst(ctx context.Context, url, systemPrompt, userPrompt string, opts GenOpts) (string, error) {
	temp := opts.Temperature
	genCfg := &restGenerationConfig{Temperature: &temp, StopSequences: opts.StopSequences}
	if opts.MaxOutputTokens > 0 {
		genCfg.MaxOutputTokens = &opts.MaxOutputTokens
	}

	reqBody := restGenerateRequest{
		Contents: []restContent{
			{Role: "user", Parts: []restPart{{Text: userPrompt}}},
		},
		GenerationConfig: genCfg,
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &restContent{
			Role:  "user",
			Parts: []restPart{{Text: systemPrompt}},
		}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("provider.GenerateContent: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("provider.GenerateContent: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider.GenerateContent: call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("provider.GenerateContent: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider.GenerateContent: status %d: %s", resp.StatusCode, respBody)
	}

	var genResp restGenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("provider.GenerateContent: decode: %w", err)
	}

	if genResp.Error != nil {
		return "", fmt.Errorf("provider.GenerateContent: API error %d: %s", genResp.Error.Code, genResp.Error.Message)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("provider.GenerateContent: empty response from model")
	}

	var parts []string
	for _, pt := range genResp.Candidates[0].Content.Parts {
		if pt.Text != "" {
			parts = append(parts, pt.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("provider.GenerateContent: no text in response")
	}
	return strings.Join(parts, ""), nil
}

// HealthCheck validates the Vertex AI connection by making a minimal call.
func (p *GenAIProvider) HealthCheck(ctx context.Context) error {
	resp, err := p.GenerateContent(ctx, "", "Reply with only: OK", GenOpts{Temperature: 0, MaxOutputTokens: 10})
	if err != nil {
		return fmt.Errorf("vertex AI health check failed (model: %s, location: %s): %w", p.model, p.location, err)
	}
	if resp == "" {
		return fmt.Errorf("vertex AI returned empty response (model: %s)", p.model)
	}
	slog.Info("vertex ai health check passed", "model", p.model, "location", p.location)
	return nil
}

// Close releases the underlying client, if any.
func (p *GenAIProvider) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
