package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docpipe/api/internal/config"
	"github.com/docpipe/api/internal/llm"
	"github.com/docpipe/api/internal/model"
)

// GeminiClient handles communication with the Gemini generateContent API.
type GeminiClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature,omitempty"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// NewGeminiClient creates a new Gemini API client
func NewGeminiClient(cfg *config.ProviderConfig) *GeminiClient {
	return &GeminiClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// Generate sends a generateContent request.
func (c *GeminiClient) Generate(ctx context.Context, system, user string) (string, llm.Usage, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: user}}},
		},
	}
	if system != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	reqBody.GenerationConfig.Temperature = 0.3
	reqBody.GenerationConfig.MaxOutputTokens = 4096

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", llm.Usage{}, &llm.ProviderError{
			Family:     model.ProviderGemini,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	var genResp geminiResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", llm.Usage{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	usage := llm.Usage{
		PromptTokens:   genResp.UsageMetadata.PromptTokenCount,
		ResponseTokens: genResp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:    genResp.UsageMetadata.TotalTokenCount,
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 ||
		genResp.Candidates[0].Content.Parts[0].Text == "" {
		return "", usage, llm.ErrEmptyResponse
	}

	return genResp.Candidates[0].Content.Parts[0].Text, usage, nil
}

// Family returns the provider family for retry policy selection.
func (c *GeminiClient) Family() model.Provider { return model.ProviderGemini }

// Model returns the configured model name.
func (c *GeminiClient) Model() string { return c.model }

// IsConfigured returns true if the client has valid configuration
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}
