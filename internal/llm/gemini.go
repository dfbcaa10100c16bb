package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const defaultGeminiBase = "https://generativelanguage.googleapis.com"

// GeminiClient speaks the multimodal-generation protocol. Requests go to the
// beta endpoint first; a 404 there is retried once against the stable variant
// because model availability differs between the two.
type GeminiClient struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ Generator = (*GeminiClient)(nil)

// NewGeminiClient builds a client rooted at baseURL (the API origin, without
// a version path).
func NewGeminiClient(baseURL, model, apiKey string) *GeminiClient {
	return &GeminiClient{
		baseURL:    baseURL,
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate sends a single-part content array and reads the first candidate's
// first part.
func (c *GeminiClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	payload := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: system + "\n\n" + prompt}}},
		},
	}
	payload.GenerationConfig.Temperature = temperature
	payload.GenerationConfig.MaxOutputTokens = maxTokens

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal generation payload: %w", err)
	}

	text, status, err := c.post(ctx, c.versionURL("v1beta"), body)
	if status == http.StatusNotFound {
		text, _, err = c.post(ctx, c.versionURL("v1"), body)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *GeminiClient) versionURL(version string) string {
	return fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s", c.baseURL, version, c.model, c.apiKey)
}

func (c *GeminiClient) post(ctx context.Context, url string, body []byte) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", resp.StatusCode, fmt.Errorf("generation error %s: %s", resp.Status, readErrorBody(resp.Body))
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", resp.StatusCode, fmt.Errorf("decode generation response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", resp.StatusCode, fmt.Errorf("generation response contained no candidates")
	}

	return parsed.Candidates[0].Content.Parts[0].Text, resp.StatusCode, nil
}
