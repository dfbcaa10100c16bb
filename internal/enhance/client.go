package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"repub/internal/core"
)

// ErrNoArticles reports an API with no original article to enhance. The
// pipeline treats it as a clean abort, not a failure.
var ErrNoArticles = errors.New("no original articles available")

// Client talks to the article API. Each endpoint has one strict response
// schema; a shape mismatch is a hard error.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds an API client. baseURL includes the /api prefix.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

type articleEnvelope struct {
	Success bool          `json:"success"`
	Data    *core.Article `json:"data"`
	Message string        `json:"message"`
}

type listEnvelope struct {
	Success bool           `json:"success"`
	Data    []core.Article `json:"data"`
}

// PublishInput is the create payload for an enhanced article.
type PublishInput struct {
	Title             string                  `json:"title"`
	Content           string                  `json:"content"`
	FullContent       string                  `json:"full_content"`
	Link              string                  `json:"link,omitempty"`
	Date              string                  `json:"date"`
	SourceURL         string                  `json:"source_url,omitempty"`
	IsUpdated         bool                    `json:"is_updated"`
	OriginalArticleID int64                   `json:"original_article_id"`
	ReferenceArticles []core.ReferenceArticle `json:"reference_articles"`
}

// LatestOriginal resolves the newest non-derivative article. A 404 from the
// dedicated endpoint falls back to a filtered listing; an empty store either
// way is ErrNoArticles.
func (c *Client) LatestOriginal(ctx context.Context) (*core.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/articles/latest", nil)
	if err != nil {
		return nil, fmt.Errorf("build latest request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch latest article: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var envelope articleEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return nil, fmt.Errorf("decode latest response: %w", err)
		}
		if !envelope.Success || envelope.Data == nil {
			return nil, fmt.Errorf("latest response missing article data")
		}
		return envelope.Data, nil
	case resp.StatusCode == http.StatusNotFound:
		return c.latestFromListing(ctx)
	default:
		return nil, fmt.Errorf("latest endpoint returned %s", resp.Status)
	}
}

func (c *Client) latestFromListing(ctx context.Context) (*core.Article, error) {
	endpoint := c.baseURL + "/articles?" + url.Values{
		"is_updated": {"false"},
		"per_page":   {"1"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build listing request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch article listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing endpoint returned %s", resp.Status)
	}

	var envelope listEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode listing response: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil, ErrNoArticles
	}
	return &envelope.Data[0], nil
}

// Publish creates a new article and returns the stored row.
func (c *Client) Publish(ctx context.Context, in PublishInput) (*core.Article, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal publish payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/articles", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("publish article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("publish returned %s: %s", resp.Status, readErrorBody(resp))
	}

	var envelope articleEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode publish response: %w", err)
	}
	if !envelope.Success || envelope.Data == nil {
		return nil, fmt.Errorf("publish response missing article data")
	}

	return envelope.Data, nil
}

func readErrorBody(resp *http.Response) string {
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if buf.Len() > 1024 {
		buf.Truncate(1024)
	}
	return buf.String()
}
