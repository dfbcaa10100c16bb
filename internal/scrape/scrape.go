// Package scrape fetches the source site's listing and article pages and
// extracts reference material for the enhancement pipeline. Both operations
// degrade to empty results on failure instead of raising: a reference that
// cannot be scraped is simply not a reference.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"repub/internal/config"
	"repub/internal/core"
	"repub/internal/logger"

	"github.com/PuerkitoBio/goquery"
)

const (
	minContentLength = 500
	maxContentLength = 5000
	defaultTimeout   = 30 * time.Second
)

// ScrapedArticle is the content extracted from one reference page. Empty
// Content marks a page whose extraction failed.
type ScrapedArticle struct {
	URL     string
	Title   string
	Content string
}

// contentStrategy is one attempt at locating the main body of a page.
// Strategies run in priority order; the first whose text clears the length
// threshold wins.
type contentStrategy struct {
	name     string
	selector string
}

var contentStrategies = []contentStrategy{
	{"semantic article", "article"},
	{"article-content class", ".article-content"},
	{"post-content class", ".post-content"},
	{"blog-content class", ".blog-content"},
	{"main article", "main article"},
	{"content class fragment", "[class*='content']"},
}

// Scraper crawls the source site over plain HTTP.
type Scraper struct {
	client    *http.Client
	userAgent string
	log       *slog.Logger
}

// NewScraper builds a scraper from configuration; the HTTP client carries the
// configured fetch timeout.
func NewScraper(cfg config.Scrape) *Scraper {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Scraper{
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
		log:       logger.Get(),
	}
}

// DiscoverLinks fetches the listing page at baseURL and collects up to max
// unique article links, trying structural selectors in priority order. A fetch
// failure yields an empty slice, never an error.
func (s *Scraper) DiscoverLinks(ctx context.Context, baseURL string, max int) []core.ReferenceArticle {
	doc, err := s.fetchDocument(ctx, baseURL)
	if err != nil {
		s.log.Warn("Failed to fetch listing page", "url", baseURL, "error", err.Error())
		return nil
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		s.log.Warn("Invalid listing URL", "url", baseURL, "error", err.Error())
		return nil
	}
	fragment := parsed.Path
	if fragment == "" {
		fragment = "/"
	}

	selectors := []string{
		fmt.Sprintf("article a[href*='%s']", fragment),
		".blog-post a",
		".article a",
		fmt.Sprintf("a[href*='%s']", fragment),
		"h2 a",
		"h3 a",
	}

	var found []core.ReferenceArticle
	seen := map[string]bool{}

	for _, selector := range selectors {
		doc.Find(selector).EachWithBreak(func(i int, sel *goquery.Selection) bool {
			if len(found) >= max {
				return false
			}

			href, ok := sel.Attr("href")
			if !ok || !strings.Contains(href, fragment) {
				return true
			}

			fullURL := resolveURL(parsed, href)
			if fullURL == "" || seen[fullURL] {
				return true
			}

			title := strings.TrimSpace(sel.Text())
			if title == "" {
				title = strings.TrimSpace(sel.Find("h2, h3").Text())
			}

			seen[fullURL] = true
			found = append(found, core.ReferenceArticle{Title: title, URL: fullURL})
			return true
		})

		if len(found) >= max {
			break
		}
	}

	s.log.Info("Discovered reference links", "url", baseURL, "count", len(found))
	return found
}

// ExtractContent fetches an article page and extracts its main body text.
// Content selectors run in priority order; the first yielding more than 500
// characters wins, otherwise all paragraph text is concatenated. The result is
// truncated to 5000 characters. A fetch failure yields a placeholder record
// with empty content.
func (s *Scraper) ExtractContent(ctx context.Context, pageURL string) ScrapedArticle {
	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		s.log.Warn("Failed to fetch reference page", "url", pageURL, "error", err.Error())
		return ScrapedArticle{URL: pageURL, Title: "Error loading"}
	}

	var content string
	for _, strategy := range contentStrategies {
		text := strings.TrimSpace(doc.Find(strategy.selector).First().Text())
		if len(text) > minContentLength {
			content = text
			s.log.Debug("Content strategy matched", "url", pageURL, "strategy", strategy.name)
			break
		}
	}

	if content == "" {
		var paragraphs []string
		doc.Find("p").Each(func(i int, sel *goquery.Selection) {
			paragraphs = append(paragraphs, sel.Text())
		})
		content = strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
		s.log.Debug("Fell back to paragraph concatenation", "url", pageURL, "length", len(content))
	}

	return ScrapedArticle{
		URL:     pageURL,
		Title:   extractTitle(doc),
		Content: truncate(content, maxContentLength),
	}
}

func (s *Scraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

// extractTitle tries the first heading, then the page title, then a placeholder.
func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		return title
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return "Untitled"
}

// resolveURL turns a possibly relative href into an absolute URL on the site
// origin. Returns "" for unparseable hrefs.
func resolveURL(base *url.URL, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	origin := &url.URL{Scheme: base.Scheme, Host: base.Host}
	return origin.ResolveReference(ref).String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back off to the previous rune boundary instead of splitting a rune.
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
