// Package enhance drives the article enhancement pipeline: fetch the latest
// original, scrape reference pages, rewrite the article through a
// text-generation backend and publish the result as a linked derivative.
// The run is strictly sequential; citation order follows discovery order.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"repub/internal/config"
	"repub/internal/core"
	"repub/internal/llm"
	"repub/internal/logger"
	"repub/internal/scrape"

	"github.com/google/uuid"
)

const (
	// teaserLength is the slice of the enhanced text stored as the short content.
	teaserLength = 500
	// promptReferenceLength caps each reference body inside the prompt.
	promptReferenceLength = 2000
)

const systemPrompt = "You are an expert content writer specializing in creating high-quality, " +
	"well-formatted articles that rank well on search engines."

// Pipeline wires the collaborators of one enhancement run.
type Pipeline struct {
	api       *Client
	scraper   *scrape.Scraper
	generator llm.Generator
	cfg       config.Scrape
	log       *slog.Logger
}

// NewPipeline builds a pipeline from its collaborators.
func NewPipeline(api *Client, scraper *scrape.Scraper, generator llm.Generator, cfg config.Scrape) *Pipeline {
	return &Pipeline{
		api:       api,
		scraper:   scraper,
		generator: generator,
		cfg:       cfg,
		log:       logger.Get(),
	}
}

// Run executes the pipeline once. A (nil, nil) return is a clean abort: there
// was nothing to enhance or no usable references. Any error is fatal to the
// run; no partial state is left behind because publishing is the only write.
func (p *Pipeline) Run(ctx context.Context) (*core.Article, error) {
	log := p.log.With("run_id", uuid.NewString())
	log.Info("Enhancement run started", "source", p.cfg.BaseURL)

	original, err := p.api.LatestOriginal(ctx)
	if err != nil {
		if errors.Is(err, ErrNoArticles) {
			log.Info("No original articles to enhance, nothing to do")
			return nil, nil
		}
		return nil, fmt.Errorf("resolve latest original: %w", err)
	}
	log.Info("Resolved latest original", "article_id", original.ID, "title", original.Title)

	links := p.scraper.DiscoverLinks(ctx, p.cfg.BaseURL, p.cfg.MaxReferences)
	if len(links) == 0 {
		log.Info("No reference links discovered, aborting run")
		return nil, nil
	}

	var references []scrape.ScrapedArticle
	for _, link := range links {
		scraped := p.scraper.ExtractContent(ctx, link.URL)
		if scraped.Content == "" {
			log.Warn("Reference yielded no content, dropping", "url", link.URL)
			continue
		}
		references = append(references, scraped)
	}
	if len(references) == 0 {
		log.Info("No reference content extracted, aborting run")
		return nil, nil
	}
	log.Info("Extracted reference articles", "count", len(references))

	enhanced, err := p.generator.Generate(ctx, systemPrompt, buildPrompt(original, references))
	if err != nil {
		return nil, fmt.Errorf("generate enhanced article: %w", err)
	}
	log.Info("Generated enhanced article", "length", len(enhanced))

	citations := make([]core.ReferenceArticle, len(references))
	for i, ref := range references {
		citations[i] = core.ReferenceArticle{Title: ref.Title, URL: ref.URL}
	}

	published, err := p.api.Publish(ctx, PublishInput{
		Title:             original.Title + " (Enhanced)",
		Content:           teaser(enhanced),
		FullContent:       enhanced + formatCitations(citations),
		Link:              original.Link,
		Date:              nowRFC3339(),
		SourceURL:         original.SourceURL,
		IsUpdated:         true,
		OriginalArticleID: original.ID,
		ReferenceArticles: citations,
	})
	if err != nil {
		return nil, fmt.Errorf("publish enhanced article: %w", err)
	}

	log.Info("Enhancement run completed", "article_id", published.ID, "original_article_id", original.ID)
	return published, nil
}

// buildPrompt combines the original body with the reference articles into a
// single rewrite instruction.
func buildPrompt(original *core.Article, references []scrape.ScrapedArticle) string {
	refTexts := make([]string, len(references))
	for i, ref := range references {
		refTexts[i] = fmt.Sprintf("Title: %s\nContent: %s", ref.Title, clip(ref.Content, promptReferenceLength))
	}

	return fmt.Sprintf(`You are an expert content writer. Your task is to update and enhance an article to match the formatting, style, and content quality of top-ranking articles on Google.

Original Article:
Title: %s
Content: %s

Reference Articles (top-ranking articles for similar topics):
%s

Please:
1. Update the article's formatting to match the style of the reference articles
2. Improve the content quality, structure, and readability
3. Maintain the core message and information from the original article
4. Use similar heading structures, paragraph lengths, and writing style as the reference articles
5. Make it more engaging and SEO-friendly
6. Ensure the content flows naturally

Return the enhanced article with proper formatting. Include headings, subheadings, and well-structured paragraphs.`,
		original.Title, original.EffectiveBody(), strings.Join(refTexts, "\n\n---\n\n"))
}

// formatCitations renders the numbered markdown reference list appended to the
// enhanced text. Order matches discovery order.
func formatCitations(citations []core.ReferenceArticle) string {
	var b strings.Builder
	b.WriteString("\n\n---\n\n## References\n\n")
	for i, ref := range citations {
		fmt.Fprintf(&b, "%d. [%s](%s)", i+1, ref.Title, ref.URL)
		if i < len(citations)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func teaser(text string) string {
	return clip(text, teaserLength)
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
