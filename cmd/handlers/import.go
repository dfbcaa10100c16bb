package handlers

import (
	"context"
	"fmt"

	"repub/internal/config"
	"repub/internal/logger"
	"repub/internal/scrape"
	"repub/internal/store"

	"github.com/spf13/cobra"
)

const importExcerptLength = 500

// NewImportCmd creates the import command for seeding the catalog from the
// source site
func NewImportCmd() *cobra.Command {
	var (
		source string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Scrape the source site and store articles as originals",
		Long: `Scrape the configured source site listing, extract the content of each
discovered post and store it as an original article.

Articles whose exact title already exists in the store are skipped, so the
command is safe to re-run.

Examples:
  repub import
  repub import --limit 5 --source https://beyondchats.com/blogs/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), source, limit)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "source site listing URL (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 5, "maximum number of articles to import")

	return cmd
}

func runImport(ctx context.Context, source string, limit int) error {
	log := logger.Get()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	scrapeCfg := cfg.Scrape
	if source != "" {
		scrapeCfg.BaseURL = source
	}

	st, err := store.NewStore(cfg.Database.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	existing, err := existingTitles(ctx, st)
	if err != nil {
		return fmt.Errorf("load existing titles: %w", err)
	}

	scraper := scrape.NewScraper(scrapeCfg)
	links := scraper.DiscoverLinks(ctx, scrapeCfg.BaseURL, limit)
	if len(links) == 0 {
		log.Info("No article links discovered, nothing to import", "source", scrapeCfg.BaseURL)
		return nil
	}
	log.Info("Discovered article links", "count", len(links))

	imported := 0
	for _, link := range links {
		scraped := scraper.ExtractContent(ctx, link.URL)
		if scraped.Content == "" {
			log.Warn("Skipping article with no content", "url", link.URL)
			continue
		}
		if existing[scraped.Title] {
			log.Info("Skipping already imported article", "title", scraped.Title)
			continue
		}

		content := scraped.Content
		if len(content) > importExcerptLength {
			content = content[:importExcerptLength]
		}
		article, err := st.Create(ctx, store.Input{
			Title:       &scraped.Title,
			Content:     &content,
			FullContent: &scraped.Content,
			Link:        &link.URL,
			SourceURL:   &scrapeCfg.BaseURL,
		})
		if err != nil {
			return fmt.Errorf("store article %q: %w", scraped.Title, err)
		}
		existing[scraped.Title] = true
		imported++
		log.Info("Imported article", "article_id", article.ID, "title", article.Title)
	}

	fmt.Printf("Imported %d of %d discovered articles\n", imported, len(links))
	return nil
}

// existingTitles pages through the store and collects every stored title.
func existingTitles(ctx context.Context, st *store.Store) (map[string]bool, error) {
	const pageSize = 100
	titles := map[string]bool{}
	for page := 1; ; page++ {
		articles, _, err := st.List(ctx, store.Filter{Page: page, PerPage: pageSize})
		if err != nil {
			return nil, err
		}
		for _, a := range articles {
			titles[a.Title] = true
		}
		if len(articles) < pageSize {
			return titles, nil
		}
	}
}
