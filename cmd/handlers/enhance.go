package handlers

import (
	"context"
	"fmt"

	"repub/internal/config"
	"repub/internal/enhance"
	"repub/internal/llm"
	"repub/internal/logger"
	"repub/internal/scrape"

	"github.com/spf13/cobra"
)

// NewEnhanceCmd creates the enhance command for running the pipeline once
func NewEnhanceCmd() *cobra.Command {
	var (
		source        string
		maxReferences int
	)

	cmd := &cobra.Command{
		Use:   "enhance",
		Short: "Enhance the latest original article and publish the result",
		Long: `Run the enhancement pipeline once.

The pipeline fetches the latest original article from the API, scrapes
reference pages from the source site, rewrites the article through the
configured text-generation backend and publishes the result as a new
article linked to the original.

A run with nothing to do (no original articles, or no usable reference
content) exits cleanly without publishing.

Examples:
  repub enhance
  repub enhance --source https://beyondchats.com/blogs/ --max-references 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnhance(cmd.Context(), source, maxReferences)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "source site listing URL (default from config)")
	cmd.Flags().IntVar(&maxReferences, "max-references", 0, "number of reference pages to scrape (default from config: 2)")

	return cmd
}

func runEnhance(ctx context.Context, source string, maxReferences int) error {
	log := logger.Get()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	scrapeCfg := cfg.Scrape
	if source != "" {
		scrapeCfg.BaseURL = source
	}
	if maxReferences > 0 {
		scrapeCfg.MaxReferences = maxReferences
	}

	generator, err := llm.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("configure text-generation backend: %w", err)
	}

	pipeline := enhance.NewPipeline(
		enhance.NewClient(cfg.API.BaseURL),
		scrape.NewScraper(scrapeCfg),
		generator,
		scrapeCfg,
	)

	published, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}
	if published == nil {
		log.Info("Nothing to enhance")
		return nil
	}

	fmt.Printf("Published enhanced article %d: %s\n", published.ID, published.Title)
	return nil
}
