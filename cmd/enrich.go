package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadforge/leadforge/internal/discover"
	"github.com/leadforge/leadforge/internal/enrich"
	"github.com/leadforge/leadforge/internal/fetch"
)

var (
	enrichBrowser  bool
	enrichPlatform string
	enrichLimit    int
	enrichDelay    time.Duration
)

var enrichCmd = &cobra.Command{
	Use:   "enrich [record-id...]",
	Short: "Visit detail pages to fill in missing contact fields",
	Long:  "Fetches each record's source page and fills empty fields (company, email, phone, website) from it. Without ids, picks records that still lack contact data.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		var browser fetch.Fetcher
		if enrichBrowser {
			b := fetch.NewBrowserFetcher()
			defer b.Close()
			browser = b
		}

		e := enrich.New(st, fetch.NewHTTPFetcher(), browser,
			cfg.Scrape.DefaultRegion, enrichDelay)

		sum, err := e.EnrichBatch(ctx, args,
			discover.Platform(enrichPlatform), enrichBrowser, enrichLimit)
		if err != nil {
			return err
		}

		zap.L().Info("enrichment finished",
			zap.Int("total", sum.Total),
			zap.Int("enriched", sum.Enriched),
			zap.Int("skipped", sum.Skipped),
			zap.Int("failed", sum.Failed))
		return printJSON(sum)
	},
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichBrowser, "browser", false, "fetch detail pages with the headless browser")
	enrichCmd.Flags().StringVar(&enrichPlatform, "platform", "", "force a platform selector set instead of detecting it")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 50, "max records to select when no ids are given")
	enrichCmd.Flags().DurationVar(&enrichDelay, "delay", 2*time.Second, "pause between detail-page fetches")
	rootCmd.AddCommand(enrichCmd)
}
