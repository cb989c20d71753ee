package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadforge/leadforge/internal/crm"
	"github.com/leadforge/leadforge/internal/fetch"
	"github.com/leadforge/leadforge/internal/model"
	"github.com/leadforge/leadforge/internal/runner"
	"github.com/leadforge/leadforge/internal/sheets"
	"github.com/leadforge/leadforge/internal/store"
	"github.com/leadforge/leadforge/internal/syncer"
	"github.com/leadforge/leadforge/internal/upsert"
)

// appEnv holds the wired collaborators shared by the run/sync/serve commands.
type appEnv struct {
	Store   store.Store
	Browser *fetch.BrowserFetcher
	Runner  *runner.Runner
	Syncer  *syncer.Syncer
	Sheets  sheets.Appender
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Browser != nil {
		_ = e.Browser.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "", "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv sets up the store, fetchers, upsert engine, CRM syncer, sheet sink,
// and runner. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	browser := fetch.NewBrowserFetcher()
	pager := fetch.NewPager(fetch.NewHTTPFetcher(), browser)
	engine := upsert.New(st, cfg.Scrape.DefaultRegion, cfg.Upsert.MatchByHash)

	var crmClient crm.Client
	if cfg.CRM.Enabled && cfg.CRM.Configured() {
		opts := []crm.Option{crm.WithTimeout(time.Duration(cfg.CRM.TimeoutSecs) * time.Second)}
		if cfg.CRM.RateRPS > 0 {
			opts = append(opts, crm.WithRateLimit(cfg.CRM.RateRPS))
		}
		crmClient, err = crm.NewClient(cfg.CRM.BaseURL, cfg.CRM.Token, opts...)
		if err != nil {
			_ = browser.Close()
			_ = st.Close()
			return nil, err
		}
		zap.L().Info("crm sync enabled", zap.String("base_url", cfg.CRM.BaseURL))
	} else if cfg.CRM.Enabled {
		zap.L().Warn("crm sync enabled but base_url or token missing, records will not sync")
	}

	sync := syncer.New(st, crmClient, syncer.Config{
		Enabled:     cfg.CRM.Enabled,
		Configured:  cfg.CRM.Configured(),
		Defaults:    cfg.CRM.Defaults,
		MaxAttempts: cfg.Sync.MaxAttempts,
	})

	var appender sheets.Appender
	if cfg.Sheets.Enabled && cfg.Sheets.WebhookURL != "" {
		appender = sheets.NewWebhookAppender(cfg.Sheets.WebhookURL)
		zap.L().Info("sheet append enabled")
	}

	run := runner.New(st, pager, engine, &recordHooks{syncer: sync, sheets: appender})

	return &appEnv{
		Store:   st,
		Browser: browser,
		Runner:  run,
		Syncer:  sync,
		Sheets:  appender,
	}, nil
}

// recordHooks wires the per-record side effects of a scrape run: every
// upserted record gets a sync attempt, every created record a sheet row.
// Failures are logged, never propagated; a sink problem must not fail a run.
type recordHooks struct {
	syncer *syncer.Syncer
	sheets sheets.Appender
}

func (h *recordHooks) RecordReady(ctx context.Context, rec *model.Record) {
	if _, err := h.syncer.SyncRecord(ctx, rec.ID, false); err != nil {
		zap.L().Warn("post-scrape sync failed",
			zap.String("record_id", rec.ID),
			zap.Error(err))
	}
}

func (h *recordHooks) RecordCreated(ctx context.Context, rec *model.Record) {
	if h.sheets == nil {
		return
	}
	if err := h.sheets.AppendRecord(ctx, rec); err != nil {
		zap.L().Warn("sheet append failed",
			zap.String("record_id", rec.ID),
			zap.Error(err))
	}
}
