// Package model defines the core domain types of the scrape-and-sync
// pipeline: targets, runs, records, and per-record sync state.
package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/leadforge/leadforge/internal/extract"
)

// TargetMode selects how a target's pages are fetched.
type TargetMode string

const (
	// ModeStatic fetches pages with a plain HTTP GET.
	ModeStatic TargetMode = "static"
	// ModeBrowser renders pages in a headless browser before extraction.
	ModeBrowser TargetMode = "browser"
)

// Target is a configured scrape source. The pipeline never deletes targets;
// operators create and edit them, runs only touch LastRunAt.
type Target struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Enabled     bool            `json:"enabled"`
	Mode        TargetMode      `json:"mode"`
	StartURL    string          `json:"start_url"`
	RunInterval time.Duration   `json:"run_interval"`
	RawConfig   json.RawMessage `json:"config"`
	LastRunAt   *time.Time      `json:"last_run_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TargetConfig is the parsed form of a target's selector configuration
// document. Parsing and validation happen once at target-load time so a bad
// selector or regex surfaces before any network call.
type TargetConfig struct {
	ItemSelector     string
	Fields           map[string]extract.FieldSpec
	NextPageSelector string
	MaxPages         int
	Headers          map[string]string
	Timeout          time.Duration
	WaitUntil        string
}

// rawTargetConfig mirrors the JSON configuration document shape.
type rawTargetConfig struct {
	ItemSelector     string                     `json:"item_selector"`
	ItemsSelector    string                     `json:"items_selector"` // legacy alias
	Fields           map[string]json.RawMessage `json:"fields"`
	NextPageSelector string                     `json:"next_page_selector"`
	MaxPages         int                        `json:"max_pages"`
	Headers          map[string]string          `json:"headers"`
	TimeoutSeconds   int                        `json:"timeout_seconds"`
	WaitUntil        string                     `json:"wait_until"`
}

// ParseTargetConfig parses and validates a selector configuration document.
func ParseTargetConfig(raw []byte) (*TargetConfig, error) {
	if len(raw) == 0 {
		return nil, eris.New("config: empty selector config")
	}

	var rc rawTargetConfig
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, eris.Wrap(err, "config: parse selector config")
	}

	itemSelector := rc.ItemSelector
	if itemSelector == "" {
		itemSelector = rc.ItemsSelector
	}
	if itemSelector == "" {
		return nil, eris.New("config: item_selector is required")
	}
	if len(rc.Fields) == 0 {
		return nil, eris.New("config: at least one fields entry is required")
	}

	fields, err := extract.ParseFields(rc.Fields)
	if err != nil {
		return nil, eris.Wrap(err, "config: selector")
	}

	cfg := &TargetConfig{
		ItemSelector:     itemSelector,
		Fields:           fields,
		NextPageSelector: rc.NextPageSelector,
		MaxPages:         rc.MaxPages,
		Headers:          rc.Headers,
		WaitUntil:        rc.WaitUntil,
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if rc.TimeoutSeconds <= 0 {
		rc.TimeoutSeconds = 30
	}
	cfg.Timeout = time.Duration(rc.TimeoutSeconds) * time.Second
	if cfg.WaitUntil == "" {
		cfg.WaitUntil = "networkidle"
	}
	return cfg, nil
}

// ParseConfig parses the target's raw configuration document.
func (t *Target) ParseConfig() (*TargetConfig, error) {
	cfg, err := ParseTargetConfig(t.RawConfig)
	if err != nil {
		return nil, eris.Wrapf(err, "target %s", t.Name)
	}
	return cfg, nil
}
