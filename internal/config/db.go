package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Schema for the tracked_pages table.
const Schema = `
CREATE TABLE IF NOT EXISTS tracked_pages (
	id                TEXT PRIMARY KEY,
	url               TEXT NOT NULL,
	selector          TEXT DEFAULT '',
	trigger_attribute TEXT DEFAULT '',
	threshold         TEXT DEFAULT '[0]',
	root_margin       TEXT DEFAULT '0px',
	debounce_ms       INTEGER DEFAULT 10,
	debug             INTEGER DEFAULT 0,
	status            TEXT DEFAULT 'active',
	updated_at        INTEGER NOT NULL
);
`

// LoadPages reads all active pages from the database. Each row's tracker
// record gets defaults applied and is validated before being returned.
func LoadPages(ctx context.Context, db *sql.DB) ([]PageConfig, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, url, selector, trigger_attribute, threshold,
		       root_margin, debounce_ms, debug
		FROM tracked_pages
		WHERE status = 'active'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []PageConfig
	for rows.Next() {
		var p PageConfig
		var thresholdJSON string
		var debounceMs int64
		var debugInt int

		if err := rows.Scan(&p.ID, &p.URL, &p.Tracker.Selector,
			&p.Tracker.TriggerAttribute, &thresholdJSON,
			&p.Tracker.RootMargin, &debounceMs, &debugInt); err != nil {
			return nil, err
		}

		var ts []float64
		if err := json.Unmarshal([]byte(thresholdJSON), &ts); err != nil {
			return nil, fmt.Errorf("config: page %q: threshold %q: %w", p.ID, thresholdJSON, err)
		}
		p.Tracker.Threshold = Thresholds(ts)
		d := Duration(time.Duration(debounceMs) * time.Millisecond)
		p.Tracker.DebounceDelay = &d
		p.Tracker.Debug = debugInt != 0
		p.Tracker.ApplyDefaults()
		if err := p.Tracker.Validate(); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}
