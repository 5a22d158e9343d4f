package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/hazelview/scrollwatch"
	"github.com/hazelview/scrollwatch/internal/browser"
	"github.com/hazelview/scrollwatch/internal/config"
	"github.com/hazelview/scrollwatch/internal/page"
)

// daemon owns the browser and one tracker per tracked page.
type daemon struct {
	mgr    *browser.Manager
	logger *slog.Logger
	sinks  []scrollwatch.Sink

	mu       sync.Mutex
	trackers map[string]*trackedPage
}

type trackedPage struct {
	cfg     config.PageConfig
	tracker *scrollwatch.Tracker
}

func newDaemon(bcfg browser.Config, logger *slog.Logger, sinks ...scrollwatch.Sink) *daemon {
	return &daemon{
		mgr:      browser.NewManager(bcfg),
		logger:   logger,
		sinks:    sinks,
		trackers: make(map[string]*trackedPage),
	}
}

func (d *daemon) start(ctx context.Context) error {
	if _, err := d.mgr.Start(ctx); err != nil {
		return err
	}
	return nil
}

// track opens a tab for the page and starts a tracker over it.
func (d *daemon) track(ctx context.Context, pc config.PageConfig) error {
	tab, err := d.mgr.OpenTab(ctx, pc.URL)
	if err != nil {
		return err
	}

	t, err := scrollwatch.New(&pc.Tracker, page.NewRod(tab, d.logger),
		scrollwatch.WithLogger(d.logger),
		scrollwatch.WithSinks(d.sinks...))
	if err != nil {
		tab.Close()
		return err
	}
	if err := t.Start(ctx); err != nil {
		t.Destroy()
		tab.Close()
		return err
	}

	d.mu.Lock()
	d.trackers[pc.ID] = &trackedPage{cfg: pc, tracker: t}
	d.mu.Unlock()

	d.logger.Info("scrollwatch: tracking page",
		"id", pc.ID, "url", pc.URL, "instance_id", t.InstanceID())
	return nil
}

func (d *daemon) untrack(id string) {
	d.mu.Lock()
	tp, ok := d.trackers[id]
	if ok {
		delete(d.trackers, id)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	tp.tracker.Destroy()
	d.logger.Info("scrollwatch: untracked page", "id", id)
}

// reload reconciles the tracker set against the desired page list: pages
// that disappeared are destroyed, new ones started. A page whose URL
// changed is restarted.
func (d *daemon) reload(ctx context.Context, pages []config.PageConfig) {
	desired := make(map[string]config.PageConfig, len(pages))
	for _, pc := range pages {
		desired[pc.ID] = pc
	}

	d.mu.Lock()
	var drop []string
	for id, tp := range d.trackers {
		pc, keep := desired[id]
		if !keep || pc.URL != tp.cfg.URL {
			drop = append(drop, id)
		} else {
			delete(desired, id)
		}
	}
	d.mu.Unlock()

	for _, id := range drop {
		d.untrack(id)
	}
	for _, pc := range desired {
		if err := d.track(ctx, pc); err != nil {
			d.logger.Error("scrollwatch: failed to track page", "id", pc.ID, "url", pc.URL, "error", err)
		}
	}
}

func (d *daemon) close() {
	d.mu.Lock()
	ids := make([]string, 0, len(d.trackers))
	for id := range d.trackers {
		ids = append(ids, id)
	}
	d.mu.Unlock()
	for _, id := range ids {
		d.untrack(id)
	}
	d.mgr.Close()
}

func (d *daemon) lookup(id string) (*trackedPage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tp, ok := d.trackers[id]
	return tp, ok
}

// routes builds the status API.
func (d *daemon) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/pages", func(w http.ResponseWriter, _ *http.Request) {
		type pageStatus struct {
			ID         string `json:"id"`
			URL        string `json:"url"`
			State      string `json:"state"`
			InstanceID string `json:"instance_id"`
			Current    string `json:"current,omitempty"`
		}
		d.mu.Lock()
		out := make([]pageStatus, 0, len(d.trackers))
		for id, tp := range d.trackers {
			cur, _ := tp.tracker.CurrentTriggerID()
			out = append(out, pageStatus{
				ID:         id,
				URL:        tp.cfg.URL,
				State:      tp.tracker.State().String(),
				InstanceID: tp.tracker.InstanceID(),
				Current:    cur,
			})
		}
		d.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/pages/{id}/current", func(w http.ResponseWriter, req *http.Request) {
		tp, ok := d.lookup(chi.URLParam(req, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown page"})
			return
		}
		cur, fired := tp.tracker.CurrentTriggerID()
		writeJSON(w, http.StatusOK, map[string]any{"current": cur, "fired": fired})
	})

	r.Get("/pages/{id}/diagnose", func(w http.ResponseWriter, req *http.Request) {
		tp, ok := d.lookup(chi.URLParam(req, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown page"})
			return
		}
		verbose := req.URL.Query().Get("verbose") == "true"
		writeJSON(w, http.StatusOK, tp.tracker.Diagnose(req.Context(), verbose))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already out; an encode error here has nowhere to go.
	_ = json.NewEncoder(w).Encode(v)
}
