package diagnose

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazelview/scrollwatch/internal/config"
	"github.com/hazelview/scrollwatch/internal/page"
)

// Thresholds for the heuristic checks.
const (
	// minSectionRatio: sections shorter than this fraction of the viewport
	// are unreliable to intersect against.
	minSectionRatio = 0.5

	// maxElements before per-frame observer work becomes noticeable.
	maxElements = 50

	// maxThresholdSteps before threshold churn produces excessive events.
	maxThresholdSteps = 5

	slowDebounce = 100 * time.Millisecond
	fastDebounce = 5 * time.Millisecond
)

// Engine inspects the live page and the tracker configuration. It is
// read-only with respect to tracked state: it queries the page but never
// mutates the visible set or resolution state.
type Engine struct {
	page   page.Page
	cfg    *config.Config
	cache  *reportCache
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the cache clock. For tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.cache = newReportCache(reportTTL, now) }
}

// New creates a diagnostics Engine for a page and tracker configuration.
func New(pg page.Page, cfg *config.Config, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		page:   pg,
		cfg:    cfg,
		cache:  newReportCache(reportTTL, time.Now),
		logger: logger,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run produces a diagnostic report, served from cache when one was computed
// within the TTL. Verbose reports additionally dump every issue to the log.
func (e *Engine) Run(ctx context.Context, verbose bool) Report {
	if r, ok := e.cache.get(verbose); ok {
		return r
	}

	var issues []Issue

	els, err := e.page.Elements(ctx, e.cfg.Selector)
	if err != nil {
		e.logger.Warn("diagnose: element query failed", "selector", e.cfg.Selector, "error", err)
	}

	env, envErr := e.page.Environment(ctx)
	if envErr != nil {
		e.logger.Warn("diagnose: environment query failed", "error", envErr)
	}

	issues = append(issues, e.checkElements(els, env)...)
	issues = append(issues, e.checkPerformance(els)...)
	if envErr == nil {
		issues = append(issues, e.checkEnvironment(env)...)
	}

	r := buildReport(issues, len(els), time.Now(), verbose)
	e.cache.put(verbose, r)

	if verbose || e.cfg.Debug {
		e.log(r)
	}
	return r
}

// checkElements validates each tracked element: identifier presence and
// uniqueness, section height, and styles that break or distort observation.
func (e *Engine) checkElements(els []page.Element, env page.Environment) []Issue {
	if len(els) == 0 {
		return []Issue{{
			Type:     "no-elements",
			Severity: SeverityError,
			Message:  fmt.Sprintf("no tracked elements match selector %q", e.cfg.Selector),
			Suggestion: fmt.Sprintf("add %s attributes to section elements or adjust the selector",
				e.cfg.TriggerAttribute),
		}}
	}

	var issues []Issue
	seen := make(map[string]string) // trigger id -> first element key

	for _, el := range els {
		id, present, err := el.Attr(e.cfg.TriggerAttribute)
		if err != nil {
			e.logger.Warn("diagnose: attribute read failed", "element", el.Key(), "error", err)
			continue
		}
		switch {
		case !present || id == "":
			issues = append(issues, Issue{
				Type:       "missing-attribute",
				Severity:   SeverityError,
				Message:    fmt.Sprintf("element matches %q but has no %s value", e.cfg.Selector, e.cfg.TriggerAttribute),
				Suggestion: "set a unique identifier on the element",
				ElementKey: el.Key(),
			})
		case seen[id] != "":
			issues = append(issues, Issue{
				Type:       "duplicate-trigger",
				Severity:   SeverityError,
				Message:    fmt.Sprintf("trigger identifier %q is used by more than one element", id),
				Suggestion: "trigger identifiers must be unique among tracked elements",
				TriggerID:  id,
				ElementKey: el.Key(),
			})
		default:
			seen[id] = el.Key()
		}

		if r, err := el.Rect(); err == nil && env.ViewportHeight > 0 {
			if r.Height < minSectionRatio*env.ViewportHeight {
				issues = append(issues, Issue{
					Type:     "short-section",
					Severity: SeverityWarning,
					Message: fmt.Sprintf("section height %.0fpx is under %.0f%% of the viewport (%.0fpx)",
						r.Height, minSectionRatio*100, env.ViewportHeight),
					Suggestion: "short sections intersect unreliably; give sections more height or lower the threshold",
					TriggerID:  id,
					ElementKey: el.Key(),
				})
			}
		}

		st, err := el.Style()
		if err != nil {
			continue
		}
		if st.Display == "none" {
			issues = append(issues, Issue{
				Type:       "display-none",
				Severity:   SeverityError,
				Message:    "element has display: none and can never intersect",
				Suggestion: "unhide the element or stop tracking it",
				TriggerID:  id,
				ElementKey: el.Key(),
			})
		}
		if st.Visibility == "hidden" {
			issues = append(issues, Issue{
				Type:       "visibility-hidden",
				Severity:   SeverityWarning,
				Message:    "element has visibility: hidden; it intersects but is invisible",
				TriggerID:  id,
				ElementKey: el.Key(),
			})
		}
		if st.Position == "fixed" {
			issues = append(issues, Issue{
				Type:       "position-fixed",
				Severity:   SeverityWarning,
				Message:    "element is position: fixed; its geometry does not follow scroll position",
				TriggerID:  id,
				ElementKey: el.Key(),
			})
		}
	}
	return issues
}

// checkPerformance flags configuration that works but costs more than it
// should.
func (e *Engine) checkPerformance(els []page.Element) []Issue {
	var issues []Issue

	if len(els) > maxElements {
		issues = append(issues, Issue{
			Type:       "too-many-elements",
			Severity:   SeverityWarning,
			Message:    fmt.Sprintf("%d tracked elements exceed the recommended maximum of %d", len(els), maxElements),
			Suggestion: "track top-level sections only",
		})
	}
	if len(e.cfg.Threshold) > maxThresholdSteps {
		issues = append(issues, Issue{
			Type:       "too-many-thresholds",
			Severity:   SeverityWarning,
			Message:    fmt.Sprintf("%d threshold steps exceed the recommended maximum of %d", len(e.cfg.Threshold), maxThresholdSteps),
			Suggestion: "fewer threshold steps produce fewer redundant events",
		})
	}
	for _, t := range e.cfg.Threshold {
		if t == 1.0 {
			issues = append(issues, Issue{
				Type:       "full-visibility-threshold",
				Severity:   SeverityWarning,
				Message:    "threshold 1.0 requires the element to be fully visible before it fires",
				Suggestion: "sections taller than the viewport will never trigger; use a lower threshold",
			})
			break
		}
	}
	if d := e.cfg.Debounce(); d > slowDebounce {
		issues = append(issues, Issue{
			Type:     "slow-debounce",
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("debounce delay %s makes the active section lag behind fast scrolling", d),
		})
	} else if d < fastDebounce {
		issues = append(issues, Issue{
			Type:     "fast-debounce",
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("debounce delay %s barely coalesces event bursts", d),
		})
	}
	return issues
}

// checkEnvironment validates host-page layout properties.
func (e *Engine) checkEnvironment(env page.Environment) []Issue {
	var issues []Issue

	if env.DocumentHeight <= env.ViewportHeight {
		issues = append(issues, Issue{
			Type:       "page-not-scrollable",
			Severity:   SeverityError,
			Message:    fmt.Sprintf("page content (%.0fpx) is not taller than the viewport (%.0fpx)", env.DocumentHeight, env.ViewportHeight),
			Suggestion: "nothing can scroll into view; check that content has rendered",
		})
	}
	if env.RootOverflow == "hidden" || env.BodyOverflow == "hidden" {
		issues = append(issues, Issue{
			Type:       "overflow-hidden",
			Severity:   SeverityError,
			Message:    "overflow: hidden on the root or body prevents scrolling",
			Suggestion: "remove the overflow rule or scroll a dedicated container",
		})
	}
	if !env.ViewportMeta {
		issues = append(issues, Issue{
			Type:       "missing-viewport-meta",
			Severity:   SeverityWarning,
			Message:    "no viewport meta configuration found",
			Suggestion: `add <meta name="viewport" content="width=device-width, initial-scale=1">`,
		})
	}
	if !env.ObserverAPI {
		issues = append(issues, Issue{
			Type:       "observer-unavailable",
			Severity:   SeverityError,
			Message:    "the host provides no intersection observation; the visible set stays permanently empty",
			Suggestion: "run in a host with IntersectionObserver support",
		})
	}
	return issues
}

func (e *Engine) log(r Report) {
	e.logger.Info("diagnose: report",
		"status", r.Status, "score", r.Score,
		"issues", len(r.Issues), "elements", r.Elements)
	for _, is := range r.Issues {
		e.logger.Info("diagnose: issue",
			"type", is.Type, "severity", string(is.Severity),
			"message", is.Message, "trigger_id", is.TriggerID)
	}
}
