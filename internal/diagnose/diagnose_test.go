package diagnose

import (
	"context"
	"testing"
	"time"

	"github.com/hazelview/scrollwatch/internal/config"
	"github.com/hazelview/scrollwatch/internal/page"
)

func healthyElement(key, id string) *page.FakeElement {
	el := page.NewFakeElement(key, map[string]string{"data-trigger": id})
	el.SetRect(page.Rect{Top: 0, Width: 1280, Height: 600})
	return el
}

func hasIssue(r Report, typ string) bool {
	for _, is := range r.Issues {
		if is.Type == typ {
			return true
		}
	}
	return false
}

func TestRun_HealthyPage(t *testing.T) {
	pg := page.NewFakePage(
		healthyElement("el-a", "intro"),
		healthyElement("el-b", "section1"),
	)
	e := New(pg, config.Default(), nil)

	r := e.Run(context.Background(), false)
	if r.Status != "ok" {
		t.Errorf("Status: got %q, want %q (issues: %+v)", r.Status, "ok", r.Issues)
	}
	if r.Score != 10 {
		t.Errorf("Score: got %v, want 10", r.Score)
	}
	if r.Elements != 2 {
		t.Errorf("Elements: got %d, want 2", r.Elements)
	}
}

func TestRun_ElementIssues(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*page.FakeElement)
		wantType     string
		wantSeverity Severity
	}{
		{
			name:         "display none",
			mutate:       func(el *page.FakeElement) { el.SetStyle(page.Style{Display: "none"}) },
			wantType:     "display-none",
			wantSeverity: SeverityError,
		},
		{
			name: "visibility hidden",
			mutate: func(el *page.FakeElement) {
				el.SetStyle(page.Style{Display: "block", Visibility: "hidden"})
			},
			wantType:     "visibility-hidden",
			wantSeverity: SeverityWarning,
		},
		{
			name: "position fixed",
			mutate: func(el *page.FakeElement) {
				el.SetStyle(page.Style{Display: "block", Visibility: "visible", Position: "fixed"})
			},
			wantType:     "position-fixed",
			wantSeverity: SeverityWarning,
		},
		{
			name:         "short section",
			mutate:       func(el *page.FakeElement) { el.SetRect(page.Rect{Height: 200}) },
			wantType:     "short-section",
			wantSeverity: SeverityWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := healthyElement("el-a", "intro")
			tt.mutate(el)
			e := New(page.NewFakePage(el), config.Default(), nil)

			r := e.Run(context.Background(), false)
			if !hasIssue(r, tt.wantType) {
				t.Fatalf("issues: %+v, want %q", r.Issues, tt.wantType)
			}
			for _, is := range r.Issues {
				if is.Type == tt.wantType && is.Severity != tt.wantSeverity {
					t.Errorf("severity: got %q, want %q", is.Severity, tt.wantSeverity)
				}
			}
		})
	}
}

func TestRun_NoElements(t *testing.T) {
	e := New(page.NewFakePage(), config.Default(), nil)

	r := e.Run(context.Background(), false)
	if !hasIssue(r, "no-elements") {
		t.Fatalf("issues: %+v, want no-elements", r.Issues)
	}
	if r.Status != "error" {
		t.Errorf("Status: got %q, want error", r.Status)
	}
	if r.Score != 7 {
		t.Errorf("Score: got %v, want 7", r.Score)
	}
}

func TestRun_MissingAttribute(t *testing.T) {
	el := page.NewFakeElement("el-a", nil) // matches selector, carries no identifier
	el.SetRect(page.Rect{Height: 600})
	e := New(page.NewFakePage(el), config.Default(), nil)

	r := e.Run(context.Background(), false)
	if !hasIssue(r, "missing-attribute") {
		t.Fatalf("issues: %+v, want missing-attribute", r.Issues)
	}
}

func TestRun_DuplicateTrigger(t *testing.T) {
	e := New(page.NewFakePage(
		healthyElement("el-a", "intro"),
		healthyElement("el-b", "intro"),
	), config.Default(), nil)

	r := e.Run(context.Background(), false)
	if !hasIssue(r, "duplicate-trigger") {
		t.Fatalf("issues: %+v, want duplicate-trigger", r.Issues)
	}
	if r.Status != "error" {
		t.Errorf("Status: got %q, want error", r.Status)
	}
}

func TestRun_PerformanceIssues(t *testing.T) {
	mkCfg := func(mutate func(*config.Config)) *config.Config {
		c := config.Default()
		mutate(c)
		return c
	}

	tests := []struct {
		name     string
		cfg      *config.Config
		wantType string
	}{
		{
			name:     "full visibility threshold",
			cfg:      mkCfg(func(c *config.Config) { c.Threshold = config.Thresholds{1.0} }),
			wantType: "full-visibility-threshold",
		},
		{
			name:     "too many thresholds",
			cfg:      mkCfg(func(c *config.Config) { c.Threshold = config.Thresholds{0, 0.1, 0.2, 0.3, 0.4, 0.5} }),
			wantType: "too-many-thresholds",
		},
		{
			name:     "slow debounce",
			cfg:      mkCfg(func(c *config.Config) { d := config.Duration(250 * time.Millisecond); c.DebounceDelay = &d }),
			wantType: "slow-debounce",
		},
		{
			name:     "fast debounce",
			cfg:      mkCfg(func(c *config.Config) { d := config.Duration(time.Millisecond); c.DebounceDelay = &d }),
			wantType: "fast-debounce",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(page.NewFakePage(healthyElement("el-a", "intro")), tt.cfg, nil)
			r := e.Run(context.Background(), false)
			if !hasIssue(r, tt.wantType) {
				t.Errorf("issues: %+v, want %q", r.Issues, tt.wantType)
			}
		})
	}
}

func TestRun_TooManyElements(t *testing.T) {
	els := make([]*page.FakeElement, 0, 51)
	for i := 0; i < 51; i++ {
		els = append(els, healthyElement(
			"el-"+string(rune('a'+i%26))+string(rune('a'+i/26)),
			"sec-"+string(rune('a'+i%26))+string(rune('a'+i/26))))
	}
	e := New(page.NewFakePage(els...), config.Default(), nil)

	r := e.Run(context.Background(), false)
	if !hasIssue(r, "too-many-elements") {
		t.Error("want too-many-elements warning for 51 tracked elements")
	}
}

func TestRun_EnvironmentIssues(t *testing.T) {
	base := page.Environment{
		DocumentHeight: 4000,
		ViewportWidth:  1280,
		ViewportHeight: 800,
		RootOverflow:   "visible",
		BodyOverflow:   "visible",
		ViewportMeta:   true,
		ObserverAPI:    true,
	}

	tests := []struct {
		name         string
		mutate       func(*page.Environment)
		wantType     string
		wantSeverity Severity
	}{
		{
			name:         "not scrollable",
			mutate:       func(env *page.Environment) { env.DocumentHeight = 800 },
			wantType:     "page-not-scrollable",
			wantSeverity: SeverityError,
		},
		{
			name:         "overflow hidden",
			mutate:       func(env *page.Environment) { env.BodyOverflow = "hidden" },
			wantType:     "overflow-hidden",
			wantSeverity: SeverityError,
		},
		{
			name:         "missing viewport meta",
			mutate:       func(env *page.Environment) { env.ViewportMeta = false },
			wantType:     "missing-viewport-meta",
			wantSeverity: SeverityWarning,
		},
		{
			name:         "observer unavailable",
			mutate:       func(env *page.Environment) { env.ObserverAPI = false },
			wantType:     "observer-unavailable",
			wantSeverity: SeverityError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := base
			tt.mutate(&env)
			pg := page.NewFakePage(healthyElement("el-a", "intro"))
			pg.SetEnvironment(env)
			e := New(pg, config.Default(), nil)

			r := e.Run(context.Background(), false)
			if !hasIssue(r, tt.wantType) {
				t.Fatalf("issues: %+v, want %q", r.Issues, tt.wantType)
			}
			for _, is := range r.Issues {
				if is.Type == tt.wantType && is.Severity != tt.wantSeverity {
					t.Errorf("severity: got %q, want %q", is.Severity, tt.wantSeverity)
				}
			}
		})
	}
}

func TestRun_ScoreFloorsAtZero(t *testing.T) {
	pg := page.NewFakePage(
		healthyElement("el-a", "intro"),
		healthyElement("el-b", "intro"), // duplicate: error
	)
	pg.SetEnvironment(page.Environment{
		DocumentHeight: 400,
		ViewportHeight: 800,
		RootOverflow:   "hidden",
		BodyOverflow:   "hidden",
	}) // not scrollable, overflow hidden, no meta, no observer

	e := New(pg, config.Default(), nil)
	r := e.Run(context.Background(), false)
	if r.Score != 0 {
		t.Errorf("Score: got %v, want 0 (issues: %d)", r.Score, len(r.Issues))
	}
	if r.Status != "error" {
		t.Errorf("Status: got %q, want error", r.Status)
	}
}

func TestRun_ReportCache(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }

	el := healthyElement("el-a", "intro")
	pg := page.NewFakePage(el)
	e := New(pg, config.Default(), nil, WithClock(clock))
	ctx := context.Background()

	first := e.Run(ctx, false)
	if first.Status != "ok" {
		t.Fatalf("first report: status %q, want ok", first.Status)
	}

	// The page degrades, but within the TTL the cached report is served.
	el.SetStyle(page.Style{Display: "none"})
	now = now.Add(2 * time.Second)
	if r := e.Run(ctx, false); r.Status != "ok" {
		t.Errorf("within TTL: status %q, want cached ok", r.Status)
	}

	// Past the TTL the report is recomputed and sees the degradation.
	now = now.Add(5 * time.Second)
	if r := e.Run(ctx, false); r.Status != "error" {
		t.Errorf("past TTL: status %q, want recomputed error", r.Status)
	}
}

func TestRun_VerboseCachedSeparately(t *testing.T) {
	now := time.Unix(1700000000, 0)
	e := New(page.NewFakePage(healthyElement("el-a", "intro")),
		config.Default(), nil, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	quiet := e.Run(ctx, false)
	verbose := e.Run(ctx, true)
	if quiet.Verbose || !verbose.Verbose {
		t.Errorf("verbose flags: got (%v, %v), want (false, true)", quiet.Verbose, verbose.Verbose)
	}
	if quiet.Status != verbose.Status || quiet.Score != verbose.Score {
		t.Errorf("verbose must not change findings: %+v vs %+v", quiet, verbose)
	}
}
