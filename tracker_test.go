package scrollwatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazelview/scrollwatch/internal/page"
)

func section(key, id string, top float64) *page.FakeElement {
	el := page.NewFakeElement(key, map[string]string{"data-trigger": id})
	el.SetRect(page.Rect{Top: top, Width: 1280, Height: 600})
	return el
}

type recorder struct {
	mu  sync.Mutex
	trs []Transition
}

func (r *recorder) record(tr Transition) {
	r.mu.Lock()
	r.trs = append(r.trs, tr)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transition, len(r.trs))
	copy(out, r.trs)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func startTracker(t *testing.T, pg *page.FakePage, rec *recorder) *Tracker {
	t.Helper()
	tr, err := New(nil, pg, WithOnChange(rec.record))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(tr.Destroy)
	return tr
}

func TestTracker_ScrollThroughSections(t *testing.T) {
	intro := section("el-intro", "intro", 100)
	sec1 := section("el-s1", "section1", 900)
	pg := page.NewFakePage(intro, sec1)
	rec := &recorder{}
	tr := startTracker(t, pg, rec)

	if tr.State() != StateActive {
		t.Fatalf("State: got %s, want active", tr.State())
	}
	obs := pg.Observation()
	if !obs.Observing("el-intro") || !obs.Observing("el-s1") {
		t.Fatal("matched elements not registered with the observation session")
	}

	// Page top: intro scrolls into view.
	obs.Emit(page.VisibilityEvent{Element: intro, Visible: true})
	waitFor(t, func() bool {
		cur, ok := tr.CurrentTriggerID()
		return ok && cur == "intro"
	})

	// Scroll: intro leaves, section1 enters.
	intro.SetRect(page.Rect{Top: -700, Height: 600})
	sec1.SetRect(page.Rect{Top: 100, Height: 600})
	obs.Emit(
		page.VisibilityEvent{Element: intro, Visible: false},
		page.VisibilityEvent{Element: sec1, Visible: true},
	)
	waitFor(t, func() bool {
		cur, _ := tr.CurrentTriggerID()
		return cur == "section1"
	})

	// Gap between sections: nothing visible, the identifier sticks.
	obs.Emit(page.VisibilityEvent{Element: sec1, Visible: false})
	time.Sleep(40 * time.Millisecond)
	if cur, ok := tr.CurrentTriggerID(); !ok || cur != "section1" {
		t.Errorf("sticky fallback: got (%q, %v), want (section1, true)", cur, ok)
	}

	trs := rec.snapshot()
	if len(trs) != 2 {
		t.Fatalf("transitions: got %d (%+v), want 2", len(trs), trs)
	}
	if trs[0].Current != "intro" || trs[0].Previous != "" {
		t.Errorf("first transition: %+v", trs[0])
	}
	if trs[1].Current != "section1" || trs[1].Previous != "intro" {
		t.Errorf("second transition: %+v", trs[1])
	}
	if trs[0].InstanceID != tr.InstanceID() {
		t.Errorf("InstanceID: got %q, want %q", trs[0].InstanceID, tr.InstanceID())
	}
}

func TestTracker_NearestTopWinsWhileBothVisible(t *testing.T) {
	intro := section("el-intro", "intro", 100)
	sec1 := section("el-s1", "section1", 900)
	pg := page.NewFakePage(intro, sec1)
	rec := &recorder{}
	tr := startTracker(t, pg, rec)
	obs := pg.Observation()

	obs.Emit(page.VisibilityEvent{Element: intro, Visible: true})
	waitFor(t, func() bool {
		cur, _ := tr.CurrentTriggerID()
		return cur == "intro"
	})

	// section1 scrolls in above the midpoint; intro stays visible but is
	// further from the top edge now.
	intro.SetRect(page.Rect{Top: 300, Height: 600})
	sec1.SetRect(page.Rect{Top: 50, Height: 600})
	obs.Emit(page.VisibilityEvent{Element: sec1, Visible: true})
	waitFor(t, func() bool {
		cur, _ := tr.CurrentTriggerID()
		return cur == "section1"
	})

	trs := rec.snapshot()
	if len(trs) != 2 {
		t.Fatalf("transitions: got %d (%+v), want 2", len(trs), trs)
	}
	if trs[1].Current != "section1" || trs[1].Previous != "intro" {
		t.Errorf("second transition: %+v", trs[1])
	}
}

func TestTracker_NoNotificationForUnchangedIdentifier(t *testing.T) {
	intro := section("el-intro", "intro", 100)
	pg := page.NewFakePage(intro)
	rec := &recorder{}
	tr := startTracker(t, pg, rec)
	obs := pg.Observation()

	obs.Emit(page.VisibilityEvent{Element: intro, Visible: true})
	waitFor(t, func() bool {
		cur, _ := tr.CurrentTriggerID()
		return cur == "intro"
	})

	// Flicker out and back in: resolution lands on the same identifier.
	obs.Emit(page.VisibilityEvent{Element: intro, Visible: false})
	obs.Emit(page.VisibilityEvent{Element: intro, Visible: true})
	time.Sleep(40 * time.Millisecond)

	if trs := rec.snapshot(); len(trs) != 1 {
		t.Errorf("transitions: got %d (%+v), want 1", len(trs), trs)
	}
}

func TestTracker_ObserveUnobserveRoundTrip(t *testing.T) {
	intro := section("el-intro", "intro", 100)
	pg := page.NewFakePage(intro)
	tr := startTracker(t, pg, &recorder{})
	obs := pg.Observation()

	late := section("el-late", "epilogue", 3000)
	if err := tr.Observe(late); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if !obs.Observing("el-late") {
		t.Fatal("late element not registered with the observation session")
	}

	if err := tr.Unobserve(late); err != nil {
		t.Fatalf("Unobserve: %v", err)
	}
	if obs.Observing("el-late") {
		t.Error("late element still observed after Unobserve")
	}

	// Events for the unobserved element no longer affect resolution.
	obs.Emit(page.VisibilityEvent{Element: late, Visible: true})
	time.Sleep(40 * time.Millisecond)
	if _, ok := tr.CurrentTriggerID(); ok {
		t.Error("unobserved element produced an identifier")
	}
}

func TestTracker_ObserveRejectsElementWithoutIdentifier(t *testing.T) {
	pg := page.NewFakePage(section("el-intro", "intro", 100))
	tr := startTracker(t, pg, &recorder{})

	bare := page.NewFakeElement("el-bare", nil)
	if err := tr.Observe(bare); err == nil {
		t.Error("Observe: got nil error for element without a trigger identifier")
	}
}

func TestTracker_NotActiveErrors(t *testing.T) {
	pg := page.NewFakePage(section("el-intro", "intro", 100))
	tr, err := New(nil, pg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	el := section("el-x", "x", 0)
	if err := tr.Observe(el); !errors.Is(err, ErrNotActive) {
		t.Errorf("Observe before Start: got %v, want ErrNotActive", err)
	}
	if err := tr.Unobserve(el); !errors.Is(err, ErrNotActive) {
		t.Errorf("Unobserve before Start: got %v, want ErrNotActive", err)
	}
	if _, ok := tr.CurrentTriggerID(); ok {
		t.Error("CurrentTriggerID before Start: got identifier")
	}
}

func TestTracker_DestroyedOpsAreNoOps(t *testing.T) {
	intro := section("el-intro", "intro", 100)
	pg := page.NewFakePage(intro)
	tr := startTracker(t, pg, &recorder{})

	tr.Destroy()
	tr.Destroy() // idempotent

	if tr.State() != StateDestroyed {
		t.Fatalf("State: got %s, want destroyed", tr.State())
	}
	if err := tr.Observe(section("el-x", "x", 0)); err != nil {
		t.Errorf("Observe after Destroy: got %v, want nil no-op", err)
	}
	if err := tr.Unobserve(intro); err != nil {
		t.Errorf("Unobserve after Destroy: got %v, want nil no-op", err)
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Errorf("Start after Destroy: got %v, want nil no-op", err)
	}
	if tr.State() != StateDestroyed {
		t.Errorf("State after no-op Start: got %s, want destroyed", tr.State())
	}
	if r := tr.Diagnose(context.Background(), false); r.Status != "" || len(r.Issues) != 0 {
		t.Errorf("Diagnose after Destroy: got %+v, want zero report", r)
	}
}

func TestTracker_DestroyWaitsForInFlightDelivery(t *testing.T) {
	intro := section("el-intro", "intro", 100)
	pg := page.NewFakePage(intro)

	started := make(chan struct{})
	release := make(chan struct{})
	var delivered atomic.Int32
	tr, err := New(nil, pg, WithOnChange(func(Transition) {
		close(started)
		<-release
		delivered.Add(1)
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	pg.Observation().Emit(page.VisibilityEvent{Element: intro, Visible: true})
	<-started

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	tr.Destroy()

	if delivered.Load() != 1 {
		t.Error("Destroy returned while a delivery was still in flight")
	}
}

func TestTracker_FailedObserveRollsBackRegistration(t *testing.T) {
	intro := section("el-intro", "intro", 100)
	pg := page.NewFakePage(intro)
	tr := startTracker(t, pg, &recorder{})
	obs := pg.Observation()

	obs.SetObserveError(errors.New("node detached"))
	late := section("el-late", "epilogue", 10)
	if err := tr.Observe(late); err == nil {
		t.Fatal("Observe: got nil error with failing observation")
	}
	obs.SetObserveError(nil)

	if obs.Observing("el-late") {
		t.Error("failed element left in the observation session")
	}
	// The engine must not have kept a half-registration either: events for
	// the element are dropped as unregistered.
	obs.Emit(page.VisibilityEvent{Element: late, Visible: true})
	time.Sleep(40 * time.Millisecond)
	if cur, ok := tr.CurrentTriggerID(); ok {
		t.Errorf("rolled-back element produced identifier %q", cur)
	}
}

func TestTracker_StartWaitsForReadiness(t *testing.T) {
	pg := page.NewFakePage(section("el-intro", "intro", 100))
	pg.SetReady(false)
	tr := startTracker(t, pg, &recorder{})
	if tr.State() != StateActive {
		t.Errorf("State: got %s, want active after readiness", tr.State())
	}
}

func TestTracker_DegradesWithoutObserverAPI(t *testing.T) {
	intro := section("el-intro", "intro", 100)
	pg := page.NewFakePage(intro)
	pg.DisableObserverAPI()
	tr := startTracker(t, pg, &recorder{})

	if tr.State() != StateActive {
		t.Fatalf("State: got %s, want active despite missing observer", tr.State())
	}
	if _, ok := tr.CurrentTriggerID(); ok {
		t.Error("identifier emitted with a permanently empty visible set")
	}

	r := tr.Diagnose(context.Background(), false)
	found := false
	for _, is := range r.Issues {
		if is.Type == "observer-unavailable" {
			found = true
		}
	}
	if !found {
		t.Errorf("Diagnose issues: %+v, want observer-unavailable", r.Issues)
	}
}

func TestTracker_BroadcastsTransitions(t *testing.T) {
	intro := section("el-intro", "intro", 100)
	pg := page.NewFakePage(intro)
	tr := startTracker(t, pg, &recorder{})

	ch, cancel := SubscribeTransitions()
	defer cancel()

	pg.Observation().Emit(page.VisibilityEvent{Element: intro, Visible: true})

	select {
	case got := <-ch:
		if got.Current != "intro" || got.InstanceID != tr.InstanceID() {
			t.Errorf("broadcast payload: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast within deadline")
	}
}

func TestTracker_RejectsInvalidConfig(t *testing.T) {
	pg := page.NewFakePage()
	cfg := DefaultConfig()
	neg := Duration(-time.Second)
	cfg.DebounceDelay = &neg
	if _, err := New(cfg, pg); err == nil {
		t.Error("New: got nil error for negative debounce delay")
	}
	if _, err := New(nil, nil); err == nil {
		t.Error("New: got nil error for nil page")
	}
}

func TestTracker_CallbackSink(t *testing.T) {
	intro := section("el-intro", "intro", 100)
	pg := page.NewFakePage(intro)

	var mu sync.Mutex
	var sunk []Transition
	sink := NewCallbackSink(func(_ context.Context, tr Transition) error {
		mu.Lock()
		sunk = append(sunk, tr)
		mu.Unlock()
		return nil
	}, nil)

	tr, err := New(nil, pg, WithSinks(sink))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Destroy()

	pg.Observation().Emit(page.VisibilityEvent{Element: intro, Visible: true})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sunk) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if sunk[0].Current != "intro" {
		t.Errorf("sink payload: %+v", sunk[0])
	}
}
