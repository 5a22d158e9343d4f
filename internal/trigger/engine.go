package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazelview/scrollwatch/internal/page"
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	// InstanceID disambiguates broadcast notifications between coexisting
	// engines.
	InstanceID string

	// DebounceDelay is the quiet period between the last visibility batch
	// and the resolution pass.
	DebounceDelay time.Duration

	// Events is the host's visibility-event stream. Nil when observation
	// is unavailable; the engine then runs with a permanently empty
	// visible set.
	Events <-chan []page.VisibilityEvent

	// Deliver is invoked synchronously on every identifier transition.
	Deliver func(Transition)

	Logger *slog.Logger
}

// Engine sequences visibility intake, debouncing, resolution, and
// notification on a single goroutine: batches fold into the visible set in
// delivery order, and a resolution pass runs only after the debounce window
// closes behind the last batch. All state is owned by that goroutine;
// cross-goroutine calls are serialised through a command channel.
type Engine struct {
	store    *VisibleSet
	deb      *debouncer
	notifier *Notifier
	registry map[string]string // element key -> trigger identifier
	events   <-chan []page.VisibilityEvent
	cmds     chan func()
	stopped  chan struct{}
	logger   *slog.Logger

	// lastValid is updated only when the visible set resolved non-empty.
	lastValid string
}

// NewEngine creates an Engine. Call Run on its own goroutine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		store:    NewVisibleSet(),
		deb:      newDebouncer(cfg.DebounceDelay),
		notifier: NewNotifier(cfg.InstanceID, cfg.Deliver),
		registry: make(map[string]string),
		events:   cfg.Events,
		cmds:     make(chan func()),
		stopped:  make(chan struct{}),
		logger:   cfg.Logger,
	}
}

// Run processes events until ctx is cancelled. On exit the pending debounce
// timer is cancelled and all maps are cleared.
func (e *Engine) Run(ctx context.Context) {
	defer func() {
		e.deb.cancel()
		e.store.Clear()
		e.registry = make(map[string]string)
		close(e.stopped)
	}()

	events := e.events
	for {
		select {
		case <-ctx.Done():
			return

		case batch, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.fold(batch)
			e.deb.schedule()

		case <-e.deb.timerC():
			e.deb.fired()
			e.resolve()

		case fn := <-e.cmds:
			fn()
		}
	}
}

// Register tracks an element under the given trigger identifier.
func (e *Engine) Register(el page.Element, triggerID string) {
	e.do(func() {
		e.registry[el.Key()] = triggerID
	})
}

// Deregister stops tracking the element and evicts any visible-set entry
// for it.
func (e *Engine) Deregister(el page.Element) {
	e.do(func() {
		delete(e.registry, el.Key())
		e.store.Evict(el.Key())
	})
}

// ForceResolve runs an immediate resolution pass, bypassing the debounce
// window. Used when entering the active state so an already-scrolled-to
// section is recognised without waiting for a visibility event.
func (e *Engine) ForceResolve() {
	e.do(e.resolve)
}

// Current returns the most recently emitted identifier. Safe from any
// goroutine.
func (e *Engine) Current() (string, bool) {
	return e.notifier.Current()
}

// VisibleCount returns the current visible-set size. Serialised through the
// engine goroutine.
func (e *Engine) VisibleCount() int {
	n := 0
	e.do(func() { n = e.store.Len() })
	return n
}

// Wait blocks until Run has exited. Used during teardown so no resolution
// pass can deliver after the owner considers the engine gone.
func (e *Engine) Wait() {
	<-e.stopped
}

// do runs fn on the engine goroutine and waits for it. After Run has
// exited it returns without running fn, so operations on a destroyed
// tracker are no-ops.
func (e *Engine) do(fn func()) {
	done := make(chan struct{})
	select {
	case e.cmds <- func() { fn(); close(done) }:
	case <-e.stopped:
		return
	}
	select {
	case <-done:
	case <-e.stopped:
	}
}

// fold applies a visibility batch to the store, in delivery order. Events
// for elements that were never registered (or already deregistered) are
// dropped.
func (e *Engine) fold(batch []page.VisibilityEvent) {
	for _, ev := range batch {
		triggerID, tracked := e.registry[ev.Element.Key()]
		if !tracked {
			continue
		}
		if ev.Visible {
			e.store.MarkVisible(ev.Element, triggerID)
		} else {
			e.store.MarkHidden(ev.Element)
		}
	}
}

// resolve samples top coordinates for the visible set, resolves, and
// notifies. Elements whose geometry can no longer be read are skipped for
// this pass.
func (e *Engine) resolve() {
	entries := e.store.Entries()
	candidates := make([]Candidate, 0, len(entries))
	for _, en := range entries {
		r, err := en.Element.Rect()
		if err != nil {
			e.logger.Warn("trigger: geometry unavailable, skipping entry",
				"trigger_id", en.TriggerID, "error", err)
			continue
		}
		candidates = append(candidates, Candidate{ID: en.TriggerID, Top: r.Top})
	}

	out := Resolve(candidates, e.lastValid)
	if len(candidates) > 0 {
		e.lastValid = out.ID
	}

	if tr, changed := e.notifier.Notify(out); changed {
		e.logger.Debug("trigger: active section changed",
			"current", tr.Current, "previous", tr.Previous)
	}
}
