// Package scrollwatch derives a single "currently active section" identifier
// from a scrolling page, using the host's batched visibility-change events
// rather than polling scroll position. It is built for narrative pages where
// visual state must follow which content region is on screen.
//
// scrollwatch resolves, it does not render. Identifier transitions are
// delivered to a configured callback, broadcast on a process-wide bus, and
// emitted to sinks (stdout, webhook, callback) for consumers to act on.
package scrollwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hazelview/scrollwatch/broadcast"
	"github.com/hazelview/scrollwatch/internal/config"
	"github.com/hazelview/scrollwatch/internal/diagnose"
	"github.com/hazelview/scrollwatch/internal/idgen"
	"github.com/hazelview/scrollwatch/internal/page"
	"github.com/hazelview/scrollwatch/internal/sink"
	"github.com/hazelview/scrollwatch/internal/trigger"
)

// Transition is the payload delivered on every identifier change.
type Transition = trigger.Transition

// ErrNotActive is returned by operations that are legal only while the
// tracker is active.
var ErrNotActive = errors.New("scrollwatch: tracker is not active")

// transitions is the process-wide broadcast channel. Every tracker
// publishes its identifier transitions here; subscribers filter by
// InstanceID when multiple trackers coexist.
var transitions = broadcast.New[Transition]()

// SubscribeTransitions registers a process-wide listener for identifier
// transitions from all trackers. The cancel function removes the
// subscription.
func SubscribeTransitions() (<-chan Transition, func()) {
	return transitions.Subscribe()
}

// State of a Tracker. Transitions are linear, no cycles.
type State int32

const (
	StateConstructed State = iota
	StateAwaitingReady
	StateActive
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateAwaitingReady:
		return "awaiting-ready"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// Tracker is the top-level orchestrator: it registers tracked elements with
// the host's observation facility, folds visibility events into the visible
// set, and resolves them to one active trigger identifier. Create one per
// page region being tracked.
type Tracker struct {
	cfg        config.Config
	page       page.Page
	logger     *slog.Logger
	router     *sink.Router
	diag       *diagnose.Engine
	instanceID string
	onChange   func(Transition)
	sinks      []sink.Sink

	state atomic.Int32

	mu      sync.Mutex
	engine  *trigger.Engine
	obs     page.Observation
	tracked map[string]page.Element
	cancel  context.CancelFunc
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithOnChange registers the change callback, invoked synchronously on
// every identifier transition.
func WithOnChange(fn func(Transition)) Option {
	return func(t *Tracker) { t.onChange = fn }
}

// WithSinks adds output backends for transitions and diagnostic reports.
func WithSinks(sinks ...Sink) Option {
	return func(t *Tracker) { t.sinks = append(t.sinks, sinks...) }
}

// New creates a Tracker over the given page. Configuration defaults are
// merged once; malformed configuration fails here rather than being
// clamped. nil cfg means all defaults.
func New(cfg *Config, pg page.Page, opts ...Option) (*Tracker, error) {
	if pg == nil {
		return nil, fmt.Errorf("scrollwatch: page must not be nil")
	}
	var c config.Config
	if cfg != nil {
		c = *cfg
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	t := &Tracker{
		cfg:        c,
		page:       pg,
		logger:     slog.Default(),
		instanceID: idgen.Prefixed("trk_", idgen.Default)(),
		tracked:    make(map[string]page.Element),
	}
	for _, o := range opts {
		o(t)
	}
	t.router = sink.NewRouter(t.logger, t.sinks...)
	t.diag = diagnose.New(pg, &t.cfg, t.logger)
	t.state.Store(int32(StateConstructed))
	return t, nil
}

// InstanceID returns the process-unique identity assigned at construction.
func (t *Tracker) InstanceID() string { return t.instanceID }

// State returns the current lifecycle state.
func (t *Tracker) State() State { return State(t.state.Load()) }

// Start brings the tracker to the active state. If the page is not yet
// interactive it waits (AwaitingReady); otherwise that state is skipped.
// On activation every element matching the selector is registered with the
// observation facility and one immediate resolution pass runs, so an
// already-scrolled-to section is recognised without waiting for an event.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.State() {
	case StateDestroyed:
		return nil
	case StateConstructed:
	default:
		return fmt.Errorf("scrollwatch: already started (state %s)", t.State())
	}

	if !t.page.Ready() {
		t.state.Store(int32(StateAwaitingReady))
		if err := t.page.WaitReady(ctx); err != nil {
			return fmt.Errorf("scrollwatch: wait for page: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	var events <-chan []page.VisibilityEvent
	obs, err := t.page.Observe(runCtx, page.ObserveOptions{
		Thresholds: t.cfg.Threshold,
		RootMargin: t.cfg.RootMargin,
	})
	switch {
	case errors.Is(err, page.ErrObservationUnavailable):
		t.logger.Warn("scrollwatch: observation unavailable, visible set stays empty",
			"instance_id", t.instanceID)
	case err != nil:
		cancel()
		return fmt.Errorf("scrollwatch: start observation: %w", err)
	default:
		t.obs = obs
		events = obs.Events()
	}

	t.engine = trigger.NewEngine(trigger.EngineConfig{
		InstanceID:    t.instanceID,
		DebounceDelay: t.cfg.Debounce(),
		Events:        events,
		Deliver:       t.deliver(runCtx),
		Logger:        t.logger,
	})
	go t.engine.Run(runCtx)

	els, err := t.page.Elements(runCtx, t.cfg.Selector)
	if err != nil {
		t.logger.Warn("scrollwatch: element query failed", "selector", t.cfg.Selector, "error", err)
	}
	for _, el := range els {
		if err := t.register(el); err != nil {
			t.logger.Warn("scrollwatch: skipping element", "element", el.Key(), "error", err)
		}
	}

	t.state.Store(int32(StateActive))
	t.engine.ForceResolve()

	t.logger.Info("scrollwatch: active",
		"instance_id", t.instanceID,
		"selector", t.cfg.Selector,
		"elements", len(t.tracked))
	return nil
}

// Observe starts tracking a dynamically added element. Legal only in the
// active state; a no-op after Destroy.
func (t *Tracker) Observe(el page.Element) error {
	switch t.State() {
	case StateDestroyed:
		return nil
	case StateActive:
	default:
		return ErrNotActive
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State() != StateActive {
		return nil
	}
	return t.register(el)
}

// Unobserve stops tracking the element and evicts any visible-set entry for
// it. Legal only in the active state; a no-op after Destroy.
func (t *Tracker) Unobserve(el page.Element) error {
	switch t.State() {
	case StateDestroyed:
		return nil
	case StateActive:
	default:
		return ErrNotActive
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State() != StateActive {
		return nil
	}

	delete(t.tracked, el.Key())
	t.engine.Deregister(el)
	if t.obs != nil {
		if err := t.obs.Unobserve(el); err != nil {
			return fmt.Errorf("scrollwatch: unobserve: %w", err)
		}
	}
	return nil
}

// CurrentTriggerID returns the most recently emitted identifier, false
// before any trigger has ever fired. Once a trigger has fired this never
// reverts to false (sticky fallback).
func (t *Tracker) CurrentTriggerID() (string, bool) {
	t.mu.Lock()
	engine := t.engine
	t.mu.Unlock()
	if engine == nil {
		return "", false
	}
	return engine.Current()
}

// Diagnose inspects tracked elements, configuration, and host-page layout.
// Reports are cached for five seconds per verbose flag. When verbose is
// requested or debug is configured, the report also goes to the sinks.
func (t *Tracker) Diagnose(ctx context.Context, verbose bool) diagnose.Report {
	if t.State() == StateDestroyed {
		return diagnose.Report{}
	}
	r := t.diag.Run(ctx, verbose)
	if verbose || t.cfg.Debug {
		if err := t.router.SendReport(ctx, r); err != nil {
			t.logger.Warn("scrollwatch: report emission failed", "error", err)
		}
	}
	return r
}

// Destroy tears the tracker down: the pending debounce timer is cancelled,
// observation registrations severed, maps cleared. Terminal: every later
// operation is a no-op.
func (t *Tracker) Destroy() {
	t.mu.Lock()
	if t.State() == StateDestroyed {
		t.mu.Unlock()
		return
	}
	t.state.Store(int32(StateDestroyed))
	cancel := t.cancel
	engine := t.engine
	obs := t.obs
	t.obs = nil
	t.tracked = make(map[string]page.Element)
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	// An in-flight resolution pass may still be delivering; wait it out so
	// no callback or sink write lands after Destroy returns. Outside the
	// lock: the change callback may call back into the tracker.
	if engine != nil {
		engine.Wait()
	}
	if obs != nil {
		if err := obs.Close(); err != nil {
			t.logger.Warn("scrollwatch: close observation", "error", err)
		}
	}
	if err := t.router.Close(); err != nil {
		t.logger.Warn("scrollwatch: close sinks", "error", err)
	}
	t.logger.Info("scrollwatch: destroyed", "instance_id", t.instanceID)
}

// register reads the element's trigger identifier and wires it into the
// engine and the observation facility. Caller holds t.mu.
func (t *Tracker) register(el page.Element) error {
	id, present, err := el.Attr(t.cfg.TriggerAttribute)
	if err != nil {
		return fmt.Errorf("scrollwatch: read %s: %w", t.cfg.TriggerAttribute, err)
	}
	if !present || id == "" {
		return fmt.Errorf("scrollwatch: element has no %s value", t.cfg.TriggerAttribute)
	}

	t.tracked[el.Key()] = el
	t.engine.Register(el, id)
	if t.obs != nil {
		if err := t.obs.Observe(el); err != nil {
			delete(t.tracked, el.Key())
			t.engine.Deregister(el)
			return fmt.Errorf("scrollwatch: observe: %w", err)
		}
	}
	return nil
}

// deliver composes the synchronous egress chain: configured callback,
// process-wide broadcast, then sinks.
func (t *Tracker) deliver(ctx context.Context) func(Transition) {
	return func(tr Transition) {
		if t.onChange != nil {
			t.onChange(tr)
		}
		transitions.Publish(tr)
		if err := t.router.Send(ctx, tr); err != nil {
			t.logger.Warn("scrollwatch: sink delivery failed", "error", err)
		}
	}
}
