package page

import (
	"context"
	"fmt"
	"sync"
)

// FakeElement is an in-memory Element useful in tests.
type FakeElement struct {
	mu     sync.Mutex
	key    string
	attrs  map[string]string
	rect   Rect
	style  Style
	broken bool
}

// NewFakeElement creates an element with the given key and trigger
// attribute values.
func NewFakeElement(key string, attrs map[string]string) *FakeElement {
	cp := make(map[string]string, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return &FakeElement{key: key, attrs: cp, style: Style{Display: "block", Visibility: "visible", Position: "static"}}
}

func (e *FakeElement) Key() string { return e.key }

func (e *FakeElement) Attr(name string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.broken {
		return "", false, fmt.Errorf("page: element %q detached", e.key)
	}
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *FakeElement) Rect() (Rect, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.broken {
		return Rect{}, fmt.Errorf("page: element %q detached", e.key)
	}
	return e.rect, nil
}

func (e *FakeElement) Style() (Style, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.broken {
		return Style{}, fmt.Errorf("page: element %q detached", e.key)
	}
	return e.style, nil
}

// SetRect updates the element geometry.
func (e *FakeElement) SetRect(r Rect) {
	e.mu.Lock()
	e.rect = r
	e.mu.Unlock()
}

// SetStyle updates the computed style.
func (e *FakeElement) SetStyle(s Style) {
	e.mu.Lock()
	e.style = s
	e.mu.Unlock()
}

// Detach makes all queries fail, simulating a removed node.
func (e *FakeElement) Detach() {
	e.mu.Lock()
	e.broken = true
	e.mu.Unlock()
}

// FakePage is an in-memory Page useful in tests. Visibility events are
// injected with Emit on the observation returned by Observe.
type FakePage struct {
	mu       sync.Mutex
	ready    bool
	elements []*FakeElement
	env      Environment
	noAPI    bool
	obs      *FakeObservation
}

// NewFakePage creates a ready page with the given elements and a
// scrollable default environment.
func NewFakePage(elements ...*FakeElement) *FakePage {
	return &FakePage{
		ready:    true,
		elements: elements,
		env: Environment{
			DocumentHeight: 4000,
			ViewportWidth:  1280,
			ViewportHeight: 800,
			RootOverflow:   "visible",
			BodyOverflow:   "visible",
			ViewportMeta:   true,
			ObserverAPI:    true,
		},
	}
}

func (p *FakePage) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *FakePage) WaitReady(ctx context.Context) error {
	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()
	return ctx.Err()
}

func (p *FakePage) Elements(_ context.Context, _ string) ([]Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Element, 0, len(p.elements))
	for _, el := range p.elements {
		out = append(out, el)
	}
	return out, nil
}

func (p *FakePage) Environment(_ context.Context) (Environment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.env, nil
}

func (p *FakePage) Observe(_ context.Context, _ ObserveOptions) (Observation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.noAPI {
		return nil, ErrObservationUnavailable
	}
	p.obs = &FakeObservation{
		events:   make(chan []VisibilityEvent, 64),
		observed: make(map[string]bool),
	}
	return p.obs, nil
}

// SetReady controls readiness reported before WaitReady.
func (p *FakePage) SetReady(ready bool) {
	p.mu.Lock()
	p.ready = ready
	p.mu.Unlock()
}

// SetEnvironment replaces the reported layout environment.
func (p *FakePage) SetEnvironment(env Environment) {
	p.mu.Lock()
	p.env = env
	p.mu.Unlock()
}

// DisableObserverAPI makes Observe fail with ErrObservationUnavailable and
// marks the environment accordingly.
func (p *FakePage) DisableObserverAPI() {
	p.mu.Lock()
	p.noAPI = true
	p.env.ObserverAPI = false
	p.mu.Unlock()
}

// Observation returns the session created by the last Observe call.
func (p *FakePage) Observation() *FakeObservation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.obs
}

// FakeObservation records observed elements and lets tests inject batches.
type FakeObservation struct {
	mu         sync.Mutex
	observed   map[string]bool
	closed     bool
	observeErr error
	events     chan []VisibilityEvent
}

func (o *FakeObservation) Observe(el Element) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return fmt.Errorf("page: observation closed")
	}
	if o.observeErr != nil {
		return o.observeErr
	}
	o.observed[el.Key()] = true
	return nil
}

func (o *FakeObservation) Unobserve(el Element) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.observed, el.Key())
	return nil
}

func (o *FakeObservation) Events() <-chan []VisibilityEvent {
	return o.events
}

func (o *FakeObservation) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	close(o.events)
	return nil
}

// SetObserveError makes subsequent Observe calls fail with err. nil clears
// the failure.
func (o *FakeObservation) SetObserveError(err error) {
	o.mu.Lock()
	o.observeErr = err
	o.mu.Unlock()
}

// Observing reports whether the element key is currently registered.
func (o *FakeObservation) Observing(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.observed[key]
}

// Emit injects a visibility-event batch, as the host would.
func (o *FakeObservation) Emit(events ...VisibilityEvent) {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return
	}
	o.events <- events
}
