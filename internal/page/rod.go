package page

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

//go:embed intersection.js
var intersectionJS string

// sessionSeq disambiguates binding names when several observation sessions
// share one page.
var sessionSeq atomic.Uint64

// RodPage adapts a Rod page to the Page interface. Visibility observation
// is implemented by injecting an IntersectionObserver and receiving its
// batches over a Runtime binding, so batching cadence stays under the
// browser's rendering pipeline, not under Go code.
type RodPage struct {
	page   *rod.Page
	logger *slog.Logger
}

// NewRod wraps a Rod page.
func NewRod(p *rod.Page, logger *slog.Logger) *RodPage {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodPage{page: p, logger: logger}
}

func (r *RodPage) Ready() bool {
	res, err := r.page.Eval(`() => document.readyState === 'interactive' || document.readyState === 'complete'`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

func (r *RodPage) WaitReady(ctx context.Context) error {
	if err := r.page.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("page: wait load: %w", err)
	}
	return nil
}

func (r *RodPage) Elements(ctx context.Context, selector string) ([]Element, error) {
	els, err := r.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("page: query %q: %w", selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (r *RodPage) Environment(ctx context.Context) (Environment, error) {
	res, err := r.page.Context(ctx).Eval(`() => ({
		document_height: Math.max(
			document.documentElement.scrollHeight,
			document.body ? document.body.scrollHeight : 0),
		viewport_width: window.innerWidth,
		viewport_height: window.innerHeight,
		root_overflow: getComputedStyle(document.documentElement).overflow,
		body_overflow: document.body ? getComputedStyle(document.body).overflow : '',
		viewport_meta: !!document.querySelector('meta[name="viewport"]'),
		observer_api: typeof IntersectionObserver !== 'undefined',
	})`)
	if err != nil {
		return Environment{}, fmt.Errorf("page: environment query: %w", err)
	}
	v := res.Value
	return Environment{
		DocumentHeight: v.Get("document_height").Num(),
		ViewportWidth:  v.Get("viewport_width").Num(),
		ViewportHeight: v.Get("viewport_height").Num(),
		RootOverflow:   v.Get("root_overflow").Str(),
		BodyOverflow:   v.Get("body_overflow").Str(),
		ViewportMeta:   v.Get("viewport_meta").Bool(),
		ObserverAPI:    v.Get("observer_api").Bool(),
	}, nil
}

func (r *RodPage) Observe(ctx context.Context, opts ObserveOptions) (Observation, error) {
	avail, err := r.page.Context(ctx).Eval(`() => typeof IntersectionObserver !== 'undefined'`)
	if err != nil {
		return nil, fmt.Errorf("page: feature check: %w", err)
	}
	if !avail.Value.Bool() {
		return nil, ErrObservationUnavailable
	}

	seq := sessionSeq.Add(1)
	obs := &rodObservation{
		page:    r.page,
		ns:      fmt.Sprintf("__scrollwatch_%d", seq),
		binding: fmt.Sprintf("__scrollwatch_binding_%d", seq),
		events:  make(chan []VisibilityEvent, 64),
		elems:   make(map[string]Element),
		logger:  r.logger,
	}

	if err := (proto.RuntimeAddBinding{Name: obs.binding}).Call(r.page); err != nil {
		return nil, fmt.Errorf("page: add binding: %w", err)
	}

	// Listener starts before injection so the observer's initial batch is
	// never missed.
	listenCtx, cancel := context.WithCancel(ctx)
	obs.cancel = cancel
	go obs.listen(listenCtx)

	thresholds := opts.Thresholds
	if len(thresholds) == 0 {
		thresholds = []float64{0}
	}
	rootMargin := opts.RootMargin
	if rootMargin == "" {
		rootMargin = "0px"
	}
	cfg, err := json.Marshal(map[string]any{
		"ns":         obs.ns,
		"binding":    obs.binding,
		"thresholds": thresholds,
		"rootMargin": rootMargin,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("page: marshal observer config: %w", err)
	}
	if _, err := r.page.Context(ctx).Eval(fmt.Sprintf("() => { window.__scrollwatch_cfg = %s; }", cfg)); err != nil {
		cancel()
		return nil, fmt.Errorf("page: set observer config: %w", err)
	}
	if _, err := r.page.Context(ctx).Eval(intersectionJS); err != nil {
		cancel()
		return nil, fmt.Errorf("page: inject observer: %w", err)
	}

	return obs, nil
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Key() string {
	return string(e.el.Object.ObjectID)
}

func (e *rodElement) Attr(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("page: read attribute %q: %w", name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) Rect() (Rect, error) {
	res, err := e.el.Eval(`() => {
		const r = this.getBoundingClientRect();
		return { top: r.top, left: r.left, width: r.width, height: r.height };
	}`)
	if err != nil {
		return Rect{}, fmt.Errorf("page: bounding rect: %w", err)
	}
	v := res.Value
	return Rect{
		Top:    v.Get("top").Num(),
		Left:   v.Get("left").Num(),
		Width:  v.Get("width").Num(),
		Height: v.Get("height").Num(),
	}, nil
}

func (e *rodElement) Style() (Style, error) {
	res, err := e.el.Eval(`() => {
		const s = getComputedStyle(this);
		return { display: s.display, visibility: s.visibility, position: s.position };
	}`)
	if err != nil {
		return Style{}, fmt.Errorf("page: computed style: %w", err)
	}
	v := res.Value
	return Style{
		Display:    v.Get("display").Str(),
		Visibility: v.Get("visibility").Str(),
		Position:   v.Get("position").Str(),
	}, nil
}

type rodObservation struct {
	page    *rod.Page
	ns      string
	binding string
	events  chan []VisibilityEvent
	cancel  context.CancelFunc
	logger  *slog.Logger

	mu     sync.Mutex
	elems  map[string]Element
	closed bool
}

func (o *rodObservation) Observe(el Element) error {
	re, ok := el.(*rodElement)
	if !ok {
		return fmt.Errorf("page: element %q is not a rod element", el.Key())
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return fmt.Errorf("page: observation closed")
	}
	o.elems[el.Key()] = el
	o.mu.Unlock()

	_, err := re.el.Eval(`(ns, key) => { window[ns].observe(this, key); }`, o.ns, el.Key())
	if err != nil {
		return fmt.Errorf("page: observe element: %w", err)
	}
	return nil
}

func (o *rodObservation) Unobserve(el Element) error {
	re, ok := el.(*rodElement)
	if !ok {
		return fmt.Errorf("page: element %q is not a rod element", el.Key())
	}
	o.mu.Lock()
	delete(o.elems, el.Key())
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return nil
	}

	_, err := re.el.Eval(`(ns) => { window[ns].unobserve(this); }`, o.ns)
	if err != nil {
		return fmt.Errorf("page: unobserve element: %w", err)
	}
	return nil
}

func (o *rodObservation) Events() <-chan []VisibilityEvent {
	return o.events
}

func (o *rodObservation) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.elems = make(map[string]Element)
	o.mu.Unlock()

	_, evalErr := o.page.Eval(`(ns) => { if (window[ns]) window[ns].disconnect(); }`, o.ns)
	if err := (proto.RuntimeRemoveBinding{Name: o.binding}).Call(o.page); err != nil && evalErr == nil {
		evalErr = err
	}
	o.cancel()
	return evalErr
}

// listen receives binding calls from the injected observer and converts
// them into event batches, preserving per-element delivery order.
func (o *rodObservation) listen(ctx context.Context) {
	defer close(o.events)

	o.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != o.binding {
			return
		}

		var raw []struct {
			Key     string `json:"key"`
			Visible bool   `json:"visible"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &raw); err != nil {
			o.logger.Warn("page: parse binding payload", "error", err)
			return
		}

		batch := make([]VisibilityEvent, 0, len(raw))
		o.mu.Lock()
		for _, r := range raw {
			if el, ok := o.elems[r.Key]; ok {
				batch = append(batch, VisibilityEvent{Element: el, Visible: r.Visible})
			}
		}
		o.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		o.emit(ctx, batch)
	})()
}

// emit hands a batch to the consumer, blocking until it is accepted or the
// session ends. Dropping is not an option: a lost hide event would leave a
// stale visible-set entry with no resync path.
func (o *rodObservation) emit(ctx context.Context, batch []VisibilityEvent) {
	select {
	case o.events <- batch:
	case <-ctx.Done():
	}
}
