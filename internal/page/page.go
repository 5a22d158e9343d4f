// Package page abstracts the host page: element handles, geometry and
// computed-style queries, and intersection observation. The scrollwatch
// engine and diagnostics consume these interfaces only; the CDP-backed
// implementation lives in rod.go and an in-memory fake in fake.go.
package page

import (
	"context"
	"errors"
)

// ErrObservationUnavailable is returned by Page.Observe when the host has
// no IntersectionObserver. Callers degrade to a permanently empty visible
// set rather than failing; diagnostics reports the condition as an error.
var ErrObservationUnavailable = errors.New("page: intersection observation unavailable in host")

// Rect is a viewport-relative bounding box, in CSS pixels. Top is the
// distance from the viewport's top edge and goes negative when the element
// has scrolled past it.
type Rect struct {
	Top    float64
	Left   float64
	Width  float64
	Height float64
}

// Style is the subset of computed style the engine and diagnostics care about.
type Style struct {
	Display    string
	Visibility string
	Position   string
}

// Environment describes host-page layout properties used by diagnostics.
type Environment struct {
	DocumentHeight float64
	ViewportWidth  float64
	ViewportHeight float64
	RootOverflow   string
	BodyOverflow   string
	ViewportMeta   bool
	ObserverAPI    bool
}

// Element is a non-owning handle to a tracked page element. The host page
// owns the node; handles must not be used after the page navigates away.
type Element interface {
	// Key is a handle identity stable for the lifetime of the node.
	Key() string
	// Attr returns the attribute value and whether the attribute is present.
	Attr(name string) (string, bool, error)
	Rect() (Rect, error)
	Style() (Style, error)
}

// VisibilityEvent reports one element crossing the visibility threshold.
type VisibilityEvent struct {
	Element Element
	Visible bool
}

// Observation is a live intersection-observation session. The host delivers
// batched events at a cadence controlled by its rendering pipeline;
// per-element event order is preserved within and across batches.
type Observation interface {
	Observe(el Element) error
	Unobserve(el Element) error
	// Events yields batches until Close. The channel is closed on Close.
	Events() <-chan []VisibilityEvent
	Close() error
}

// ObserveOptions parameterise an observation session.
type ObserveOptions struct {
	// Thresholds are visibility ratios in [0,1] at which events fire.
	Thresholds []float64
	// RootMargin is a CSS-margin shorthand adjusting the viewport boundary.
	RootMargin string
}

// Page is the host page.
type Page interface {
	// Ready reports whether the page is already interactive.
	Ready() bool
	// WaitReady blocks until the page is interactive or ctx expires.
	WaitReady(ctx context.Context) error
	// Elements returns handles for all nodes matching the CSS selector,
	// in document order.
	Elements(ctx context.Context, selector string) ([]Element, error)
	// Environment queries layout properties for diagnostics.
	Environment(ctx context.Context) (Environment, error)
	// Observe starts an observation session, or returns
	// ErrObservationUnavailable.
	Observe(ctx context.Context, opts ObserveOptions) (Observation, error)
}
