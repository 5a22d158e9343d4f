package sink

import (
	"context"

	"github.com/hazelview/scrollwatch/internal/diagnose"
	"github.com/hazelview/scrollwatch/internal/trigger"
)

// TransitionFunc is called for each identifier transition (in-process,
// zero serialisation).
type TransitionFunc func(ctx context.Context, tr trigger.Transition) error

// ReportFunc is called for each diagnostic report.
type ReportFunc func(ctx context.Context, r diagnose.Report) error

// Callback delivers notifications via Go function calls, the in-process
// path when the consumer lives in the same binary.
type Callback struct {
	onTransition TransitionFunc
	onReport     ReportFunc
}

// NewCallback creates a Callback sink. Either handler may be nil.
func NewCallback(onTransition TransitionFunc, onReport ReportFunc) *Callback {
	return &Callback{onTransition: onTransition, onReport: onReport}
}

func (c *Callback) Send(ctx context.Context, tr trigger.Transition) error {
	if c.onTransition != nil {
		return c.onTransition(ctx, tr)
	}
	return nil
}

func (c *Callback) SendReport(ctx context.Context, r diagnose.Report) error {
	if c.onReport != nil {
		return c.onReport(ctx, r)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
