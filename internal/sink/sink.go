// Package sink defines output backends for scrollwatch notifications.
package sink

import (
	"context"

	"github.com/hazelview/scrollwatch/internal/diagnose"
	"github.com/hazelview/scrollwatch/internal/trigger"
)

// Sink is the output interface. Implementations deliver identifier
// transitions and diagnostic reports to different backends (stdout,
// webhook, in-process callback).
type Sink interface {
	Send(ctx context.Context, tr trigger.Transition) error
	SendReport(ctx context.Context, r diagnose.Report) error
	Close() error
}
