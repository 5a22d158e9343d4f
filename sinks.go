package scrollwatch

import (
	"context"
	"io"
	"log/slog"

	"github.com/hazelview/scrollwatch/internal/diagnose"
	"github.com/hazelview/scrollwatch/internal/sink"
)

// Sink is the output interface for scrollwatch notifications.
type Sink = sink.Sink

// Report is a diagnostic report.
type Report = diagnose.Report

// Issue is a single diagnostic finding.
type Issue = diagnose.Issue

// Severity of a diagnostic issue.
type Severity = diagnose.Severity

// Severity levels.
const (
	SeverityError   = diagnose.SeverityError
	SeverityWarning = diagnose.SeverityWarning
	SeverityInfo    = diagnose.SeverityInfo
)

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// TransitionFunc is called for each identifier transition.
type TransitionFunc = sink.TransitionFunc

// ReportFunc is called for each diagnostic report.
type ReportFunc = sink.ReportFunc

// NewCallbackSink creates an in-process callback sink with no serialisation.
func NewCallbackSink(
	onTransition func(ctx context.Context, tr Transition) error,
	onReport func(ctx context.Context, r Report) error,
) Sink {
	return sink.NewCallback(onTransition, onReport)
}
