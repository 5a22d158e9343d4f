// Package diagnose statically and dynamically inspects tracked elements,
// configuration, and host-page layout to explain resolver behaviour: it
// surfaces the misconfigurations that would otherwise silently break
// trigger resolution.
package diagnose

import (
	"time"
)

// Severity of a diagnostic issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is a structured, severity-tagged description of a configuration or
// layout condition that impairs correct resolution.
type Issue struct {
	Type       string   `json:"type"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
	TriggerID  string   `json:"trigger_id,omitempty"`
	ElementKey string   `json:"element_key,omitempty"`
}

// Report aggregates issues with a derived status and performance score.
type Report struct {
	Status      string    `json:"status"` // ok | warning | error
	Score       float64   `json:"score"`  // [0,10]
	Issues      []Issue   `json:"issues"`
	Elements    int       `json:"elements"`
	GeneratedAt time.Time `json:"generated_at"`
	Verbose     bool      `json:"verbose"`
}

// Score deductions per issue severity.
const (
	errorPenalty   = 3.0
	warningPenalty = 1.0
	infoPenalty    = 0.5
)

// buildReport derives status and score from the issue list. Status is the
// worst severity present; score starts at 10 and deducts per issue, floored
// at 0.
func buildReport(issues []Issue, elements int, now time.Time, verbose bool) Report {
	status := "ok"
	score := 10.0
	for _, is := range issues {
		switch is.Severity {
		case SeverityError:
			score -= errorPenalty
			status = "error"
		case SeverityWarning:
			score -= warningPenalty
			if status != "error" {
				status = "warning"
			}
		case SeverityInfo:
			score -= infoPenalty
		}
	}
	if score < 0 {
		score = 0
	}
	return Report{
		Status:      status,
		Score:       score,
		Issues:      issues,
		Elements:    elements,
		GeneratedAt: now,
		Verbose:     verbose,
	}
}
