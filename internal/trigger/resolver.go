package trigger

// Candidate is a visible entry with its top coordinate sampled at
// resolution time.
type Candidate struct {
	ID  string
	Top float64
}

// Outcome of a resolution pass. Active false means retain: nothing has ever
// been visible and no identifier is emitted.
type Outcome struct {
	ID     string
	Active bool
}

// Resolve picks the next active identifier. With candidates present, the
// one whose top coordinate is numerically smallest wins; ties go to the
// first-encountered candidate, which for the engine means earliest insertion
// into the visible set. With no candidates the last valid identifier is
// returned unchanged (sticky fallback), so consumers never observe "no
// active trigger" once any trigger has fired.
func Resolve(candidates []Candidate, lastValid string) Outcome {
	if len(candidates) == 0 {
		if lastValid == "" {
			return Outcome{}
		}
		return Outcome{ID: lastValid, Active: true}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Top < best.Top {
			best = c
		}
	}
	return Outcome{ID: best.ID, Active: true}
}
