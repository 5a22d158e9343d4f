package trigger

import (
	"sync/atomic"
	"time"
)

// Transition is the payload delivered on every identifier change.
type Transition struct {
	Current    string `json:"current"`
	Previous   string `json:"previous,omitempty"`
	Timestamp  int64  `json:"timestamp"` // epoch milliseconds
	InstanceID string `json:"instance_id"`
}

// Notifier compares resolved identifiers against the last emitted one and
// delivers a Transition only on change: at most one notification per
// distinct transition, never duplicates for an unchanged identifier.
type Notifier struct {
	instanceID string
	deliver    func(Transition)
	now        func() time.Time

	// current holds the most recently emitted identifier. Atomic so
	// CurrentTriggerID can be read outside the engine goroutine.
	current atomic.Value // string
}

// NewNotifier creates a Notifier. deliver is invoked synchronously on each
// transition and may be nil.
func NewNotifier(instanceID string, deliver func(Transition)) *Notifier {
	return &Notifier{
		instanceID: instanceID,
		deliver:    deliver,
		now:        time.Now,
	}
}

// Notify applies an outcome. It returns the emitted transition and true
// when the identifier changed; otherwise no side effect occurs.
func (n *Notifier) Notify(o Outcome) (Transition, bool) {
	if !o.Active {
		return Transition{}, false
	}
	previous, _ := n.Current()
	if o.ID == previous {
		return Transition{}, false
	}

	tr := Transition{
		Current:    o.ID,
		Previous:   previous,
		Timestamp:  n.now().UnixMilli(),
		InstanceID: n.instanceID,
	}
	n.current.Store(o.ID)
	if n.deliver != nil {
		n.deliver(tr)
	}
	return tr, true
}

// Current returns the most recently emitted identifier, false before any
// emission.
func (n *Notifier) Current() (string, bool) {
	v := n.current.Load()
	if v == nil {
		return "", false
	}
	return v.(string), true
}
