// Package trigger implements the trigger-resolution engine: the visible-set
// store fed by the host's visibility events, the pure resolver that picks a
// single active identifier, trailing-edge debouncing, and the change
// notifier that guarantees at-most-one notification per transition.
package trigger

import (
	"container/list"

	"github.com/hazelview/scrollwatch/internal/page"
)

// Entry is a visible tracked element and its trigger identifier.
type Entry struct {
	Element   page.Element
	TriggerID string
}

// VisibleSet maps tracked elements to trigger identifiers, containing only
// elements the host currently reports visible. Entries are mutated by
// visibility-event intake only, never by resolution. Iteration order is
// insertion order, which makes the resolver's tie-break deterministic for
// the lifetime of an entry.
type VisibleSet struct {
	index map[string]*list.Element
	order *list.List
}

// NewVisibleSet creates an empty set.
func NewVisibleSet() *VisibleSet {
	return &VisibleSet{
		index: make(map[string]*list.Element),
		order: list.New(),
	}
}

// MarkVisible inserts or updates the entry for the element. Re-marking a
// visible element keeps its position in iteration order. Idempotent, O(1).
func (s *VisibleSet) MarkVisible(el page.Element, triggerID string) {
	key := el.Key()
	if node, ok := s.index[key]; ok {
		node.Value = Entry{Element: el, TriggerID: triggerID}
		return
	}
	s.index[key] = s.order.PushBack(Entry{Element: el, TriggerID: triggerID})
}

// MarkHidden removes the element's entry if present. Idempotent, O(1).
func (s *VisibleSet) MarkHidden(el page.Element) {
	s.Evict(el.Key())
}

// Evict removes the entry with the given element key if present.
func (s *VisibleSet) Evict(key string) {
	if node, ok := s.index[key]; ok {
		s.order.Remove(node)
		delete(s.index, key)
	}
}

// Len returns the number of visible entries.
func (s *VisibleSet) Len() int {
	return len(s.index)
}

// Entries returns a snapshot in insertion order.
func (s *VisibleSet) Entries() []Entry {
	out := make([]Entry, 0, s.order.Len())
	for node := s.order.Front(); node != nil; node = node.Next() {
		out = append(out, node.Value.(Entry))
	}
	return out
}

// Clear removes all entries.
func (s *VisibleSet) Clear() {
	s.index = make(map[string]*list.Element)
	s.order.Init()
}
