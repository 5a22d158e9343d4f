package trigger

import (
	"testing"

	"github.com/hazelview/scrollwatch/internal/page"
)

func fakeEl(key string) *page.FakeElement {
	return page.NewFakeElement(key, nil)
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.TriggerID)
	}
	return out
}

func TestVisibleSet_InsertionOrder(t *testing.T) {
	s := NewVisibleSet()
	s.MarkVisible(fakeEl("a"), "intro")
	s.MarkVisible(fakeEl("b"), "section1")
	s.MarkVisible(fakeEl("c"), "section2")

	got := ids(s.Entries())
	want := []string{"intro", "section1", "section2"}
	if len(got) != len(want) {
		t.Fatalf("Entries: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Entries[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestVisibleSet_RemarkKeepsPosition(t *testing.T) {
	s := NewVisibleSet()
	a, b := fakeEl("a"), fakeEl("b")
	s.MarkVisible(a, "intro")
	s.MarkVisible(b, "section1")
	s.MarkVisible(a, "intro") // re-mark must not move a to the back

	got := ids(s.Entries())
	if got[0] != "intro" || got[1] != "section1" {
		t.Errorf("Entries after re-mark: got %v, want [intro section1]", got)
	}
	if s.Len() != 2 {
		t.Errorf("Len: got %d, want 2", s.Len())
	}
}

func TestVisibleSet_MarkHiddenIdempotent(t *testing.T) {
	s := NewVisibleSet()
	a := fakeEl("a")
	s.MarkVisible(a, "intro")
	s.MarkHidden(a)
	s.MarkHidden(a)

	if s.Len() != 0 {
		t.Errorf("Len after double hide: got %d, want 0", s.Len())
	}
}

func TestVisibleSet_HiddenThenVisibleGoesToBack(t *testing.T) {
	s := NewVisibleSet()
	a, b := fakeEl("a"), fakeEl("b")
	s.MarkVisible(a, "intro")
	s.MarkVisible(b, "section1")
	s.MarkHidden(a)
	s.MarkVisible(a, "intro")

	got := ids(s.Entries())
	if got[0] != "section1" || got[1] != "intro" {
		t.Errorf("Entries after round trip: got %v, want [section1 intro]", got)
	}
}

func TestVisibleSet_Clear(t *testing.T) {
	s := NewVisibleSet()
	s.MarkVisible(fakeEl("a"), "intro")
	s.Clear()
	if s.Len() != 0 || len(s.Entries()) != 0 {
		t.Errorf("Clear: set not empty, len=%d", s.Len())
	}
}
