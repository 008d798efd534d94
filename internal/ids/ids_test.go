package ids

import (
	"testing"
	"time"
)

func TestNewIsValidAndSorted(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := NewAt(at)
	b := NewAt(at)
	if !Valid(a) || !Valid(b) {
		t.Fatalf("expected valid ids, got %q %q", a, b)
	}
	if a >= b {
		t.Fatalf("expected monotonic ids within one millisecond, got %q then %q", a, b)
	}
	if later := NewAt(at.Add(time.Second)); later <= b {
		t.Fatalf("expected later id to sort after %q, got %q", b, later)
	}
}

func TestValid(t *testing.T) {
	for _, s := range []string{"", "nope", "01S", "01ARZ3NDEKTSV4RRFFQ69G5FA", "01ARZ3NDEKTSV4RRFFQ69G5FAVX"} {
		if Valid(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
	if !Valid(New()) {
		t.Fatal("expected New to return a valid id")
	}
}
