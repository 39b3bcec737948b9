package ids

import "testing"

func TestNewIsSortableAndValid(t *testing.T) {
	a := New()
	b := New()
	if a >= b {
		t.Fatalf("expected monotonic ids, got %s then %s", a, b)
	}
	if !Valid(a) || !Valid(b) {
		t.Fatalf("generated ids must parse: %s %s", a, b)
	}
}

func TestEnsureKeepsSuppliedID(t *testing.T) {
	if got := Ensure("  client-7 "); got != "client-7" {
		t.Fatalf("Ensure kept %q", got)
	}
	if got := Ensure(""); !Valid(got) {
		t.Fatalf("Ensure generated invalid id %q", got)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, id := range []string{"", "abc", "01ARZ3NDEKTSV4RRFFQ69G5FA"} {
		if Valid(id) {
			t.Fatalf("expected %q to be invalid", id)
		}
	}
}
