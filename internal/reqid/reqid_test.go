package reqid

import "testing"

func TestNextEncodesThreadNumberInHighByte(t *testing.T) {
	g := NewGenerator(7)
	id := g.Next()
	if got := byte(id >> 56); got != 7 {
		t.Errorf("high byte = %d, want 7", got)
	}
}

func TestNextNeverRepeatsWithinOneGenerator(t *testing.T) {
	g := NewGenerator(0)
	seen := make(map[ID]bool)
	for i := 0; i < 1000; i++ {
		id := g.Next()
		if seen[id] {
			t.Fatalf("duplicate ID %s at iteration %d", id, i)
		}
		seen[id] = true
	}
}

func TestStringIsSixteenHexDigits(t *testing.T) {
	g := NewGenerator(1)
	s := g.Next().String()
	if len(s) != 16 {
		t.Fatalf("String() = %q, want 16 characters, got %d", s, len(s))
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			t.Fatalf("String() = %q, contains non-hex-lowercase rune %q", s, c)
		}
	}
}

func TestChildKeepsRootFixed(t *testing.T) {
	root := Pair{Self: 0x1, Root: 0x1}
	child := root.Child(0x2)
	if child.Root != root.Root {
		t.Errorf("Child Root = %x, want unchanged %x", child.Root, root.Root)
	}
	if child.Self != 0x2 {
		t.Errorf("Child Self = %x, want 0x2", child.Self)
	}

	grandchild := child.Child(0x3)
	if grandchild.Root != root.Root {
		t.Errorf("grandchild Root = %x, want root %x preserved across two levels", grandchild.Root, root.Root)
	}
}
