package mark

import "testing"

func TestPlane_OrIsMonotonic(t *testing.T) {
	p := NewPlane(2, 3)
	p.PokeOr(0, 1, Lock)
	p.PokeOr(0, 1, Input)
	p.PokeOr(0, 1, Lock)
	if got := p.Peek(0, 1); got != Lock|Input {
		t.Fatalf("Peek(0,1) = %v", got)
	}
	if !p.Peek(0, 1).Has(Lock) || p.Peek(0, 1).Has(Lock|Sleep) || !p.Peek(0, 1).Any(Lock|Sleep) {
		t.Fatalf("Has/Any mismatch for %v", p.Peek(0, 1))
	}
	p.PokeRelativeOr(0, 1, 1, 1, Sleep)
	if got := p.Peek(1, 2); got != Sleep {
		t.Fatalf("Peek(1,2) = %v", got)
	}
}

func TestPlane_OutOfBoundsDropped(t *testing.T) {
	p := NewPlane(2, 2)
	p.PokeOr(-1, 0, Lock)
	p.PokeOr(0, 2, Lock)
	p.PokeRelativeOr(1, 1, 1, 0, Lock)
	if n := p.Count(^None); n != 0 {
		t.Fatalf("out-of-bounds writes landed: %d cells", n)
	}
	if got := p.PeekRelative(0, 0, -1, -1); got != None {
		t.Fatalf("PeekRelative off-plane = %v", got)
	}
}

func TestPlane_Clear(t *testing.T) {
	p := NewPlane(3, 3)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			p.PokeOr(y, x, Sleep|Output)
		}
	}
	p.Clear()
	for _, b := range p.Bytes() {
		if b != 0 {
			t.Fatalf("Clear left bits set: %v", p.Bytes())
		}
	}
}

func TestFlags_String(t *testing.T) {
	cases := map[Flags]string{
		None:                "-",
		Sleep:               "sleep",
		Lock | Input:        "lock|input",
		Output | HasteInput: "output|haste",
		Bang:                "bang",
	}
	for f, want := range cases {
		if got := f.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", f, got, want)
		}
	}
}
