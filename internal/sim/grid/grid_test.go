package grid

import "testing"

func TestGrid_PeekPokeBounds(t *testing.T) {
	g := New(3, 4)
	if g.Height() != 3 || g.Width() != 4 {
		t.Fatalf("dims: got %dx%d", g.Height(), g.Width())
	}
	g.Poke(1, 2, 'E')
	if got := g.Peek(1, 2); got != 'E' {
		t.Fatalf("Peek(1,2) = %q", got)
	}
	if got := g.PeekRelative(0, 1, 1, 1); got != 'E' {
		t.Fatalf("PeekRelative = %q", got)
	}

	for _, p := range [][2]int{{-1, 0}, {0, -1}, {3, 0}, {0, 4}, {100, 100}} {
		if got := g.Peek(p[0], p[1]); got != '.' {
			t.Fatalf("Peek%v = %q, want '.'", p, got)
		}
	}
	if got := g.PeekRelative(0, 0, -1, 0); got != '.' {
		t.Fatalf("PeekRelative off-grid = %q", got)
	}

	before := g.String()
	g.Poke(-1, 0, '1')
	g.PokeRelative(2, 3, 0, 1, '1')
	g.PokeRelative(2, 3, 1, 0, '1')
	if g.String() != before {
		t.Fatalf("out-of-bounds poke mutated grid:\n%s", g.String())
	}
}

func TestGrid_FromRows(t *testing.T) {
	g, err := FromRows([]string{"A1.2", "..!*"})
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}
	if g.Row(0) != "A1.2" || g.Row(1) != "...*" {
		t.Fatalf("rows: %q", g.Rows())
	}
	if g.Count() != 4 {
		t.Fatalf("Count = %d", g.Count())
	}
	if _, err := FromRows([]string{"...", ".."}); err == nil {
		t.Fatalf("expected ragged rows error")
	}
}

func TestGrid_CloneEqualSetBytes(t *testing.T) {
	g := MustFromRows("ab", "cd")
	c := g.Clone()
	if !g.Equal(c) {
		t.Fatalf("clone not equal")
	}
	c.Poke(0, 0, '.')
	if g.Equal(c) || g.Peek(0, 0) != 'a' {
		t.Fatalf("clone shares storage")
	}
	if err := c.SetBytes([]byte("wxy?")); err != nil {
		t.Fatalf("SetBytes: %v", err)
	}
	if c.String() != "wx\ny." {
		t.Fatalf("SetBytes result %q", c.String())
	}
	if err := c.SetBytes([]byte("abc")); err == nil {
		t.Fatalf("expected size error")
	}
}
