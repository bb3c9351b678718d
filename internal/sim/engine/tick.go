package engine

import (
	"fmt"

	"orcasim.ai/internal/sim/glyph"
	"orcasim.ai/internal/sim/grid"
	"orcasim.ai/internal/sim/mark"
)

// Stats counts what one tick did. It is informational only.
type Stats struct {
	Phase0Calls int `json:"phase0_calls"`
	Phase1Calls int `json:"phase1_calls"`
	Moves       int `json:"moves"`
	Explosions  int `json:"explosions"`
	Erased      int `json:"erased"`
	Writes      int `json:"writes"`
}

// Tick advances g by exactly one step, using m as the flag plane.
// Both buffers are mutated in place and must have the same shape.
func Tick(g *grid.Grid, m *mark.Plane) Stats {
	if g.Height() != m.Height() || g.Width() != m.Width() {
		panic(fmt.Sprintf("engine: grid %dx%d does not match mark plane %dx%d",
			g.Height(), g.Width(), m.Height(), m.Width()))
	}
	var st Stats
	m.Clear()

	// Phase 0: port reservations and haste operators.
	scan(g, m, &st, mark.Sleep, func(b *behavior) func(*operator) { return b.phase0 }, &st.Phase0Calls)
	// Phase 1: resolve against the settled phase 0 result; reserved ports do not run.
	scan(g, m, &st, mark.Sleep|mark.Lock, func(b *behavior) func(*operator) { return b.phase1 }, &st.Phase1Calls)
	return st
}

// scan visits every cell in row-major order. Writes made by earlier cells are visible
// to later cells of the same scan.
func scan(g *grid.Grid, m *mark.Plane, st *Stats, skip mark.Flags, pick func(*behavior) func(*operator), calls *int) {
	h, w := g.Height(), g.Width()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := g.Peek(y, x)
			if c == glyph.Empty {
				continue
			}
			if m.Peek(y, x).Any(skip) {
				continue
			}
			k := byGlyph[c]
			if k == KindNone {
				continue
			}
			fn := pick(&table[k])
			if fn == nil {
				continue
			}
			*calls++
			fn(&operator{glyphs: g, marks: m, stats: st, y: y, x: x, self: c, kind: k})
		}
	}
}
