package engine

import (
	"orcasim.ai/internal/sim/glyph"
	"orcasim.ai/internal/sim/grid"
	"orcasim.ai/internal/sim/mark"
)

// operator is the interpretation of one glyph at one position for one phase call.
// It must not be retained after the call returns.
type operator struct {
	glyphs *grid.Grid
	marks  *mark.Plane
	stats  *Stats

	y, x int
	self glyph.Glyph
	kind Kind
}

func (o *operator) peek(dy, dx int) glyph.Glyph {
	return o.glyphs.PeekRelative(o.y, o.x, dy, dx)
}

func (o *operator) poke(dy, dx int, g glyph.Glyph) {
	o.glyphs.PokeRelative(o.y, o.x, dy, dx, g)
}

func (o *operator) pokeSelf(g glyph.Glyph) { o.glyphs.Poke(o.y, o.x, g) }

func (o *operator) flags() mark.Flags { return o.marks.Peek(o.y, o.x) }

func (o *operator) lockedOrSleeping() bool {
	return o.flags().Any(mark.Lock | mark.Sleep)
}

// active reports whether the operator runs this tick: uppercase and solo glyphs always,
// lowercase dual glyphs only next to a bang.
func (o *operator) active() bool {
	info := &table[o.kind].info
	if info.Shape == Solo || o.self == info.Upper {
		return true
	}
	return o.hasNeighboringBang()
}

// hasNeighboringBang checks the four orthogonal neighbors for a bang glyph, or for a
// bang that already fired (and erased itself) earlier this tick.
func (o *operator) hasNeighboringBang() bool {
	for _, d := range [4][2]int{{0, 1}, {0, -1}, {1, 0}, {-1, 0}} {
		if o.peek(d[0], d[1]) == glyph.Bang {
			return true
		}
		if o.marks.PeekRelative(o.y, o.x, d[0], d[1]).Has(mark.Bang) {
			return true
		}
	}
	return false
}

// moveOrExplode moves the operator by (dy, dx). Leaving the grid or hitting an occupied
// cell turns the operator into a bang in place; a blocker is put to sleep for the tick.
func (o *operator) moveOrExplode(dy, dx int) {
	ty, tx := o.y+dy, o.x+dx
	if !o.glyphs.InBounds(ty, tx) {
		o.pokeSelf(glyph.Bang)
		o.stats.Explosions++
		return
	}
	if o.glyphs.Peek(ty, tx) != glyph.Empty {
		o.pokeSelf(glyph.Bang)
		o.marks.PokeOr(ty, tx, mark.Sleep)
		o.stats.Explosions++
		return
	}
	o.glyphs.Poke(ty, tx, o.self)
	o.marks.PokeOr(ty, tx, mark.Sleep)
	o.pokeSelf(glyph.Empty)
	o.stats.Moves++
}
