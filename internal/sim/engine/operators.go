package engine

import (
	"orcasim.ai/internal/sim/glyph"
	"orcasim.ai/internal/sim/mark"
)

// Kind identifies an operator family. Dual families cover an uppercase and a lowercase glyph.
type Kind uint8

const (
	KindNone Kind = iota
	KindBang
	KindNorth
	KindEast
	KindSouth
	KindWest
	KindAdd
	KindModulo
	KindIncrement

	kindCount
)

// Shape tells whether a family has one glyph (solo) or an upper/lower pair (dual).
type Shape uint8

const (
	Solo Shape = iota
	Dual
)

// Info describes an operator family for tooling and renderers.
type Info struct {
	Kind  Kind
	Name  string
	Shape Shape
	Upper glyph.Glyph // dual only
	Lower glyph.Glyph // dual only; the glyph itself for solo operators
	Ports []Port
}

// Port is a neighbor position an operator reserves during phase 0.
type Port struct {
	DY, DX int
	Flags  mark.Flags
}

var (
	inPort    = mark.Input
	hastePort = mark.Input | mark.HasteInput
	outPort   = mark.Output
)

type behavior struct {
	info   Info
	phase0 func(o *operator)
	phase1 func(o *operator)
}

var (
	table   [kindCount]behavior
	byGlyph [256]Kind
)

func init() {
	arithPorts := []Port{{0, 1, inPort}, {0, 2, inPort}, {1, 0, outPort}}
	// increment only claims its ports; the step input is read with haste.
	incrementPorts := []Port{{0, 1, hastePort}, {0, 2, inPort}, {1, 0, outPort}}

	register(behavior{
		info:   Info{Kind: KindBang, Name: "bang", Shape: Solo, Lower: glyph.Bang},
		phase0: bangPhase0,
	})
	register(directional(KindNorth, "north", 'N', -1, 0))
	register(directional(KindEast, "east", 'E', 0, 1))
	register(directional(KindSouth, "south", 'S', 1, 0))
	register(directional(KindWest, "west", 'W', 0, -1))
	register(behavior{
		info:   Info{Kind: KindAdd, Name: "add", Shape: Dual, Upper: 'A', Lower: 'a', Ports: arithPorts},
		phase0: declarePorts,
		phase1: arithmetic(glyph.Sum),
	})
	register(behavior{
		info:   Info{Kind: KindModulo, Name: "modulo", Shape: Dual, Upper: 'M', Lower: 'm', Ports: arithPorts},
		phase0: declarePorts,
		phase1: arithmetic(glyph.Remainder),
	})
	register(behavior{
		info:   Info{Kind: KindIncrement, Name: "increment", Shape: Dual, Upper: 'I', Lower: 'i', Ports: incrementPorts},
		phase0: declarePorts,
	})
}

func register(b behavior) {
	table[b.info.Kind] = b
	if b.info.Shape == Dual {
		byGlyph[b.info.Upper] = b.info.Kind
	}
	byGlyph[b.info.Lower] = b.info.Kind
}

func directional(k Kind, name string, upper glyph.Glyph, dy, dx int) behavior {
	return behavior{
		info:   Info{Kind: k, Name: name, Shape: Dual, Upper: upper, Lower: glyph.Lower(upper)},
		phase0: func(o *operator) {
			if !o.active() || o.lockedOrSleeping() {
				return
			}
			o.moveOrExplode(dy, dx)
		},
	}
}

func bangPhase0(o *operator) {
	if o.lockedOrSleeping() {
		return
	}
	o.pokeSelf(glyph.Empty)
	o.marks.PokeOr(o.y, o.x, mark.Bang)
	o.stats.Erased++
}

// declarePorts reserves the operator's neighbor ports. Lock is added only when the
// operator itself is free; the port bits are always added.
func declarePorts(o *operator) {
	if !o.active() {
		return
	}
	lock := mark.None
	if !o.lockedOrSleeping() {
		lock = mark.Lock
	}
	for _, p := range table[o.kind].info.Ports {
		o.marks.PokeRelativeOr(o.y, o.x, p.DY, p.DX, p.Flags|lock)
	}
}

func arithmetic(fn func(a, b glyph.Glyph) glyph.Glyph) func(o *operator) {
	return func(o *operator) {
		if !o.active() {
			return
		}
		a := o.peek(0, 1)
		b := o.peek(0, 2)
		if a == glyph.Empty || b == glyph.Empty {
			return
		}
		o.poke(1, 0, fn(a, b))
		o.stats.Writes++
	}
}

// Lookup returns the operator family bound to g.
func Lookup(g glyph.Glyph) (Info, bool) {
	k := byGlyph[g]
	if k == KindNone {
		return Info{}, false
	}
	return table[k].info, true
}

// Operators lists every registered family in Kind order.
func Operators() []Info {
	out := make([]Info, 0, kindCount-1)
	for k := KindBang; k < kindCount; k++ {
		out = append(out, table[k].info)
	}
	return out
}

func (k Kind) String() string {
	if k == KindNone || k >= kindCount {
		return "none"
	}
	return table[k].info.Name
}
