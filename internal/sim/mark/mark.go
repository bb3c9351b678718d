package mark

import "fmt"

// Flags is the per-cell coordination bitset. Bits are only ever added during a tick.
type Flags uint8

// NOTE: values are persisted in snapshots and hashed into tick digests.
const (
	Sleep Flags = 1 << iota
	Lock
	Input
	Output
	HasteInput
	Bang

	None Flags = 0
)

func (f Flags) Has(bits Flags) bool { return f&bits == bits }
func (f Flags) Any(bits Flags) bool { return f&bits != 0 }

func (f Flags) String() string {
	if f == None {
		return "-"
	}
	names := []struct {
		bit  Flags
		name string
	}{
		{Sleep, "sleep"},
		{Lock, "lock"},
		{Input, "input"},
		{Output, "output"},
		{HasteInput, "haste"},
		{Bang, "bang"},
	}
	s := ""
	for _, n := range names {
		if f&n.bit == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n.name
	}
	if rest := f &^ (Sleep | Lock | Input | Output | HasteInput | Bang); rest != 0 {
		s += fmt.Sprintf("|0x%02x", uint8(rest))
	}
	return s
}

// Plane is a grid-shaped array of Flags, cleared once at the start of every tick.
type Plane struct {
	h, w  int
	cells []Flags
}

func NewPlane(height, width int) *Plane {
	if height < 0 {
		height = 0
	}
	if width < 0 {
		width = 0
	}
	return &Plane{h: height, w: width, cells: make([]Flags, height*width)}
}

func (p *Plane) Height() int { return p.h }
func (p *Plane) Width() int  { return p.w }

// Clear resets every cell to None.
func (p *Plane) Clear() {
	for i := range p.cells {
		p.cells[i] = None
	}
}

// Peek returns the flags at (y, x), or None outside the plane.
func (p *Plane) Peek(y, x int) Flags {
	if y < 0 || x < 0 || y >= p.h || x >= p.w {
		return None
	}
	return p.cells[y*p.w+x]
}

// PeekRelative returns the flags at (y+dy, x+dx), or None outside the plane.
func (p *Plane) PeekRelative(y, x, dy, dx int) Flags {
	return p.Peek(y+dy, x+dx)
}

// PokeOr ORs bits into (y, x). Out-of-bounds calls are dropped.
func (p *Plane) PokeOr(y, x int, bits Flags) {
	if y < 0 || x < 0 || y >= p.h || x >= p.w {
		return
	}
	p.cells[y*p.w+x] |= bits
}

// PokeRelativeOr ORs bits into (y+dy, x+dx). Out-of-bounds calls are dropped.
func (p *Plane) PokeRelativeOr(y, x, dy, dx int, bits Flags) {
	p.PokeOr(y+dy, x+dx, bits)
}

// Bytes returns the flags as a row-major byte slice (a copy).
func (p *Plane) Bytes() []byte {
	out := make([]byte, len(p.cells))
	for i, f := range p.cells {
		out[i] = byte(f)
	}
	return out
}

// SetBytes replaces the contents from a row-major buffer of exactly Height*Width bytes.
func (p *Plane) SetBytes(b []byte) error {
	if len(b) != len(p.cells) {
		return fmt.Errorf("mark bytes: got %d want %d", len(b), len(p.cells))
	}
	for i, c := range b {
		p.cells[i] = Flags(c)
	}
	return nil
}

// Count returns the number of cells with any of bits set.
func (p *Plane) Count(bits Flags) int {
	n := 0
	for _, f := range p.cells {
		if f&bits != 0 {
			n++
		}
	}
	return n
}
