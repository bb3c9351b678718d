package grid

import (
	"fmt"
	"strings"

	"orcasim.ai/internal/sim/glyph"
)

// Grid is a row-major height x width buffer of glyphs addressed as (y, x).
type Grid struct {
	h, w  int
	cells []glyph.Glyph
}

// New returns an empty (all '.') grid. Negative dimensions are treated as zero.
func New(height, width int) *Grid {
	if height < 0 {
		height = 0
	}
	if width < 0 {
		width = 0
	}
	g := &Grid{h: height, w: width, cells: make([]glyph.Glyph, height*width)}
	g.Fill(glyph.Empty)
	return g
}

// FromRows builds a grid from equal-length rows. Bytes that are not valid glyphs become '.'.
func FromRows(rows []string) (*Grid, error) {
	if len(rows) == 0 {
		return New(0, 0), nil
	}
	width := len(rows[0])
	g := New(len(rows), width)
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d: width %d, want %d", y, len(row), width)
		}
		for x := 0; x < width; x++ {
			g.cells[y*width+x] = glyph.Sanitize(row[x])
		}
	}
	return g, nil
}

// MustFromRows is FromRows for literals in tests and fixtures.
func MustFromRows(rows ...string) *Grid {
	g, err := FromRows(rows)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Grid) Height() int { return g.h }
func (g *Grid) Width() int  { return g.w }

// InBounds reports whether (y, x) lies inside the grid.
func (g *Grid) InBounds(y, x int) bool {
	return y >= 0 && x >= 0 && y < g.h && x < g.w
}

// Peek returns the glyph at (y, x), or '.' outside the grid.
func (g *Grid) Peek(y, x int) glyph.Glyph {
	if !g.InBounds(y, x) {
		return glyph.Empty
	}
	return g.cells[y*g.w+x]
}

// PeekRelative returns the glyph at (y+dy, x+dx), or '.' outside the grid.
func (g *Grid) PeekRelative(y, x, dy, dx int) glyph.Glyph {
	return g.Peek(y+dy, x+dx)
}

// Poke writes v at (y, x). Writes outside the grid are dropped.
func (g *Grid) Poke(y, x int, v glyph.Glyph) {
	if !g.InBounds(y, x) {
		return
	}
	g.cells[y*g.w+x] = v
}

// PokeRelative writes v at (y+dy, x+dx). Writes outside the grid are dropped.
func (g *Grid) PokeRelative(y, x, dy, dx int, v glyph.Glyph) {
	g.Poke(y+dy, x+dx, v)
}

// Fill sets every cell to v.
func (g *Grid) Fill(v glyph.Glyph) {
	for i := range g.cells {
		g.cells[i] = v
	}
}

// Bytes returns the row-major backing buffer. Callers must not retain it across ticks.
func (g *Grid) Bytes() []byte { return g.cells }

// SetBytes replaces the contents from a row-major buffer of exactly Height*Width bytes.
func (g *Grid) SetBytes(b []byte) error {
	if len(b) != len(g.cells) {
		return fmt.Errorf("grid bytes: got %d want %d", len(b), len(g.cells))
	}
	for i, c := range b {
		g.cells[i] = glyph.Sanitize(c)
	}
	return nil
}

// Row returns row y as a string.
func (g *Grid) Row(y int) string {
	if y < 0 || y >= g.h {
		return ""
	}
	return string(g.cells[y*g.w : (y+1)*g.w])
}

// Rows returns every row as a string.
func (g *Grid) Rows() []string {
	out := make([]string, g.h)
	for y := range out {
		out[y] = g.Row(y)
	}
	return out
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	c := &Grid{h: g.h, w: g.w, cells: make([]glyph.Glyph, len(g.cells))}
	copy(c.cells, g.cells)
	return c
}

// Equal reports whether both grids have the same shape and contents.
func (g *Grid) Equal(o *Grid) bool {
	if g == nil || o == nil {
		return g == o
	}
	if g.h != o.h || g.w != o.w {
		return false
	}
	return string(g.cells) == string(o.cells)
}

// Count returns the number of cells that are not '.'.
func (g *Grid) Count() int {
	n := 0
	for _, c := range g.cells {
		if c != glyph.Empty {
			n++
		}
	}
	return n
}

func (g *Grid) String() string {
	return strings.Join(g.Rows(), "\n")
}
