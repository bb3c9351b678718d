package gridfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"orcasim.ai/internal/sim/glyph"
	"orcasim.ai/internal/sim/grid"
)

var ErrEmpty = errors.New("grid file is empty")

// Parse reads one grid row per line. Short rows are padded with '.' to the widest row,
// trailing blank lines are ignored and bytes outside the glyph set become '.'.
func Parse(r io.Reader) (*grid.Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var rows []string
	width := 0
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		rows = append(rows, line)
		if len(line) > width {
			width = len(line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for len(rows) > 0 && rows[len(rows)-1] == "" {
		rows = rows[:len(rows)-1]
	}
	if len(rows) == 0 || width == 0 {
		return nil, ErrEmpty
	}

	g := grid.New(len(rows), width)
	for y, row := range rows {
		for x := 0; x < len(row); x++ {
			g.Poke(y, x, glyph.Sanitize(row[x]))
		}
	}
	return g, nil
}

func Load(path string) (*grid.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return g, nil
}

// Format renders g with a trailing newline after every row.
func Format(g *grid.Grid) string {
	var b strings.Builder
	b.Grow(g.Height() * (g.Width() + 1))
	for y := 0; y < g.Height(); y++ {
		b.WriteString(g.Row(y))
		b.WriteByte('\n')
	}
	return b.String()
}

// Save writes g atomically (temp file + rename).
func Save(path string, g *grid.Grid) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(Format(g)), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
