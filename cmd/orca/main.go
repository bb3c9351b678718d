// Command orca runs a grid program headlessly for a fixed number of ticks and prints the result.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"orcasim.ai/internal/persistence/gridfile"
	"orcasim.ai/internal/sim/grid"
	"orcasim.ai/internal/sim/mark"
	"orcasim.ai/internal/sim/world"
)

type runOptions struct {
	Ticks      int
	PrintEvery int
	Marks      bool
	Digest     bool
}

func main() {
	var (
		gridPath   = flag.String("grid", "-", "grid file to run (- for stdin)")
		ticks      = flag.Int("ticks", 1, "number of ticks to run")
		printEvery = flag.Int("print_every", 0, "print the grid every N ticks (0: only the final grid)")
		marks      = flag.Bool("marks", false, "print the flag plane under each printed grid")
		digest     = flag.Bool("digest", false, "print the state digest with each printed grid")
		outPath    = flag.String("out", "", "write the final grid to this file")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[orca] ", log.LstdFlags)

	g, err := loadGrid(*gridPath, os.Stdin)
	if err != nil {
		logger.Fatalf("load grid: %v", err)
	}
	if *ticks < 0 {
		logger.Fatalf("ticks must be >= 0, got %d", *ticks)
	}

	w, err := world.New(world.WorldConfig{ID: "cli"}, g)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	run(os.Stdout, w, runOptions{Ticks: *ticks, PrintEvery: *printEvery, Marks: *marks, Digest: *digest})

	if *outPath != "" {
		if err := gridfile.Save(*outPath, w.Glyphs()); err != nil {
			logger.Fatalf("save grid: %v", err)
		}
	}
}

func loadGrid(path string, stdin io.Reader) (*grid.Grid, error) {
	if path == "" || path == "-" {
		return gridfile.Parse(stdin)
	}
	return gridfile.Load(path)
}

// run steps w and prints snapshots of the grid; the final grid is always printed.
func run(out io.Writer, w *world.World, opts runOptions) {
	var lastTick uint64
	var lastDigest string
	for i := 1; i <= opts.Ticks; i++ {
		lastTick, lastDigest = w.StepOnce(nil)
		if opts.PrintEvery > 0 && i%opts.PrintEvery == 0 && i != opts.Ticks {
			printGrid(out, w, lastTick, lastDigest, opts)
		}
	}
	if opts.Ticks == 0 {
		fmt.Fprint(out, gridfile.Format(w.Glyphs()))
		return
	}
	printGrid(out, w, lastTick, lastDigest, opts)
}

func printGrid(out io.Writer, w *world.World, tick uint64, digest string, opts runOptions) {
	header := fmt.Sprintf("# tick %d", tick)
	if opts.Digest {
		header += " digest " + digest
	}
	fmt.Fprintln(out, header)
	fmt.Fprint(out, gridfile.Format(w.Glyphs()))
	if opts.Marks {
		fmt.Fprint(out, formatMarks(w.Marks()))
	}
}

// formatMarks renders one hex digit pair per cell, rows separated by newlines.
func formatMarks(p *mark.Plane) string {
	var sb strings.Builder
	b := p.Bytes()
	for y := 0; y < p.Height(); y++ {
		for x := 0; x < p.Width(); x++ {
			if x > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%02x", b[y*p.Width()+x])
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
