package main

import (
	"math/rand"
	"strings"
	"testing"

	"orcasim.ai/internal/protocol"
	"orcasim.ai/internal/sim/encoding"
)

func TestBot_NextPicksEmptyCell(t *testing.T) {
	b := &bot{rng: rand.New(rand.NewSource(1)), every: 5}
	b.welcome(protocol.WelcomeMsg{Operators: []protocol.OperatorInfo{{Name: "east", Glyphs: "Ee"}, {Name: "bang", Glyphs: "*"}}})

	cells := []byte("EEE.EEEE")
	f := protocol.FrameMsg{Tick: 10, Width: 4, Height: 2, Glyphs: encoding.EncodeRLE(cells)}
	for i := 0; i < 10; i++ {
		e, ok := b.next(f)
		if !ok {
			t.Fatalf("expected an edit")
		}
		if e.Y != 0 || e.X != 3 {
			t.Fatalf("edit at %d,%d; only 0,3 is empty", e.Y, e.X)
		}
		if len(e.Glyph) != 1 || !strings.Contains("Ee*123456789", e.Glyph) {
			t.Fatalf("glyph %q not from palette", e.Glyph)
		}
		if e.Type != protocol.TypeEdit || e.ProtocolVersion != protocol.Version {
			t.Fatalf("header: %+v", e)
		}
	}
}

func TestBot_NextSkips(t *testing.T) {
	b := &bot{rng: rand.New(rand.NewSource(1)), every: 5}
	full := protocol.FrameMsg{Tick: 5, Width: 2, Height: 1, Glyphs: encoding.EncodeRLE([]byte(".."))}
	if _, ok := b.next(full); ok {
		t.Fatalf("edit sent before WELCOME")
	}
	b.welcome(protocol.WelcomeMsg{})
	if _, ok := b.next(protocol.FrameMsg{Tick: 6, Width: 2, Height: 1, Glyphs: full.Glyphs}); ok {
		t.Fatalf("edit sent off schedule")
	}
	if _, ok := b.next(protocol.FrameMsg{Tick: 10, Width: 2, Height: 1, Glyphs: encoding.EncodeRLE([]byte("11"))}); ok {
		t.Fatalf("edit sent to a full grid")
	}
}

func TestBot_NextRejectsEmptyFrameShape(t *testing.T) {
	b := &bot{rng: rand.New(rand.NewSource(1)), every: 1}
	b.welcome(protocol.WelcomeMsg{})
	payload := encoding.EncodeRLE([]byte("...."))
	for _, dims := range [][2]int{{0, 4}, {4, 0}, {-1, -4}} {
		f := protocol.FrameMsg{Tick: 3, Width: dims[0], Height: dims[1], Glyphs: payload}
		if e, ok := b.next(f); ok {
			t.Fatalf("frame %dx%d produced edit %+v", dims[0], dims[1], e)
		}
	}
}
