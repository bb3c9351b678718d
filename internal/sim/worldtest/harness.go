package worldtest

import (
	"encoding/json"
	"strings"
	"testing"

	"orcasim.ai/internal/persistence/gridfile"
	"orcasim.ai/internal/protocol"
	"orcasim.ai/internal/sim/glyph"
	world "orcasim.ai/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - New() builds the world from grid text
// - Step()/StepN() advance it via StepOnce()
// - Watch() registers an observer and LastFrame() decodes the newest FRAME it received
//
// It avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T *testing.T
	W *world.World

	out       chan []byte
	lastFrame protocol.FrameMsg
	digests   []string
}

// New parses rows (one string per grid row) and creates a world over them.
func New(t *testing.T, cfg world.WorldConfig, rows ...string) *Harness {
	t.Helper()
	g, err := gridfile.Parse(strings.NewReader(strings.Join(rows, "\n") + "\n"))
	if err != nil {
		t.Fatalf("parse grid: %v", err)
	}
	w, err := world.New(cfg, g)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return &Harness{T: t, W: w}
}

// NewWithWorld wraps an already-constructed world, e.g. one restored from a snapshot.
func NewWithWorld(t *testing.T, w *world.World) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewWithWorld: nil world")
	}
	return &Harness{T: t, W: w}
}

// Watch subscribes to frames. The join is processed on the next Step.
func (h *Harness) Watch(sendMarks bool) {
	h.T.Helper()
	if h.out != nil {
		h.T.Fatalf("Watch called twice")
	}
	h.out = make(chan []byte, 64)
	h.W.ObserverJoin() <- world.ObserverJoinRequest{SessionID: "harness", Out: h.out, SendMarks: sendMarks}
}

// Put queues a single-glyph edit for the next Step.
func Put(y, x int, g byte) world.Edit {
	return world.Edit{Y: y, X: x, Glyph: glyph.Glyph(g), Source: "harness"}
}

// Step runs one tick with the given edits and returns its digest.
func (h *Harness) Step(edits ...world.Edit) string {
	h.T.Helper()
	_, digest := h.W.StepOnce(edits)
	h.digests = append(h.digests, digest)
	h.drainFrames()
	return digest
}

// StepN runs n ticks without edits and returns the last digest.
func (h *Harness) StepN(n int) string {
	h.T.Helper()
	var digest string
	for i := 0; i < n; i++ {
		digest = h.Step()
	}
	return digest
}

// Digests returns the digest of every tick stepped through the harness.
func (h *Harness) Digests() []string {
	return append([]string(nil), h.digests...)
}

// Rows renders the current grid one string per row.
func (h *Harness) Rows() []string {
	return strings.Split(strings.TrimSuffix(gridfile.Format(h.W.Glyphs()), "\n"), "\n")
}

// ExpectRows fails the test unless the grid equals want.
func (h *Harness) ExpectRows(want ...string) {
	h.T.Helper()
	got := h.Rows()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		h.T.Fatalf("tick %d grid mismatch\ngot:\n%s\nwant:\n%s", h.W.CurrentTick(), strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

// LastFrame returns the newest frame seen by Watch.
func (h *Harness) LastFrame() protocol.FrameMsg {
	h.T.Helper()
	if h.out == nil {
		h.T.Fatalf("LastFrame without Watch")
	}
	return h.lastFrame
}

func (h *Harness) drainFrames() {
	if h.out == nil {
		return
	}
	for {
		select {
		case b, ok := <-h.out:
			if !ok {
				h.out = nil
				return
			}
			var f protocol.FrameMsg
			if err := json.Unmarshal(b, &f); err != nil {
				h.T.Fatalf("unmarshal frame: %v", err)
			}
			h.lastFrame = f
		default:
			return
		}
	}
}
