package worldtest

import (
	"testing"

	"orcasim.ai/internal/sim/encoding"
	world "orcasim.ai/internal/sim/world"
)

func TestScenario_MoverCrossesGridAndExplodes(t *testing.T) {
	h := New(t, world.WorldConfig{}, "E....")
	for _, want := range []string{".E...", "..E..", "...E.", "....E", "....*", "....."} {
		h.Step()
		h.ExpectRows(want)
	}
	m := h.W.Metrics()
	if m.Moves != 4 || m.Explosions != 1 {
		t.Fatalf("moves=%d explosions=%d", m.Moves, m.Explosions)
	}
}

func TestScenario_EditsFeedAdder(t *testing.T) {
	h := New(t, world.WorldConfig{}, "A.....", "......")
	h.Step(Put(0, 1, '1'), Put(0, 2, '2'))
	h.ExpectRows("A12...", "3.....")

	h.Step(Put(0, 2, '5'))
	h.ExpectRows("A15...", "6.....")

	// Removing an input stops the writes; the last output stays.
	h.Step(Put(0, 1, '.'))
	h.ExpectRows("A.5...", "6.....")
}

func TestScenario_BangTriggersLowercaseOnce(t *testing.T) {
	h := New(t, world.WorldConfig{}, "*e..")
	h.Step()
	h.ExpectRows("..e.")
	h.StepN(3)
	h.ExpectRows("..e.")
}

func TestScenario_DeterministicAcrossWorlds(t *testing.T) {
	rows := []string{"E..S..", "A12...", "..*w..", "M73..."}
	a := New(t, world.WorldConfig{}, rows...)
	b := New(t, world.WorldConfig{}, rows...)
	for i := 0; i < 12; i++ {
		var edits []world.Edit
		if i == 4 {
			edits = append(edits, Put(3, 5, 'W'), Put(0, 0, 'E'))
		}
		a.Step(edits...)
		b.Step(edits...)
	}
	da, db := a.Digests(), b.Digests()
	for i := range da {
		if da[i] != db[i] {
			t.Fatalf("digest %d diverged: %s vs %s", i, da[i], db[i])
		}
	}
}

func TestScenario_SnapshotResumeMatchesContinuous(t *testing.T) {
	rows := []string{"E...S.", "A12...", "......"}
	cont := New(t, world.WorldConfig{ID: "w1"}, rows...)
	cont.StepN(3)
	snap := cont.W.ExportSnapshot(cont.W.CurrentTick() - 1)
	want := cont.StepN(4)

	w2, err := world.New(world.WorldConfig{}, nil)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	resumed := NewWithWorld(t, w2)
	if got := resumed.StepN(4); got != want {
		t.Fatalf("resumed digest %s, continuous %s", got, want)
	}
	resumed.ExpectRows(cont.Rows()...)
	if resumed.W.Config().ID != "w1" {
		t.Fatalf("world id = %q", resumed.W.Config().ID)
	}
}

func TestScenario_ObserverFramesTrackGrid(t *testing.T) {
	h := New(t, world.WorldConfig{}, "E..", "...")
	h.Watch(true)
	digest := h.Step()

	f := h.LastFrame()
	if f.Tick != 0 || f.Digest != digest || f.Width != 3 || f.Height != 2 {
		t.Fatalf("frame header: %+v", f)
	}
	cells, err := encoding.DecodeRLE(f.Glyphs, f.Width*f.Height)
	if err != nil {
		t.Fatalf("decode glyphs: %v", err)
	}
	if string(cells) != ".E...." {
		t.Fatalf("frame glyphs = %q", cells)
	}
	if f.Marks == "" {
		t.Fatalf("expected marks in frame")
	}

	h.Step()
	if f := h.LastFrame(); f.Tick != 1 {
		t.Fatalf("second frame tick = %d", f.Tick)
	}
}
