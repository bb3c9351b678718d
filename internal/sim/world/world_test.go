package world

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"orcasim.ai/internal/persistence/snapshot"
	"orcasim.ai/internal/protocol"
	"orcasim.ai/internal/sim/encoding"
	"orcasim.ai/internal/sim/grid"
	"orcasim.ai/internal/sim/mark"
)

type captureTickLogger struct{ entries []TickLogEntry }

func (c *captureTickLogger) WriteTick(e TickLogEntry) error {
	c.entries = append(c.entries, e)
	return nil
}

type captureAuditLogger struct{ entries []AuditEntry }

func (c *captureAuditLogger) WriteAudit(e AuditEntry) error {
	c.entries = append(c.entries, e)
	return nil
}

func newTestWorld(t *testing.T, rows ...string) *World {
	t.Helper()
	w, err := New(WorldConfig{ID: "test", TickRateHz: 100}, grid.MustFromRows(rows...))
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

func TestNew_Defaults(t *testing.T) {
	w, err := New(WorldConfig{}, nil)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	cfg := w.Config()
	if cfg.ID != "main" || cfg.Width != 57 || cfg.Height != 25 || cfg.TickRateHz != 10 || cfg.FrameEveryTicks != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if w.Glyphs().Count() != 0 {
		t.Fatalf("expected empty grid")
	}
	if _, err := New(WorldConfig{Width: 5000, Height: 1}, nil); err == nil {
		t.Fatalf("expected size error")
	}
}

func TestNew_RejectsEmptyInitialGrid(t *testing.T) {
	for _, g := range []*grid.Grid{grid.New(3, 0), grid.New(0, 4), grid.New(0, 0)} {
		if _, err := New(WorldConfig{}, g); err == nil {
			t.Fatalf("expected error for %dx%d grid", g.Height(), g.Width())
		}
	}
}

func TestNew_MarkPlaneMatchesInitialGrid(t *testing.T) {
	w := newTestWorld(t, "E..", "...", "...")
	if w.Marks().Height() != 3 || w.Marks().Width() != 3 {
		t.Fatalf("mark plane %dx%d, grid 3x3", w.Marks().Height(), w.Marks().Width())
	}
	w.StepOnce(nil)
	if got := w.Glyphs().Row(0); got != ".E." {
		t.Fatalf("row 0 = %q", got)
	}
}

func TestStepOnce_AppliesEditsBeforeTick(t *testing.T) {
	w := newTestWorld(t, "....", "....")
	tl := &captureTickLogger{}
	w.SetTickLogger(tl)

	tick, digest := w.StepOnce([]Edit{{Y: 0, X: 0, Glyph: 'E', Source: "s1"}})
	if tick != 0 || digest == "" {
		t.Fatalf("tick=%d digest=%q", tick, digest)
	}
	if got := w.Glyphs().Row(0); got != ".E.." {
		t.Fatalf("row 0 = %q, want %q", got, ".E..")
	}
	if !w.Marks().Peek(0, 1).Has(mark.Sleep) {
		t.Fatalf("moved operator should be asleep")
	}
	if w.CurrentTick() != 1 {
		t.Fatalf("CurrentTick = %d", w.CurrentTick())
	}
	if len(tl.entries) != 1 {
		t.Fatalf("expected one tick log entry, got %d", len(tl.entries))
	}
	e := tl.entries[0]
	if e.Tick != 0 || e.Digest != digest || len(e.Edits) != 1 || e.Edits[0].Glyph != "E" || e.Stats.Moves != 1 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestStepOnce_DropsInvalidEdits(t *testing.T) {
	w, err := New(WorldConfig{MaxEditsPerTick: 2}, grid.MustFromRows("...", "..."))
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	al := &captureAuditLogger{}
	w.SetAuditLogger(al)

	w.StepOnce([]Edit{
		{Y: 5, X: 0, Glyph: '1'},
		{Y: 0, X: 0, Glyph: '~'},
		{Y: 1, X: 2, Glyph: '7'},
	})
	m := w.Metrics()
	// The third edit is past the per-tick cap even though the first two were rejected.
	if m.EditsApplied != 0 || m.EditsDropped != 3 {
		t.Fatalf("applied=%d dropped=%d", m.EditsApplied, m.EditsDropped)
	}
	reasons := map[string]bool{}
	for _, e := range al.entries {
		if e.Action == "EDIT_REJECTED" {
			reasons[e.Reason] = true
		}
	}
	for _, r := range []string{"out_of_bounds", "invalid_glyph", "rate_limit"} {
		if !reasons[r] {
			t.Fatalf("missing audit reason %q in %+v", r, al.entries)
		}
	}
	if w.Glyphs().Count() != 0 {
		t.Fatalf("rejected edits changed the grid: %q", w.Glyphs().String())
	}
}

func TestStepOnce_LaterEditWins(t *testing.T) {
	w := newTestWorld(t, "...")
	w.StepOnce([]Edit{{Y: 0, X: 0, Glyph: '1'}, {Y: 0, X: 0, Glyph: '2'}})
	if got := w.Glyphs().Row(0); got != "2.." {
		t.Fatalf("row = %q", got)
	}
}

func TestDeterministicDigests(t *testing.T) {
	rows := []string{"E..S.", "A12..", "*a45.", "....W"}
	edits := map[int][]Edit{
		1: {{Y: 3, X: 0, Glyph: 'N'}},
		3: {{Y: 0, X: 4, Glyph: 'M'}, {Y: 0, X: 3, Glyph: '7'}},
	}
	run := func() []string {
		w := newTestWorld(t, rows...)
		var out []string
		for i := 0; i < 8; i++ {
			_, d := w.StepOnce(edits[i])
			out = append(out, d)
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("digest mismatch at tick %d", i)
		}
	}
	if a[0] == a[1] {
		t.Fatalf("digest should change with the tick number")
	}
}

func TestSnapshotExportImport_ResumesIdentically(t *testing.T) {
	a := newTestWorld(t, "E...S", "A12..", ".....")
	for i := 0; i < 3; i++ {
		a.StepOnce(nil)
	}
	snap := a.ExportSnapshot(a.CurrentTick() - 1)

	b, err := New(WorldConfig{}, nil)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	if err := b.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if b.CurrentTick() != a.CurrentTick() {
		t.Fatalf("tick mismatch: %d vs %d", b.CurrentTick(), a.CurrentTick())
	}
	if !b.Glyphs().Equal(a.Glyphs()) {
		t.Fatalf("grid mismatch:\n%s\n---\n%s", b.Glyphs(), a.Glyphs())
	}
	for i := 0; i < 3; i++ {
		ta, da := a.StepOnce([]Edit{{Y: 2, X: i, Glyph: 'E'}})
		tb, db := b.StepOnce([]Edit{{Y: 2, X: i, Glyph: 'E'}})
		if ta != tb || da != db {
			t.Fatalf("diverged at tick %d", ta)
		}
	}
}

func TestImportSnapshot_RejectsCorruptDigest(t *testing.T) {
	a := newTestWorld(t, "E..")
	a.StepOnce(nil)
	snap := a.ExportSnapshot(0)
	snap.Digest = "00"

	b := newTestWorld(t, "...")
	if err := b.ImportSnapshot(snap); err == nil {
		t.Fatalf("expected digest error")
	}
	if b.CurrentTick() != 0 || b.Glyphs().Count() != 0 {
		t.Fatalf("failed import mutated the world")
	}
}

func TestObserverFrames(t *testing.T) {
	w := newTestWorld(t, "E..", "...")
	out := make(chan []byte, 4)
	w.handleObserverJoin(ObserverJoinRequest{SessionID: "o1", Out: out, SendMarks: true})

	decode := func() protocol.FrameMsg {
		t.Helper()
		select {
		case b := <-out:
			var f protocol.FrameMsg
			if err := json.Unmarshal(b, &f); err != nil {
				t.Fatalf("decode frame: %v", err)
			}
			if err := protocol.Validate(protocol.TypeFrame, b); err != nil {
				t.Fatalf("frame schema: %v", err)
			}
			return f
		default:
			t.Fatalf("expected a frame")
		}
		return protocol.FrameMsg{}
	}

	first := decode()
	if first.Tick != 0 || first.Width != 3 || first.Height != 2 {
		t.Fatalf("unexpected initial frame: %+v", first)
	}

	_, digest := w.StepOnce(nil)
	f := decode()
	if f.Digest != digest {
		t.Fatalf("frame digest = %q, want %q", f.Digest, digest)
	}
	cells, err := encoding.DecodeRLE(f.Glyphs, 6)
	if err != nil {
		t.Fatalf("decode glyphs: %v", err)
	}
	if string(cells) != ".E...." {
		t.Fatalf("frame glyphs = %q", cells)
	}
	flags, err := encoding.DecodeRLE(f.Marks, 6)
	if err != nil {
		t.Fatalf("decode marks: %v", err)
	}
	if mark.Flags(flags[1]) != mark.Sleep {
		t.Fatalf("frame marks = %v", flags)
	}

	w.handleObserverLeave("o1")
	if _, ok := <-out; ok {
		t.Fatalf("expected closed channel after leave")
	}
}

func TestRun_EditsAndAdminSnapshot(t *testing.T) {
	w := newTestWorld(t, "....", "....")
	sink := make(chan snapshot.SnapshotV1, 1)
	w.SetSnapshotSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	w.Edits() <- Edit{Y: 1, X: 0, Glyph: '5', Source: "test"}
	deadline := time.Now().Add(2 * time.Second)
	for w.Metrics().EditsApplied == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("edit was never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()
	tick, err := w.RequestSnapshot(reqCtx)
	if err != nil {
		t.Fatalf("request snapshot: %v", err)
	}
	snap := <-sink
	if snap.Header.Tick != tick || snap.Width != 4 || snap.Height != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap.Header)
	}
	cells, err := encoding.DecodeRLE(snap.Glyphs, 8)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(cells) != "....5..." {
		t.Fatalf("snapshot glyphs = %q", cells)
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
}

func TestRequestSnapshot_NoSink(t *testing.T) {
	w := newTestWorld(t, "...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()
	if _, err := w.RequestSnapshot(reqCtx); err == nil {
		t.Fatalf("expected error without a sink")
	}
}

func TestSendLatest_DropsOldest(t *testing.T) {
	ch := make(chan []byte, 1)
	sendLatest(ch, []byte("a"))
	sendLatest(ch, []byte("b"))
	if got := string(<-ch); got != "b" {
		t.Fatalf("got %q", got)
	}
}

func TestOperatorTable(t *testing.T) {
	got := map[string]string{}
	for _, op := range OperatorTable() {
		got[op.Name] = op.Glyphs
	}
	want := map[string]string{
		"bang": "*", "north": "Nn", "east": "Ee", "south": "Ss", "west": "Ww",
		"add": "Aa", "modulo": "Mm", "increment": "Ii",
	}
	if len(got) != len(want) {
		t.Fatalf("operators = %v", got)
	}
	for name, g := range want {
		if got[name] != g {
			t.Fatalf("%s glyphs = %q, want %q", name, got[name], g)
		}
	}
}
