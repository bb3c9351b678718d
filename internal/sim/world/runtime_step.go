package world

import (
	"time"

	"orcasim.ai/internal/sim/engine"
	"orcasim.ai/internal/sim/glyph"
)

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests and must not be mixed with Run.
// Observer joins and leaves already queued on their channels are handled first.
func (w *World) StepOnce(edits []Edit) (tick uint64, digest string) {
	w.drainObserverQueues()
	return w.stepInternal(edits)
}

func (w *World) drainObserverQueues() {
	for {
		select {
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		default:
			return
		}
	}
}

func (w *World) stepInternal(edits []Edit) (uint64, string) {
	start := time.Now()
	nowTick := w.tick.Load()

	applied := w.applyEdits(nowTick, edits)
	st := engine.Tick(w.glyphs, w.marks)
	w.counters.moves += uint64(st.Moves)
	w.counters.explosions += uint64(st.Explosions)
	w.counters.writes += uint64(st.Writes)

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Edits: applied, Stats: st, Digest: digest})
	}

	if nowTick%uint64(w.cfg.FrameEveryTicks) == 0 {
		w.broadcastFrame(nowTick, digest)
	}

	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 && nowTick != 0 && nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		snap := w.ExportSnapshot(nowTick)
		select {
		case w.snapshotSink <- snap:
		default:
			// Drop snapshot if sink is backed up.
		}
	}

	w.tick.Add(1)
	w.lastStats = st
	w.publishMetrics(time.Since(start))
	return nowTick, digest
}

// applyEdits writes edits in arrival order. Edits past MaxEditsPerTick, off the grid, or
// carrying a glyph outside the alphabet are dropped and audited.
func (w *World) applyEdits(nowTick uint64, edits []Edit) []RecordedEdit {
	if len(edits) == 0 {
		return nil
	}
	applied := make([]RecordedEdit, 0, len(edits))
	for i, e := range edits {
		reason := ""
		switch {
		case i >= w.cfg.MaxEditsPerTick:
			reason = "rate_limit"
		case !w.glyphs.InBounds(e.Y, e.X):
			reason = "out_of_bounds"
		case !glyph.Valid(e.Glyph):
			reason = "invalid_glyph"
		}
		if reason != "" {
			w.counters.editsDropped++
			w.audit(AuditEntry{
				Tick:   nowTick,
				Actor:  e.Source,
				Action: "EDIT_REJECTED",
				Pos:    [2]int{e.Y, e.X},
				To:     string([]byte{e.Glyph}),
				Reason: reason,
			})
			continue
		}
		from := w.glyphs.Peek(e.Y, e.X)
		w.glyphs.Poke(e.Y, e.X, e.Glyph)
		w.counters.editsApplied++
		applied = append(applied, RecordedEdit{Y: e.Y, X: e.X, Glyph: string([]byte{e.Glyph}), Source: e.Source})
		w.audit(AuditEntry{
			Tick:   nowTick,
			Actor:  e.Source,
			Action: "EDIT",
			Pos:    [2]int{e.Y, e.X},
			From:   string([]byte{from}),
			To:     string([]byte{e.Glyph}),
		})
	}
	return applied
}

func (w *World) audit(e AuditEntry) {
	if w.auditLogger == nil {
		return
	}
	_ = w.auditLogger.WriteAudit(e)
}
