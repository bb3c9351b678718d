package world

import (
	"orcasim.ai/internal/persistence/snapshot"
	"orcasim.ai/internal/sim/encoding"
)

// ExportSnapshot captures the world after nowTick has been stepped.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		TickRate:           w.cfg.TickRateHz,
		Width:              w.glyphs.Width(),
		Height:             w.glyphs.Height(),
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		FrameEveryTicks:    w.cfg.FrameEveryTicks,
		MaxEditsPerTick:    w.cfg.MaxEditsPerTick,
		Glyphs:             encoding.EncodeRLE(w.glyphs.Bytes()),
		Marks:              encoding.EncodeRLE(w.marks.Bytes()),
		Digest:             w.stateDigest(nowTick),
		Counters: snapshot.CountersV1{
			EditsApplied: w.counters.editsApplied,
			EditsDropped: w.counters.editsDropped,
			Moves:        w.counters.moves,
			Explosions:   w.counters.explosions,
			Writes:       w.counters.writes,
		},
	}
}
