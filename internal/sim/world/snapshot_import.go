package world

import (
	"fmt"

	"orcasim.ai/internal/persistence/snapshot"
	"orcasim.ai/internal/sim/encoding"
	"orcasim.ai/internal/sim/grid"
	"orcasim.ai/internal/sim/mark"
)

// ImportSnapshot replaces the world state with s. The next step runs tick s.Header.Tick+1.
// It must not be called while Run is active.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", s.Header.Version)
	}
	if s.Width <= 0 || s.Height <= 0 || s.Width > 4096 || s.Height > 4096 {
		return fmt.Errorf("bad snapshot dimensions %dx%d", s.Width, s.Height)
	}
	n := s.Width * s.Height

	cells, err := encoding.DecodeRLE(s.Glyphs, n)
	if err != nil {
		return fmt.Errorf("decode glyphs: %w", err)
	}
	flags, err := encoding.DecodeRLE(s.Marks, n)
	if err != nil {
		return fmt.Errorf("decode marks: %w", err)
	}

	g := grid.New(s.Height, s.Width)
	if err := g.SetBytes(cells); err != nil {
		return fmt.Errorf("glyphs: %w", err)
	}
	m := mark.NewPlane(s.Height, s.Width)
	if err := m.SetBytes(flags); err != nil {
		return fmt.Errorf("marks: %w", err)
	}

	if s.Digest != "" {
		if got := stateDigest(s.Header.Tick, g, m); got != s.Digest {
			return fmt.Errorf("snapshot digest mismatch at tick %d", s.Header.Tick)
		}
	}

	if s.Header.WorldID != "" {
		w.cfg.ID = s.Header.WorldID
	}
	if s.TickRate > 0 {
		w.cfg.TickRateHz = s.TickRate
	}
	w.cfg.Width, w.cfg.Height = s.Width, s.Height
	if s.SnapshotEveryTicks > 0 {
		w.cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	}
	if s.FrameEveryTicks > 0 {
		w.cfg.FrameEveryTicks = s.FrameEveryTicks
	}
	if s.MaxEditsPerTick > 0 {
		w.cfg.MaxEditsPerTick = s.MaxEditsPerTick
	}

	w.glyphs = g
	w.marks = m
	w.counters = counters{
		editsApplied: s.Counters.EditsApplied,
		editsDropped: s.Counters.EditsDropped,
		moves:        s.Counters.Moves,
		explosions:   s.Counters.Explosions,
		writes:       s.Counters.Writes,
	}
	w.tick.Store(s.Header.Tick + 1)
	w.publishMetrics(0)
	return nil
}
