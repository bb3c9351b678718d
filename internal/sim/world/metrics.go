package world

import (
	"time"

	"orcasim.ai/internal/sim/engine"
)

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Width     int `json:"width"`
	Height    int `json:"height"`
	LiveCells int `json:"live_cells"`
	Observers int `json:"observers"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	LastTick engine.Stats `json:"last_tick"`

	EditsApplied uint64 `json:"edits_applied"`
	EditsDropped uint64 `json:"edits_dropped"`
	Moves        uint64 `json:"moves"`
	Explosions   uint64 `json:"explosions"`
	Writes       uint64 `json:"writes"`
}

type QueueDepths struct {
	Edits         int `json:"edits"`
	ObserverJoin  int `json:"observer_join"`
	ObserverLeave int `json:"observer_leave"`
	Admin         int `json:"admin"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) publishMetrics(step time.Duration) {
	w.metrics.Store(WorldMetrics{
		Tick:      w.tick.Load(),
		Width:     w.glyphs.Width(),
		Height:    w.glyphs.Height(),
		LiveCells: w.glyphs.Count(),
		Observers: len(w.observers),
		QueueDepths: QueueDepths{
			Edits:         len(w.edits),
			ObserverJoin:  len(w.observerJoin),
			ObserverLeave: len(w.observerLeave),
			Admin:         len(w.admin),
		},
		StepMS:       float64(step.Microseconds()) / 1000.0,
		LastTick:     w.lastStats,
		EditsApplied: w.counters.editsApplied,
		EditsDropped: w.counters.editsDropped,
		Moves:        w.counters.moves,
		Explosions:   w.counters.explosions,
		Writes:       w.counters.writes,
	})
}
