package world

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"orcasim.ai/internal/persistence/snapshot"
	"orcasim.ai/internal/sim/engine"
	"orcasim.ai/internal/sim/grid"
	"orcasim.ai/internal/sim/mark"
)

// World owns one glyph grid and its flag plane and advances them on a fixed tick.
// All state is mutated on the loop goroutine; other goroutines talk to it through channels.
type World struct {
	cfg WorldConfig

	tick atomic.Uint64

	glyphs *grid.Grid
	marks  *mark.Plane

	observers map[string]*observerClient

	edits         chan Edit
	observerJoin  chan ObserverJoinRequest
	observerLeave chan string
	admin         chan adminSnapshotReq
	stop          chan struct{}

	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SnapshotV1

	counters  counters
	lastStats engine.Stats
	metrics   atomic.Value
}

type counters struct {
	editsApplied uint64
	editsDropped uint64
	moves        uint64
	explosions   uint64
	writes       uint64
}

// New creates a world. When initial is non-nil its dimensions override cfg.Width/Height
// and its cells become the starting grid.
func New(cfg WorldConfig, initial *grid.Grid) (*World, error) {
	if initial != nil {
		if initial.Width() <= 0 || initial.Height() <= 0 {
			return nil, fmt.Errorf("initial grid %dx%d is empty", initial.Width(), initial.Height())
		}
		cfg.Width, cfg.Height = initial.Width(), initial.Height()
	}
	cfg.applyDefaults()
	if cfg.Width > 4096 || cfg.Height > 4096 {
		return nil, fmt.Errorf("grid %dx%d too large", cfg.Width, cfg.Height)
	}

	g := grid.New(cfg.Height, cfg.Width)
	if initial != nil {
		g = initial.Clone()
	}

	w := &World{
		cfg:           cfg,
		glyphs:        g,
		marks:         mark.NewPlane(g.Height(), g.Width()),
		observers:     map[string]*observerClient{},
		edits:         make(chan Edit, 1024),
		observerJoin:  make(chan ObserverJoinRequest, 64),
		observerLeave: make(chan string, 64),
		admin:         make(chan adminSnapshotReq, 16),
		stop:          make(chan struct{}),
	}
	w.publishMetrics(0)
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Edits() chan<- Edit                       { return w.edits }
func (w *World) ObserverJoin() chan<- ObserverJoinRequest { return w.observerJoin }
func (w *World) ObserverLeave() chan<- string             { return w.observerLeave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }
func (w *World) Config() WorldConfig { return w.cfg }

// Glyphs and Marks expose the live buffers. They must not be used while Run is active.
func (w *World) Glyphs() *grid.Grid { return w.glyphs }
func (w *World) Marks() *mark.Plane { return w.marks }

// Stop makes Run return nil. It must be called at most once.
func (w *World) Stop() { close(w.stop) }

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingEdits []Edit
	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			w.closeObservers()
			return ctx.Err()
		case <-w.stop:
			w.closeObservers()
			return nil
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case e := <-w.edits:
			pendingEdits = append(pendingEdits, e)
		case <-ticker.C:
			w.stepInternal(pendingEdits)
			w.handleAdminSnapshotRequests(pendingAdmin)
			pendingEdits = pendingEdits[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
