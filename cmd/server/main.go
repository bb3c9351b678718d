package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"orcasim.ai/internal/persistence/archive"
	"orcasim.ai/internal/persistence/gridfile"
	"orcasim.ai/internal/persistence/indexdb"
	persistlog "orcasim.ai/internal/persistence/log"
	"orcasim.ai/internal/persistence/snapshot"
	"orcasim.ai/internal/platform/config"
	"orcasim.ai/internal/sim/grid"
	"orcasim.ai/internal/sim/tuning"
	"orcasim.ai/internal/sim/world"
	"orcasim.ai/internal/transport/observer"
	"orcasim.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "main", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "", "runtime data directory (default: $ORCA_DATA_DIR or ./data)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		gridPath   = flag.String("grid", "", "initial grid file (used only when starting a fresh world)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	env, err := config.LoadServerEnv()
	if err != nil {
		logger.Fatalf("load env: %v", err)
	}
	dir := strings.TrimSpace(*dataDir)
	if dir == "" {
		dir = strings.TrimSpace(env.DataDir)
	}
	if dir == "" {
		dir = "./data"
	}

	worldDir := filepath.Join(dir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, env.IndexBackend, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir, idx)
	}

	// A missing tuning file falls back to defaults; a malformed one is fatal.
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if idx != nil {
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	cfg := world.WorldConfig{
		ID:                 *worldID,
		TickRateHz:         tune.TickRateHz,
		Width:              tune.Width,
		Height:             tune.Height,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		FrameEveryTicks:    tune.FrameEveryTicks,
		MaxEditsPerTick:    tune.MaxEditsPerTick,
		SendMarks:          tune.Observer.SendMarks,
	}

	// Create world (fresh or resumed from snapshot).
	var initial *grid.Grid
	if snapshotToLoad == "" && strings.TrimSpace(*gridPath) != "" {
		initial, err = gridfile.Load(*gridPath)
		if err != nil {
			logger.Fatalf("load grid: %v", err)
		}
	}
	w, err := world.New(cfg, initial)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Closed after the loggers so their final files are still uploaded.
	mirror, err := buildMirror(dir, env.Mirror, logger)
	if err != nil {
		logger.Fatalf("mirror: %v", err)
	}
	defer mirror.Close()

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	if mirror != nil {
		tickLog.SetOnRotate(mirror.Enqueue)
		auditLog.SetOnRotate(mirror.Enqueue)
	}
	defer tickLog.Close()
	defer auditLog.Close()
	w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	w.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", snapshot.FileName(snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
				mirror.Enqueue(path)
				epoch, archived, ok, err := archive.ArchiveCheckpoint(worldDir, path, snap, tune.ArchiveEveryTicks)
				if err != nil {
					logger.Printf("archive checkpoint: %v", err)
					continue
				}
				if ok {
					logger.Printf("archived checkpoint epoch=%d tick=%d", epoch, snap.Header.Tick)
					mirror.Enqueue(archived)
					mirror.Enqueue(filepath.Join(filepath.Dir(archived), "meta.json"))
				}
			}
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	wsSrv := ws.NewServer(w, logger, ws.Options{
		MaxClients: tune.Observer.MaxClients,
		QueueSize:  tune.Observer.QueueSize,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, *worldID, w.Metrics(), wsSrv.Clients(), idx)
		if mirror != nil {
			writeMirrorMetrics(rw, *worldID, mirror.Stats())
		}
	})

	if env.AdminHTTPEnabled() {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string             `json:"world_id"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: *worldID,
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := w.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})

		obsSrv := observer.NewServer(w, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (ORCA_ENABLE_ADMIN_HTTP=false)")
	}
	if env.EnablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (ORCA_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s grid=%dx%d tick=%d", *addr, *worldID, w.Config().Width, w.Config().Height, w.CurrentTick())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// writeMetrics renders a minimal Prometheus exposition.
func writeMetrics(rw io.Writer, worldID string, m world.WorldMetrics, clients int, idx runtimeIndex) {
	fmt.Fprintf(rw, "# HELP orca_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE orca_world_tick gauge\n")
	fmt.Fprintf(rw, "orca_world_tick{world=%q} %d\n", worldID, m.Tick)

	fmt.Fprintf(rw, "# HELP orca_world_live_cells Non-empty cells on the grid.\n")
	fmt.Fprintf(rw, "# TYPE orca_world_live_cells gauge\n")
	fmt.Fprintf(rw, "orca_world_live_cells{world=%q} %d\n", worldID, m.LiveCells)

	fmt.Fprintf(rw, "# HELP orca_world_clients Current number of connected clients.\n")
	fmt.Fprintf(rw, "# TYPE orca_world_clients gauge\n")
	fmt.Fprintf(rw, "orca_world_clients{world=%q} %d\n", worldID, clients)

	fmt.Fprintf(rw, "# HELP orca_world_observers Frame subscribers registered with the world loop.\n")
	fmt.Fprintf(rw, "# TYPE orca_world_observers gauge\n")
	fmt.Fprintf(rw, "orca_world_observers{world=%q} %d\n", worldID, m.Observers)

	fmt.Fprintf(rw, "# HELP orca_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE orca_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "orca_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "edits", m.QueueDepths.Edits)
	fmt.Fprintf(rw, "orca_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "observer_join", m.QueueDepths.ObserverJoin)
	fmt.Fprintf(rw, "orca_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "observer_leave", m.QueueDepths.ObserverLeave)
	fmt.Fprintf(rw, "orca_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "admin", m.QueueDepths.Admin)

	fmt.Fprintf(rw, "# HELP orca_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE orca_world_step_ms gauge\n")
	fmt.Fprintf(rw, "orca_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	fmt.Fprintf(rw, "# HELP orca_world_events_total Cumulative engine and edit events.\n")
	fmt.Fprintf(rw, "# TYPE orca_world_events_total counter\n")
	fmt.Fprintf(rw, "orca_world_events_total{world=%q,kind=%q} %d\n", worldID, "edit_applied", m.EditsApplied)
	fmt.Fprintf(rw, "orca_world_events_total{world=%q,kind=%q} %d\n", worldID, "edit_dropped", m.EditsDropped)
	fmt.Fprintf(rw, "orca_world_events_total{world=%q,kind=%q} %d\n", worldID, "move", m.Moves)
	fmt.Fprintf(rw, "orca_world_events_total{world=%q,kind=%q} %d\n", worldID, "explosion", m.Explosions)
	fmt.Fprintf(rw, "orca_world_events_total{world=%q,kind=%q} %d\n", worldID, "write", m.Writes)

	if idx == nil {
		return
	}
	st := idx.Stats()
	fmt.Fprintf(rw, "# HELP orca_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE orca_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "orca_index_queue_depth{world=%q} %d\n", worldID, st.QueueDepth)
	fmt.Fprintf(rw, "# HELP orca_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE orca_index_dropped_total counter\n")
	fmt.Fprintf(rw, "orca_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", st.DropTickTotal)
	fmt.Fprintf(rw, "orca_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "audit", st.DropAuditTotal)
	fmt.Fprintf(rw, "orca_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", st.DropSnapshotTotal)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// latestSnapshot prefers the index, then falls back to scanning the snapshots directory.
func latestSnapshot(worldDir string, idx runtimeIndex) string {
	if idx != nil {
		rec, ok, err := idx.LatestSnapshot(context.Background())
		if err == nil && ok {
			if _, err := os.Stat(rec.Path); err == nil {
				return rec.Path
			}
		}
	}
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a world.AuditLogger
	b world.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}

var _ runtimeIndex = (*indexdb.SQLiteIndex)(nil)
