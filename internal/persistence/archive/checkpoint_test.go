package archive

import (
	"os"
	"path/filepath"
	"testing"

	"orcasim.ai/internal/persistence/snapshot"
)

func TestArchiveCheckpoint_CopiesOnEpochBoundary(t *testing.T) {
	worldDir := filepath.Join(t.TempDir(), "worlds", "w1")
	src := filepath.Join(worldDir, "snapshots", "600.snap.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	want := []byte("dummy")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, WorldID: "w1", Tick: 600},
		Width:  4,
		Height: 2,
		Digest: "abc",
	}
	epoch, archivedPath, ok, err := ArchiveCheckpoint(worldDir, src, snap, 300)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !ok || epoch != 2 {
		t.Fatalf("archived=%v epoch=%d", ok, epoch)
	}
	got, err := os.ReadFile(archivedPath)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("archived content mismatch: got=%q want=%q", got, want)
	}

	meta, err := ReadCheckpointMeta(filepath.Dir(archivedPath))
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.Epoch != 2 || meta.Tick != 600 || meta.WorldID != "w1" || meta.Digest != "abc" || meta.Snapshot != "600.snap.zst" {
		t.Fatalf("meta: %+v", meta)
	}
}

func TestArchiveCheckpoint_SkipsOffBoundary(t *testing.T) {
	worldDir := t.TempDir()
	cases := []struct {
		tick  uint64
		every int
	}{
		{tick: 450, every: 300},
		{tick: 0, every: 300},
		{tick: 600, every: 0},
	}
	for _, c := range cases {
		snap := snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, Tick: c.tick}}
		_, _, ok, err := ArchiveCheckpoint(worldDir, filepath.Join(worldDir, "missing"), snap, c.every)
		if err != nil || ok {
			t.Fatalf("tick=%d every=%d: archived=%v err=%v", c.tick, c.every, ok, err)
		}
	}
}
