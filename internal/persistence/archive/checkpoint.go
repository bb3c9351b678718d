package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"orcasim.ai/internal/persistence/snapshot"
)

type CheckpointMeta struct {
	Epoch     int    `json:"epoch"`
	Tick      uint64 `json:"tick"`
	WorldID   string `json:"world_id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Digest    string `json:"digest"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// ArchiveCheckpoint copies a snapshot into `worldDir/archives/epoch_<NNNNNN>/` when its tick is a
// positive multiple of everyTicks. Regular snapshots may be pruned; checkpoints are kept.
// It returns (epoch, archivedPath, archived=true) when a copy was made.
func ArchiveCheckpoint(worldDir, snapshotPath string, snap snapshot.SnapshotV1, everyTicks int) (epoch int, archivedPath string, archived bool, err error) {
	if everyTicks <= 0 || snap.Header.Tick == 0 {
		return 0, "", false, nil
	}
	if snap.Header.Tick%uint64(everyTicks) != 0 {
		return 0, "", false, nil
	}
	epoch = int(snap.Header.Tick / uint64(everyTicks))

	dir := filepath.Join(worldDir, "archives", fmt.Sprintf("epoch_%06d", epoch))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", false, err
	}
	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := CheckpointMeta{
		Epoch:     epoch,
		Tick:      snap.Header.Tick,
		WorldID:   snap.Header.WorldID,
		Width:     snap.Width,
		Height:    snap.Height,
		Digest:    snap.Digest,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return 0, "", false, err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644); err != nil {
		return 0, "", false, err
	}
	return epoch, dst, true, nil
}

// ReadCheckpointMeta loads the meta.json written next to an archived snapshot.
func ReadCheckpointMeta(dir string) (CheckpointMeta, error) {
	var meta CheckpointMeta
	b, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("meta.json: %w", err)
	}
	return meta, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
