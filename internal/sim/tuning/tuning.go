package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	Width      int `yaml:"width" json:"width"`
	Height     int `yaml:"height" json:"height"`

	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
	FrameEveryTicks    int `yaml:"frame_every_ticks" json:"frame_every_ticks"`
	MaxEditsPerTick    int `yaml:"max_edits_per_tick" json:"max_edits_per_tick"`

	// ArchiveEveryTicks keeps a permanent copy of every snapshot whose tick is a multiple of it. 0 disables.
	ArchiveEveryTicks int `yaml:"archive_every_ticks" json:"archive_every_ticks"`

	Observer ObserverTuning `yaml:"observer" json:"observer"`
}

type ObserverTuning struct {
	MaxClients int  `yaml:"max_clients" json:"max_clients"`
	QueueSize  int  `yaml:"queue_size" json:"queue_size"`
	SendMarks  bool `yaml:"send_marks" json:"send_marks"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         10,
		Width:              57,
		Height:             25,
		SnapshotEveryTicks: 3000,
		FrameEveryTicks:    1,
		MaxEditsPerTick:    256,
		Observer: ObserverTuning{
			MaxClients: 64,
			QueueSize:  8,
			SendMarks:  true,
		},
	}
}

// Load reads a tuning file. Keys missing from the file keep their Defaults() value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz)
	}
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("grid size must be positive: %dx%d", t.Width, t.Height)
	}
	if t.Width*t.Height > 1<<22 {
		return fmt.Errorf("grid too large: %dx%d", t.Width, t.Height)
	}
	if t.SnapshotEveryTicks < 0 || t.FrameEveryTicks < 0 || t.MaxEditsPerTick < 0 || t.ArchiveEveryTicks < 0 {
		return fmt.Errorf("negative interval or limit")
	}
	return nil
}
