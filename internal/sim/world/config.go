package world

type WorldConfig struct {
	ID         string
	TickRateHz int
	Width      int
	Height     int

	// Operational parameters. These are included in snapshots for deterministic replay/resume.
	SnapshotEveryTicks int
	FrameEveryTicks    int
	MaxEditsPerTick    int

	// SendMarks makes observer frames carry the flag plane by default.
	SendMarks bool
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "main"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 10
	}
	if c.Width <= 0 {
		c.Width = 57
	}
	if c.Height <= 0 {
		c.Height = 25
	}
	if c.SnapshotEveryTicks < 0 {
		c.SnapshotEveryTicks = 0
	}
	if c.FrameEveryTicks <= 0 {
		c.FrameEveryTicks = 1
	}
	if c.MaxEditsPerTick <= 0 {
		c.MaxEditsPerTick = 256
	}
}
