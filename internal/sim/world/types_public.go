package world

import (
	"orcasim.ai/internal/sim/engine"
	"orcasim.ai/internal/sim/glyph"
)

// Edit overwrites one cell before the next tick runs.
type Edit struct {
	Y      int
	X      int
	Glyph  glyph.Glyph
	Source string
}

// RecordedEdit is the logged form of an applied Edit.
type RecordedEdit struct {
	Y      int    `json:"y"`
	X      int    `json:"x"`
	Glyph  string `json:"glyph"`
	Source string `json:"source,omitempty"`
}

// Edit converts the record back into an Edit for replay.
func (r RecordedEdit) Edit() Edit {
	var g glyph.Glyph
	if len(r.Glyph) == 1 {
		g = r.Glyph[0]
	}
	return Edit{Y: r.Y, X: r.X, Glyph: g, Source: r.Source}
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick   uint64         `json:"tick"`
	Edits  []RecordedEdit `json:"edits,omitempty"`
	Stats  engine.Stats   `json:"stats"`
	Digest string         `json:"digest"`
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"` // e.g. "EDIT_REJECTED"
	Pos    [2]int `json:"pos"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ObserverJoinRequest registers a frame subscriber. Out receives JSON FRAME messages;
// the world closes it on leave.
type ObserverJoinRequest struct {
	SessionID string
	Out       chan []byte
	SendMarks bool
}
