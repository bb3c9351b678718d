package world

import (
	"orcasim.ai/internal/protocol"
	"orcasim.ai/internal/sim/engine"
)

// OperatorTable lists every operator family for WELCOME and bootstrap payloads.
func OperatorTable() []protocol.OperatorInfo {
	ops := engine.Operators()
	out := make([]protocol.OperatorInfo, 0, len(ops))
	for _, op := range ops {
		glyphs := string([]byte{op.Lower})
		if op.Shape == engine.Dual {
			glyphs = string([]byte{op.Upper, op.Lower})
		}
		out = append(out, protocol.OperatorInfo{Name: op.Name, Glyphs: glyphs})
	}
	return out
}
