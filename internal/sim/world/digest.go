package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"orcasim.ai/internal/sim/grid"
	"orcasim.ai/internal/sim/mark"
)

func (w *World) stateDigest(nowTick uint64) string {
	return stateDigest(nowTick, w.glyphs, w.marks)
}

// stateDigest hashes the tick number, the grid shape, the glyphs and the flag plane.
func stateDigest(nowTick uint64, g *grid.Grid, m *mark.Plane) string {
	h := sha256.New()
	var tmp [8]byte

	binary.BigEndian.PutUint64(tmp[:], nowTick)
	h.Write(tmp[:])
	binary.BigEndian.PutUint32(tmp[:4], uint32(g.Height()))
	binary.BigEndian.PutUint32(tmp[4:], uint32(g.Width()))
	h.Write(tmp[:])
	h.Write(g.Bytes())
	h.Write(m.Bytes())

	return hex.EncodeToString(h.Sum(nil))
}
