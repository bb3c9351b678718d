package world

import (
	"encoding/json"

	"orcasim.ai/internal/protocol"
	"orcasim.ai/internal/sim/encoding"
)

type observerClient struct {
	id        string
	out       chan []byte
	sendMarks bool
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if w == nil || req.SessionID == "" || req.Out == nil {
		return
	}
	// Replace existing session id if any.
	if old := w.observers[req.SessionID]; old != nil {
		close(old.out)
	}
	c := &observerClient{id: req.SessionID, out: req.Out, sendMarks: req.SendMarks || w.cfg.SendMarks}
	w.observers[req.SessionID] = c

	// New observers get the current state right away instead of waiting for the next frame.
	tick := w.lastTick()
	if b := w.buildFrame(tick, w.stateDigest(tick), c.sendMarks); b != nil {
		sendLatest(c.out, b)
	}
}

func (w *World) handleObserverLeave(id string) {
	c := w.observers[id]
	if c == nil {
		return
	}
	close(c.out)
	delete(w.observers, id)
}

func (w *World) closeObservers() {
	for id, c := range w.observers {
		close(c.out)
		delete(w.observers, id)
	}
}

func (w *World) broadcastFrame(nowTick uint64, digest string) {
	if len(w.observers) == 0 {
		return
	}
	var plain, withMarks []byte
	for _, c := range w.observers {
		if c.sendMarks {
			if withMarks == nil {
				withMarks = w.buildFrame(nowTick, digest, true)
			}
			sendLatest(c.out, withMarks)
			continue
		}
		if plain == nil {
			plain = w.buildFrame(nowTick, digest, false)
		}
		sendLatest(c.out, plain)
	}
}

func (w *World) buildFrame(nowTick uint64, digest string, withMarks bool) []byte {
	msg := protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		Width:           w.glyphs.Width(),
		Height:          w.glyphs.Height(),
		Encoding:        "RLE",
		Glyphs:          encoding.EncodeRLE(w.glyphs.Bytes()),
		Digest:          digest,
	}
	if withMarks {
		msg.Marks = encoding.EncodeRLE(w.marks.Bytes())
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return b
}

// lastTick is the most recently completed tick, or 0 before the first step.
func (w *World) lastTick() uint64 {
	cur := w.tick.Load()
	if cur == 0 {
		return 0
	}
	return cur - 1
}
