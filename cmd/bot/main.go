// Command bot is a demo client: it watches frames and now and then drops an operator or a
// digit onto an empty cell.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"orcasim.ai/internal/protocol"
	"orcasim.ai/internal/sim/encoding"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "client name")
		every = flag.Uint64("every", 20, "send one edit every N ticks")
		seed  = flag.Int64("seed", 0, "random seed (0: time based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	b := &bot{rng: rand.New(rand.NewSource(*seed)), every: *every}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.welcome(w)
			logger.Printf("WELCOME session=%s world=%s grid=%dx%d tick_rate=%d", w.SessionID, w.WorldID, w.WorldParams.Width, w.WorldParams.Height, w.WorldParams.TickRateHz)

		case protocol.TypeFrame:
			var f protocol.FrameMsg
			if err := json.Unmarshal(msg, &f); err != nil {
				continue
			}
			edit, ok := b.next(f)
			if !ok {
				continue
			}
			if err := conn.WriteJSON(edit); err != nil {
				logger.Printf("send EDIT: %v", err)
				return
			}

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err == nil {
				logger.Printf("ERROR %s: %s", e.Code, e.Message)
			}
		}
	}
}

type bot struct {
	rng     *rand.Rand
	every   uint64
	palette []byte
}

// welcome builds the palette from the advertised operators plus a few digits for them to read.
func (b *bot) welcome(w protocol.WelcomeMsg) {
	b.palette = b.palette[:0]
	for _, op := range w.Operators {
		b.palette = append(b.palette, op.Glyphs...)
	}
	b.palette = append(b.palette, "123456789"...)
}

// next returns the edit to send for frame f, if any.
func (b *bot) next(f protocol.FrameMsg) (protocol.EditMsg, bool) {
	if b.every == 0 || f.Tick%b.every != 0 || len(b.palette) == 0 {
		return protocol.EditMsg{}, false
	}
	// A zero limit would let DecodeRLE expand without bound.
	if f.Width <= 0 || f.Height <= 0 {
		return protocol.EditMsg{}, false
	}
	cells, err := encoding.DecodeRLE(f.Glyphs, f.Width*f.Height)
	if err != nil || len(cells) == 0 {
		return protocol.EditMsg{}, false
	}
	start := b.rng.Intn(len(cells))
	for i := 0; i < len(cells); i++ {
		idx := (start + i) % len(cells)
		if cells[idx] != '.' {
			continue
		}
		return protocol.EditMsg{
			Type:            protocol.TypeEdit,
			ProtocolVersion: protocol.Version,
			Y:               idx / f.Width,
			X:               idx % f.Width,
			Glyph:           string(b.palette[b.rng.Intn(len(b.palette))]),
		}, true
	}
	return protocol.EditMsg{}, false
}
