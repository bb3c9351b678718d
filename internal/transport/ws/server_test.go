package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"orcasim.ai/internal/protocol"
	"orcasim.ai/internal/sim/encoding"
	"orcasim.ai/internal/sim/grid"
	"orcasim.ai/internal/sim/world"
)

func startServer(t *testing.T, opts Options) (*world.World, string) {
	t.Helper()
	w, err := world.New(world.WorldConfig{ID: "ws_test", TickRateHz: 50}, grid.MustFromRows("....", "...."))
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	srv := httptest.NewServer(NewServer(w, log.New(io.Discard, "", 0), opts).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return w, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil returns the first message of type typ, skipping others.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) []byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type == typ {
			return msg
		}
	}
}

func hello() protocol.HelloMsg {
	return protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "test",
		Capabilities:    protocol.HelloCapabilities{Marks: true, MaxQueue: 4},
	}
}

func TestServer_HandshakeFramesAndEdits(t *testing.T) {
	_, url := startServer(t, Options{})
	conn := dial(t, url)
	send(t, conn, hello())

	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if welcome.SessionID == "" || welcome.WorldID != "ws_test" || welcome.WorldParams.Width != 4 || welcome.WorldParams.Height != 2 {
		t.Fatalf("unexpected welcome: %+v", welcome)
	}
	if len(welcome.Operators) != 8 {
		t.Fatalf("expected 8 operators, got %d", len(welcome.Operators))
	}

	var frame protocol.FrameMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeFrame), &frame); err != nil {
		t.Fatalf("frame: %v", err)
	}
	if frame.Marks == "" {
		t.Fatalf("marks requested but missing")
	}

	send(t, conn, protocol.EditMsg{Type: protocol.TypeEdit, ProtocolVersion: protocol.Version, Y: 1, X: 3, Glyph: "7"})
	deadline := time.Now().Add(3 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatalf("edit never showed up in a frame")
		}
		var f protocol.FrameMsg
		if err := json.Unmarshal(readUntil(t, conn, protocol.TypeFrame), &f); err != nil {
			t.Fatalf("frame: %v", err)
		}
		cells, err := encoding.DecodeRLE(f.Glyphs, 8)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if string(cells) == ".......7" {
			break
		}
	}
}

func TestServer_RejectsBadEdits(t *testing.T) {
	_, url := startServer(t, Options{})
	conn := dial(t, url)
	send(t, conn, hello())
	readUntil(t, conn, protocol.TypeWelcome)

	cases := []struct {
		msg  any
		code string
	}{
		{map[string]any{"type": "EDIT", "protocol_version": protocol.Version, "y": 0, "x": 0, "glyph": "EE"}, protocol.ErrProtoBadRequest},
		{protocol.EditMsg{Type: protocol.TypeEdit, ProtocolVersion: protocol.Version, Y: 9, X: 0, Glyph: "E"}, protocol.ErrInvalidTarget},
		{protocol.EditMsg{Type: protocol.TypeEdit, ProtocolVersion: protocol.Version, Y: 0, X: 0, Glyph: "~"}, protocol.ErrInvalidGlyph},
		{protocol.EditMsg{Type: protocol.TypeEdit, ProtocolVersion: "0.1", Y: 0, X: 0, Glyph: "E"}, protocol.ErrProtoVersion},
		{map[string]any{"type": "PING"}, protocol.ErrProtoBadRequest},
	}
	for _, tc := range cases {
		send(t, conn, tc.msg)
		var e protocol.ErrorMsg
		if err := json.Unmarshal(readUntil(t, conn, protocol.TypeError), &e); err != nil {
			t.Fatalf("error msg: %v", err)
		}
		if e.Code != tc.code {
			t.Fatalf("code = %s, want %s (%s)", e.Code, tc.code, e.Message)
		}
	}
}

func TestServer_RejectsBadHello(t *testing.T) {
	_, url := startServer(t, Options{})
	conn := dial(t, url)
	h := hello()
	h.ProtocolVersion = "0.1"
	send(t, conn, h)

	var e protocol.ErrorMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeError), &e); err != nil {
		t.Fatalf("error msg: %v", err)
	}
	if e.Code != protocol.ErrProtoVersion {
		t.Fatalf("code = %s", e.Code)
	}
}

func TestServer_MaxClients(t *testing.T) {
	_, url := startServer(t, Options{MaxClients: 1})
	first := dial(t, url)
	send(t, first, hello())
	readUntil(t, first, protocol.TypeWelcome)

	second := dial(t, url)
	var e protocol.ErrorMsg
	if err := json.Unmarshal(readUntil(t, second, protocol.TypeError), &e); err != nil {
		t.Fatalf("error msg: %v", err)
	}
	if e.Code != protocol.ErrWorldBusy {
		t.Fatalf("code = %s", e.Code)
	}
}
