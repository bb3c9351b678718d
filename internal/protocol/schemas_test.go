package protocol_test

import (
	"encoding/json"
	"strings"
	"testing"

	"orcasim.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	validate := func(typ string, raw string) {
		t.Helper()
		if err := protocol.Validate(typ, []byte(raw)); err != nil {
			t.Fatalf("validate %s: %v", typ, err)
		}
	}

	validate(protocol.TypeHello, `{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "client_name":"viewer",
	  "capabilities":{"marks":true,"max_queue":8}
	}`)

	validate(protocol.TypeWelcome, `{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "session_id":"S1",
	  "world_id":"main",
	  "tick":12,
	  "world_params":{"tick_rate_hz":10,"width":57,"height":25,"frame_every_ticks":1},
	  "operators":[{"name":"bang","glyphs":"*"},{"name":"add","glyphs":"Aa"}]
	}`)

	validate(protocol.TypeFrame, `{
	  "type":"FRAME",
	  "protocol_version":"1.0",
	  "tick":3,
	  "width":2,
	  "height":1,
	  "encoding":"RLE",
	  "glyphs":"AAIu",
	  "digest":"`+strings.Repeat("a", 64)+`"
	}`)

	validate(protocol.TypeEdit, `{"type":"EDIT","protocol_version":"1.0","y":0,"x":4,"glyph":"E"}`)
	validate(protocol.TypeError, `{"type":"ERROR","protocol_version":"1.0","code":"E_BAD_REQUEST","message":"nope"}`)
}

func TestSchemas_RejectsBadEdits(t *testing.T) {
	bad := []string{
		`{"type":"EDIT","protocol_version":"1.0","y":0,"x":0,"glyph":"EE"}`,
		`{"type":"EDIT","protocol_version":"1.0","y":-1,"x":0,"glyph":"E"}`,
		`{"type":"EDIT","protocol_version":"1.0","x":0,"glyph":"E"}`,
		`{"type":"EDIT","protocol_version":"1.0","y":0,"x":0,"glyph":"E","extra":1}`,
		`{"type":"HELLO","protocol_version":"1.0","y":0,"x":0,"glyph":"E"}`,
		`not json`,
	}
	for _, raw := range bad {
		if err := protocol.Validate(protocol.TypeEdit, []byte(raw)); err == nil {
			t.Fatalf("expected rejection for %s", raw)
		}
	}
}

func TestSchemas_GeneratedMessagesValidate(t *testing.T) {
	b, _ := json.Marshal(protocol.NewError(protocol.ErrInvalidGlyph, "glyph not in alphabet"))
	if err := protocol.Validate(protocol.TypeError, b); err != nil {
		t.Fatalf("validate generated error: %v", err)
	}
	if err := protocol.Validate("NOPE", b); err == nil {
		t.Fatalf("expected unknown type error")
	}
}
