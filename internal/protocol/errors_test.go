package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrProtoVersion,
		ErrWorldBusy,
		ErrBadRequest,
		ErrInvalidTarget,
		ErrInvalidGlyph,
		ErrRateLimit,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestNewError(t *testing.T) {
	e := NewError(ErrInvalidGlyph, "bad glyph")
	if e.Type != TypeError || e.ProtocolVersion != Version || e.Code != ErrInvalidGlyph || e.Message != "bad glyph" {
		t.Fatalf("unexpected error msg: %+v", e)
	}
}
