package encoding

import (
	"bytes"
	"testing"
)

func TestRLE_RoundTrip(t *testing.T) {
	in := []byte("...A12.....E..*")
	for i := 0; i < 50; i++ {
		in = append(in, '.')
	}
	in = append(in, 'S', 0x03, 0x03, 0x21)

	enc := EncodeRLE(in)
	out, err := DecodeRLE(enc, 0)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("mismatch:\n got %q\nwant %q", out, in)
	}
}

func TestRLE_Empty(t *testing.T) {
	out, err := DecodeRLE(EncodeRLE(nil), 0)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %q", out)
	}
}

func TestRLE_Limit(t *testing.T) {
	enc := EncodeRLE(bytes.Repeat([]byte{'.'}, 100))
	if _, err := DecodeRLE(enc, 99); err == nil {
		t.Fatalf("expected limit error")
	}
	if _, err := DecodeRLE(enc, 100); err != nil {
		t.Fatalf("DecodeRLE at limit: %v", err)
	}
	if _, err := DecodeRLE("!!not base64", 0); err == nil {
		t.Fatalf("expected base64 error")
	}
}
