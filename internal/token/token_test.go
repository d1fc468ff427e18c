package token

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := map[string]string{"easy": "tok1", "medium": "tok2"}

	segment, err := EncodeMap(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeMap(segment)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch: %v != %v", in, out)
	}
}

func TestDecodeCorruptedSegment(t *testing.T) {
	for _, segment := range []string{"%%%not-base64%%%", "bm90LWpzb24", ""} {
		out, err := DecodeMap(segment)
		if segment != "" && err == nil {
			t.Fatalf("expected error for %q", segment)
		}
		if out == nil {
			t.Fatalf("expected empty map for %q, got nil", segment)
		}
		if len(out) != 0 {
			t.Fatalf("expected empty map for %q, got %v", segment, out)
		}
	}
}

func TestDecodeEmptyJSONObject(t *testing.T) {
	segment, err := EncodeMap(map[string]string{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeMap(segment)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty map, got %v", out)
	}
}
