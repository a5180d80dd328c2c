package pagecodec

import (
	"bytes"
	"testing"
)

func TestNoneRoundTrips(t *testing.T) {
	page := make([]byte, PageSize)
	copy(page, []byte("hello"))

	encoded, err := Encode(None, page)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, page) {
		t.Fatalf("round trip mismatch")
	}
}

func TestFlateRoundTripsCompressiblePage(t *testing.T) {
	page := make([]byte, PageSize)
	copy(page, bytes.Repeat([]byte("ab"), 1000))

	encoded, err := Encode(Flate, page)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(encoded) != EncodedSize {
		t.Fatalf("encoded page must be EncodedSize, got %d", len(encoded))
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, page) {
		t.Fatalf("round trip mismatch")
	}
}

func TestFlateFallsBackToVerbatimForIncompressiblePage(t *testing.T) {
	page := make([]byte, PageSize)
	for i := range page {
		page[i] = byte(i * 131)
	}

	encoded, err := Encode(Flate, page)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, page) {
		t.Fatalf("round trip mismatch")
	}
}

func TestDecodeRejectsWrongSize(t *testing.T) {
	if _, err := Decode(make([]byte, EncodedSize-1)); err == nil {
		t.Fatalf("expected error for short buffer")
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	encoded := make([]byte, EncodedSize)
	encoded[0] = 0xFF
	if _, err := Decode(encoded); err == nil {
		t.Fatalf("expected error for unknown compression type")
	}
}
