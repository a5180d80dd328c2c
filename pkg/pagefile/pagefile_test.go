package pagefile

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/nainya/pagestore/pkg/pagecodec"
)

func TestOpenCreatesMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.db")

	f, err := Open(path, Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	n, err := f.SizeInPages()
	if err != nil {
		t.Fatalf("SizeInPages: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty file, got %d pages", n)
	}
}

func TestReadBeyondEOFReturnsZeroPage(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(filepath.Join(dir, "t.db"), Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	buf := make([]byte, PageSize)
	for i := range buf {
		buf[i] = 0xAA
	}
	if err := f.Read(7, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf, make([]byte, PageSize)) {
		t.Fatalf("expected zero-filled page beyond EOF")
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(filepath.Join(dir, "t.db"), Config{ImmediateSync: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	want := make([]byte, PageSize)
	copy(want, []byte("hello page"))
	if err := f.Write(3, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := make([]byte, PageSize)
	if err := f.Read(3, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch")
	}

	n, err := f.SizeInPages()
	if err != nil {
		t.Fatalf("SizeInPages: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 pages after writing page 3, got %d", n)
	}
}

func TestReopenPreservesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.db")

	f, err := Open(path, Config{ImmediateSync: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := make([]byte, PageSize)
	copy(want, []byte("durable"))
	if err := f.Write(0, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := Open(path, Config{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f2.Close()

	got := make([]byte, PageSize)
	if err := f2.Read(0, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("content did not survive reopen")
	}
}

func TestFlateCompressionRoundTrips(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(filepath.Join(dir, "t.db"), Config{ImmediateSync: true, Compression: pagecodec.Flate})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	want := make([]byte, PageSize)
	copy(want, bytes.Repeat([]byte("a"), 1000))
	if err := f.Write(5, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := make([]byte, PageSize)
	if err := f.Read(5, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("compressed round trip mismatch")
	}
}
