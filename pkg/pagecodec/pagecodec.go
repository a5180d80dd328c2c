// ABOUTME: Optional page-level compression codec
// ABOUTME: Wraps Page I/O reads/writes; round-trips exact page bytes

package pagecodec

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"io"

	"github.com/nainya/pagestore/pkg/errs"
)

// PageSize mirrors pagefile.PageSize. Kept as an independent constant
// (rather than importing pkg/pagefile) so pagefile can import this
// package to offer compressed storage without an import cycle.
const PageSize = 4096

// Type selects the compression algorithm a page is encoded with. The
// zero value, None, passes pages through unchanged.
type Type byte

const (
	// None stores the page verbatim after the codec header, uncompressed.
	None Type = iota
	// Flate compresses the page body with compress/flate.
	Flate
)

// headerSize is the leading compression-type byte plus the 4-byte
// original-size field that precedes the (possibly compressed) payload.
const headerSize = 1 + 4

// EncodedSize is the fixed on-disk slot width of an encoded page: the
// header plus room for a full verbatim page, so the None fallback for
// incompressible pages never loses bytes.
const EncodedSize = headerSize + PageSize

// Encode wraps a PageSize page into an EncodedSize slot: a leading
// type byte, a little-endian uint32 original size, then the payload.
// If compression does not shrink the page, or t is None, the page is
// stored verbatim with a None tag so Decode is always well-defined.
func Encode(t Type, page []byte) ([]byte, error) {
	if len(page) != PageSize {
		return nil, errs.New(errs.IOFailure, "pagecodec.Encode: page must be PageSize")
	}

	out := make([]byte, EncodedSize)
	binary.LittleEndian.PutUint32(out[1:headerSize], uint32(len(page)))
	if t == None {
		out[0] = byte(None)
		copy(out[headerSize:], page)
		return out, nil
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, "pagecodec.Encode", err)
	}
	if _, err := w.Write(page); err != nil {
		return nil, errs.Wrap(errs.IOFailure, "pagecodec.Encode", err)
	}
	if err := w.Close(); err != nil {
		return nil, errs.Wrap(errs.IOFailure, "pagecodec.Encode", err)
	}

	if buf.Len() >= PageSize {
		// Compression didn't help; fall back to verbatim storage.
		out[0] = byte(None)
		copy(out[headerSize:], page)
		return out, nil
	}

	out[0] = byte(t)
	copy(out[headerSize:], buf.Bytes())
	return out, nil
}

// Decode reverses Encode, returning an exact PageSize copy of the
// original page bytes.
func Decode(encoded []byte) ([]byte, error) {
	if len(encoded) != EncodedSize {
		return nil, errs.New(errs.Corruption, "pagecodec.Decode: encoded page must be EncodedSize")
	}
	t := Type(encoded[0])
	originalSize := binary.LittleEndian.Uint32(encoded[1:headerSize])

	switch t {
	case None:
		page := make([]byte, PageSize)
		copy(page, encoded[headerSize:])
		return page, nil
	case Flate:
		if originalSize > PageSize {
			return nil, errs.New(errs.Corruption, "pagecodec.Decode: impossible original size")
		}
		r := flate.NewReader(bytes.NewReader(encoded[headerSize:]))
		defer r.Close()
		page := make([]byte, PageSize)
		n, err := io.ReadFull(r, page[:originalSize])
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, errs.Wrap(errs.Corruption, "pagecodec.Decode", err)
		}
		if uint32(n) != originalSize {
			return nil, errs.New(errs.Corruption, "pagecodec.Decode: short read")
		}
		return page, nil
	default:
		return nil, errs.New(errs.Corruption, "pagecodec.Decode: unknown compression type")
	}
}
