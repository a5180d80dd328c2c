// ABOUTME: Fixed-size paged file I/O for a single table file
// ABOUTME: Reads/writes are always page-aligned; missing pages read as zeros

package pagefile

import (
	"os"
	"sync"
	"time"

	"github.com/nainya/pagestore/pkg/errs"
	"github.com/nainya/pagestore/pkg/pagecodec"
)

// PageSize is the fixed page width in bytes. Every read/write is a
// multiple of this size at a page-aligned offset.
const PageSize = 4096

// Config controls durability/performance tradeoffs of the page file.
type Config struct {
	// ImmediateSync fsyncs on every Write call. Safer, slower.
	ImmediateSync bool
	// BatchedSyncIntervalMs, when ImmediateSync is false, is the period
	// at which a background ticker calls Flush. Zero disables the ticker;
	// callers must Flush explicitly.
	BatchedSyncIntervalMs uint
	// Compression optionally wraps every on-disk page with a
	// pagecodec codec. The zero value, pagecodec.None, stores pages
	// verbatim and is the default.
	Compression pagecodec.Type
}

// File is a 4KiB-paged view over an *os.File.
type File struct {
	cfg  Config
	mu   sync.Mutex
	f    *os.File
	path string

	// slotSize is the on-disk width of one page slot: PageSize for
	// uncompressed files, pagecodec.EncodedSize when a codec wraps the
	// pages (the codec header plus verbatim-fallback room).
	slotSize int

	stopTicker chan struct{}
}

// Open opens path, creating it if it does not exist.
func Open(path string, cfg Config) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, "pagefile.Open", err)
	}
	pf := &File{cfg: cfg, f: f, path: path, slotSize: PageSize}
	if cfg.Compression != pagecodec.None {
		pf.slotSize = pagecodec.EncodedSize
	}
	if cfg.BatchedSyncIntervalMs > 0 && !cfg.ImmediateSync {
		pf.stopTicker = make(chan struct{})
		go pf.runTicker()
	}
	return pf, nil
}

func (f *File) runTicker() {
	d := time.Duration(f.cfg.BatchedSyncIntervalMs) * time.Millisecond
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = f.Flush()
		case <-f.stopTicker:
			return
		}
	}
}

// Read fills buf (which must be PageSize bytes) with the contents of
// page pageNo. Reading beyond end-of-file yields a zero-filled page.
func (f *File) Read(pageNo uint32, buf []byte) error {
	if len(buf) != PageSize {
		return errs.New(errs.IOFailure, "pagefile.Read: buffer must be PageSize")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	offset := int64(pageNo) * int64(f.slotSize)
	compressed := f.cfg.Compression != pagecodec.None
	raw := buf
	if compressed {
		raw = make([]byte, f.slotSize)
	}
	n, err := f.f.ReadAt(raw, offset)
	if err != nil && n == 0 {
		// Unallocated page: bootstrap sees it as logically empty.
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	for i := n; i < len(raw); i++ {
		raw[i] = 0
	}
	if compressed {
		decoded, err := pagecodec.Decode(raw)
		if err != nil {
			return errs.Wrap(errs.Corruption, "pagefile.Read", err)
		}
		copy(buf, decoded)
	}
	return nil
}

// Write writes buf (PageSize bytes) at pageNo's aligned offset,
// fsyncing afterwards when ImmediateSync is configured.
func (f *File) Write(pageNo uint32, buf []byte) error {
	return f.write(pageNo, buf, f.cfg.ImmediateSync)
}

// WriteNoSync writes like Write but never fsyncs, regardless of the
// ImmediateSync setting. Callers coalescing many writes pair it with a
// single Flush at the end.
func (f *File) WriteNoSync(pageNo uint32, buf []byte) error {
	return f.write(pageNo, buf, false)
}

func (f *File) write(pageNo uint32, buf []byte, sync bool) error {
	if len(buf) != PageSize {
		return errs.New(errs.IOFailure, "pagefile.Write: buffer must be PageSize")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	offset := int64(pageNo) * int64(f.slotSize)
	out := buf
	if f.cfg.Compression != pagecodec.None {
		encoded, err := pagecodec.Encode(f.cfg.Compression, buf)
		if err != nil {
			return errs.Wrap(errs.IOFailure, "pagefile.Write", err)
		}
		out = encoded
	}
	if _, err := f.f.WriteAt(out, offset); err != nil {
		return errs.Wrap(errs.IOFailure, "pagefile.Write", err)
	}
	if sync {
		if err := f.f.Sync(); err != nil {
			return errs.Wrap(errs.IOFailure, "pagefile.Write", err)
		}
	}
	return nil
}

// Flush fsyncs the underlying file.
func (f *File) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.f.Sync(); err != nil {
		return errs.Wrap(errs.IOFailure, "pagefile.Flush", err)
	}
	return nil
}

// Close fsyncs and closes the file.
func (f *File) Close() error {
	if f.stopTicker != nil {
		close(f.stopTicker)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.f.Sync(); err != nil {
		_ = f.f.Close()
		return errs.Wrap(errs.IOFailure, "pagefile.Close", err)
	}
	if err := f.f.Close(); err != nil {
		return errs.Wrap(errs.IOFailure, "pagefile.Close", err)
	}
	return nil
}

// SizeInPages returns the current file size in whole pages.
func (f *File) SizeInPages() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, err := f.f.Stat()
	if err != nil {
		return 0, errs.Wrap(errs.IOFailure, "pagefile.SizeInPages", err)
	}
	return uint32(info.Size() / int64(f.slotSize)), nil
}

// Path returns the path this file was opened from.
func (f *File) Path() string {
	return f.path
}

// Remove deletes the page file at path; a file that does not exist
// counts as removed. Used by Database.DropTable.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.IOFailure, "pagefile.Remove", err)
	}
	return nil
}
