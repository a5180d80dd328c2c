// ABOUTME: Pager mediates between the buffer cache and the page file
// ABOUTME: Page 0 holds root-indirection state; pages 1+ are B+Tree nodes

package pager

import (
	"encoding/binary"
	"sync"

	"github.com/nainya/pagestore/pkg/btree"
	"github.com/nainya/pagestore/pkg/cache"
	"github.com/nainya/pagestore/pkg/errs"
	"github.com/nainya/pagestore/pkg/pagefile"
)

// page0 layout, per spec: byte 0 is the tag of the real root (copied
// from the root at flush time, for tooling that inspects the file
// without going through the pager); bytes 1..5 hold the root's page
// number in the same slot a node's own parent_page_no would occupy.
// Zero means "tree has no root yet".
const page0RootOffset = 1

// Pager owns one table's page file. It implements btree.Store, fronted
// by an LRU cache of clean pages and a pinned set of dirty pages that
// survive cache eviction until the next Flush.
type Pager struct {
	mu   sync.Mutex
	file *pagefile.File
	pool *cache.BufferPool
	lru  *cache.LRU

	rowSize     int
	maxLeaf     int
	maxInternal int

	highWater uint32 // next page number AllocateNode hands out

	dirty      map[uint32][]byte // pageNo -> pinned buffer, not yet written
	page0      []byte
	page0Dirty bool
}

// Open opens (creating if necessary) the page file at path for a table
// whose rows are rowSize bytes wide, backed by an LRU cache holding up
// to cacheCapacity pages.
func Open(path string, rowSize int, cacheCapacity int, fileCfg pagefile.Config) (*Pager, error) {
	f, err := pagefile.Open(path, fileCfg)
	if err != nil {
		return nil, err
	}

	pool := cache.NewBufferPool(cacheCapacity)
	lru := cache.New(cacheCapacity, pool)

	p := &Pager{
		file:        f,
		pool:        pool,
		lru:         lru,
		rowSize:     rowSize,
		maxLeaf:     btree.MaxLeafEntries(rowSize),
		maxInternal: btree.MaxInternalEntries(),
		dirty:       make(map[uint32][]byte),
	}

	sizeInPages, err := f.SizeInPages()
	if err != nil {
		return nil, err
	}

	page0 := make([]byte, pagefile.PageSize)
	if sizeInPages == 0 {
		p.highWater = 1
		p.page0 = page0
		p.page0Dirty = true
		if err := p.flushPage0Locked(f.Write); err != nil {
			return nil, err
		}
		return p, nil
	}

	if err := f.Read(0, page0); err != nil {
		return nil, err
	}
	p.highWater = sizeInPages
	if p.highWater < 1 {
		p.highWater = 1
	}
	p.page0 = page0
	return p, nil
}

// RowSize implements btree.Store.
func (p *Pager) RowSize() int { return p.rowSize }

// MaxLeafEntries implements btree.Store.
func (p *Pager) MaxLeafEntries() int { return p.maxLeaf }

// MaxInternalEntries implements btree.Store.
func (p *Pager) MaxInternalEntries() int { return p.maxInternal }

// RootPageNo implements btree.Store.
func (p *Pager) RootPageNo() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return binary.LittleEndian.Uint32(p.page0[page0RootOffset:]), nil
}

// SetRootPageNo implements btree.Store.
func (p *Pager) SetRootPageNo(pageNo uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	binary.LittleEndian.PutUint32(p.page0[page0RootOffset:], pageNo)
	p.page0Dirty = true
	return nil
}

// GetNode implements btree.Store, faulting the page in from the dirty
// set, then the cache, then disk, in that order. Page 0 is the root
// indirection: asking for it resolves to the current root node.
func (p *Pager) GetNode(pageNo uint32) (*btree.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pageNo == 0 {
		rootNo := binary.LittleEndian.Uint32(p.page0[page0RootOffset:])
		if rootNo == 0 {
			return nil, errs.New(errs.NotFound, "pager.GetNode: tree has no root")
		}
		pageNo = rootNo
	}
	buf, err := p.bufferLocked(pageNo)
	if err != nil {
		return nil, err
	}
	return btree.LoadNode(buf)
}

func (p *Pager) bufferLocked(pageNo uint32) ([]byte, error) {
	if buf, ok := p.dirty[pageNo]; ok {
		return buf, nil
	}
	if buf, ok := p.lru.Get(pageNo); ok {
		return buf, nil
	}
	buf := p.pool.Acquire()
	if err := p.file.Read(pageNo, buf); err != nil {
		p.pool.Release(buf)
		return nil, err
	}
	p.lru.Set(pageNo, buf)
	return buf, nil
}

// AllocateNode implements btree.Store: reserves the next page number
// and hands back a zeroed buffer pinned as dirty until flushed.
func (p *Pager) AllocateNode() (uint32, *btree.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pageNo := p.highWater
	p.highWater++
	buf := p.pool.Acquire()
	p.dirty[pageNo] = buf
	return pageNo, btree.NewNode(buf), nil
}

// MarkDirty implements btree.Store. The first time a cached page is
// mutated, its buffer is plucked out of the LRU so eviction can never
// silently drop unwritten data; the pinned buffer is released back to
// the cache only once Flush has written it out.
func (p *Pager) MarkDirty(pageNo uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.dirty[pageNo]; ok {
		return
	}
	if buf, ok := p.lru.Pluck(pageNo); ok {
		p.dirty[pageNo] = buf
	}
}

// Flush writes every pinned dirty page and the root-indirection page
// to the file, then fsyncs. The root's own tag byte is mirrored into
// page 0 so a tool reading the file directly can tell leaf from
// internal root without following the pager's own bookkeeping.
func (p *Pager) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(p.file.Write)
}

// FlushBatch is Flush with write coalescing: dirty pages are written
// without intermediate fsyncs even under immediate-sync, and the one
// sync happens at the end.
func (p *Pager) FlushBatch() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(p.file.WriteNoSync)
}

func (p *Pager) flushLocked(write func(uint32, []byte) error) error {
	for pageNo, buf := range p.dirty {
		if err := write(pageNo, buf); err != nil {
			return err
		}
		delete(p.dirty, pageNo)
		p.lru.Set(pageNo, buf)
	}
	if err := p.mirrorRootTagLocked(); err != nil {
		return err
	}
	if err := p.flushPage0Locked(write); err != nil {
		return err
	}
	return p.file.Flush()
}

func (p *Pager) mirrorRootTagLocked() error {
	rootNo := binary.LittleEndian.Uint32(p.page0[page0RootOffset:])
	if rootNo == 0 {
		return nil
	}
	buf, err := p.bufferLocked(rootNo)
	if err != nil {
		return err
	}
	if p.page0[0] != buf[0] {
		p.page0[0] = buf[0]
		p.page0Dirty = true
	}
	return nil
}

func (p *Pager) flushPage0Locked(write func(uint32, []byte) error) error {
	if !p.page0Dirty {
		return nil
	}
	if err := write(0, p.page0); err != nil {
		return err
	}
	p.page0Dirty = false
	return nil
}

// Close flushes outstanding writes and closes the underlying file.
func (p *Pager) Close() error {
	p.mu.Lock()
	if err := p.flushLocked(p.file.WriteNoSync); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()
	return p.file.Close()
}

// PageCount returns the number of allocated pages, page 0 included.
func (p *Pager) PageCount() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.highWater
}

// Stats exposes cache/pool counters for metrics wiring.
func (p *Pager) Stats() (cache.Stats, cache.PoolStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lru.Stats(), p.pool.Stats()
}
