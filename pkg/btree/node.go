// ABOUTME: B+Tree node layouts: typed byte-slice views over a 4096-byte page
// ABOUTME: Internal nodes hold routing keys only; leaves hold fixed-width rows

package btree

import (
	"encoding/binary"

	"github.com/nainya/pagestore/pkg/errs"
)

// PageSize is the fixed page width; every node occupies exactly one page.
const PageSize = 4096

// Node tags, stored as the first byte of every page (page 0 stores the
// real root's tag at the same offset, as a convenience for tooling).
const (
	TagInternal uint8 = 0
	TagLeaf     uint8 = 1
)

const (
	// internalHeaderSize: tag(1) + parent(4) + size(4) + isRoot(1).
	internalHeaderSize = 10
	// leafHeaderSize: tag(1) + parent(4) + size(4) + next(4) + prev(4).
	leafHeaderSize = 17
	// internalCellSize: pointer(4) + key(4), repeated size times, plus
	// one trailing pointer (4 bytes) after the last cell.
	internalCellSize = 8
	keySize          = 4
)

// MaxLeafEntries returns the split threshold for leaf nodes given the
// schema's fixed row width R.
func MaxLeafEntries(rowSize int) int {
	return (PageSize - leafHeaderSize) / (keySize + rowSize)
}

// MaxInternalEntries returns the split threshold for internal nodes
// (size = key count; size+1 pointers fit alongside).
func MaxInternalEntries() int {
	return (PageSize - internalHeaderSize - keySize) / internalCellSize
}

// Node is a typed view over one page's raw bytes.
type Node struct {
	buf []byte
}

// NewNode wraps an existing PageSize buffer without reinterpreting it.
func NewNode(buf []byte) *Node {
	if len(buf) != PageSize {
		panic("btree: node buffer must be PageSize")
	}
	return &Node{buf: buf}
}

// LoadNode wraps buf, validating the tag byte. Returns Corruption if the
// tag is neither TagInternal nor TagLeaf.
func LoadNode(buf []byte) (*Node, error) {
	if len(buf) != PageSize {
		return nil, errs.New(errs.Corruption, "btree.LoadNode: bad buffer size")
	}
	n := &Node{buf: buf}
	switch n.Tag() {
	case TagInternal, TagLeaf:
		return n, nil
	default:
		return nil, errs.New(errs.Corruption, "btree.LoadNode: unknown node tag")
	}
}

// Bytes returns the underlying page buffer.
func (n *Node) Bytes() []byte { return n.buf }

func (n *Node) Tag() uint8       { return n.buf[0] }
func (n *Node) IsLeaf() bool     { return n.Tag() == TagLeaf }
func (n *Node) IsInternal() bool { return n.Tag() == TagInternal }

func (n *Node) ParentPageNo() uint32 {
	return binary.LittleEndian.Uint32(n.buf[1:5])
}

func (n *Node) SetParentPageNo(v uint32) {
	binary.LittleEndian.PutUint32(n.buf[1:5], v)
}

func (n *Node) Size() uint32 {
	return binary.LittleEndian.Uint32(n.buf[5:9])
}

func (n *Node) SetSize(v uint32) {
	binary.LittleEndian.PutUint32(n.buf[5:9], v)
}

// --- Internal-node layout ---

// InitInternal formats the page as a fresh, empty internal node.
func (n *Node) InitInternal(parent uint32, isRoot bool) {
	clear(n.buf)
	n.buf[0] = TagInternal
	n.SetParentPageNo(parent)
	n.SetSize(0)
	n.SetIsRoot(isRoot)
}

func (n *Node) IsRoot() bool {
	return n.buf[9] != 0
}

func (n *Node) SetIsRoot(v bool) {
	if v {
		n.buf[9] = 1
	} else {
		n.buf[9] = 0
	}
}

func internalCellOffset(idx uint32) int {
	return internalHeaderSize + int(idx)*internalCellSize
}

// ChildPtr returns child pointer idx, for idx in [0, Size()]. Pointers
// 0..Size()-1 live in the interleaved cells; pointer Size() is the
// trailing pointer.
func (n *Node) ChildPtr(idx uint32) uint32 {
	off := internalCellOffset(idx)
	return binary.LittleEndian.Uint32(n.buf[off : off+4])
}

func (n *Node) SetChildPtr(idx uint32, v uint32) {
	off := internalCellOffset(idx)
	binary.LittleEndian.PutUint32(n.buf[off:off+4], v)
}

// SepKey returns separator key idx, for idx in [0, Size()).
func (n *Node) SepKey(idx uint32) uint32 {
	off := internalCellOffset(idx) + 4
	return binary.LittleEndian.Uint32(n.buf[off : off+4])
}

func (n *Node) SetSepKey(idx uint32, v uint32) {
	off := internalCellOffset(idx) + 4
	binary.LittleEndian.PutUint32(n.buf[off:off+4], v)
}

// shiftRightFrom moves pointers (idx, Size()] -> (idx+1, Size()+1] and
// keys [idx, Size()) -> [idx+1, Size()+1), opening a hole for a new
// (sepKey, childPtr) pair to be written at idx/idx+1.
func (n *Node) shiftRightFrom(idx uint32) {
	size := n.Size()
	for i := size; i > idx; i-- {
		n.SetChildPtr(i+1, n.ChildPtr(i))
	}
	for i := size; i > idx; i-- {
		n.SetSepKey(i, n.SepKey(i-1))
	}
}

// InsertChild inserts separator key and right-child pointer at index idx
// (idx in [0, Size()]), growing size by one. Pointer idx (the child that
// was just split) is left untouched; the new pointer becomes idx+1.
func (n *Node) InsertChild(idx uint32, sepKey uint32, childPtr uint32) {
	n.shiftRightFrom(idx)
	n.SetSepKey(idx, sepKey)
	n.SetChildPtr(idx+1, childPtr)
	n.SetSize(n.Size() + 1)
}

// RemoveChild removes separator key idx and child pointer idx+1,
// shifting the tail left. idx ranges over [0, Size()).
func (n *Node) RemoveChild(idx uint32) {
	size := n.Size()
	for i := idx; i+1 < size; i++ {
		n.SetSepKey(i, n.SepKey(i+1))
	}
	for i := idx + 1; i < size; i++ {
		n.SetChildPtr(i, n.ChildPtr(i+1))
	}
	n.SetSize(size - 1)
}

// AppendChild appends a trailing (sepKey, childPtr) pair, growing size by
// one. Used when an internal node absorbs a child borrowed or merged from
// its right sibling.
func (n *Node) AppendChild(sepKey uint32, childPtr uint32) {
	size := n.Size()
	n.SetSepKey(size, sepKey)
	n.SetChildPtr(size+1, childPtr)
	n.SetSize(size + 1)
}

// PrependChild inserts a new first pointer and first key, shifting every
// existing key and pointer right by one. Used when an internal node
// borrows its left sibling's last child.
func (n *Node) PrependChild(sepKey uint32, childPtr uint32) {
	size := n.Size()
	for i := size + 1; i > 0; i-- {
		n.SetChildPtr(i, n.ChildPtr(i-1))
	}
	for i := size; i > 0; i-- {
		n.SetSepKey(i, n.SepKey(i-1))
	}
	n.SetChildPtr(0, childPtr)
	n.SetSepKey(0, sepKey)
	n.SetSize(size + 1)
}

// PopLastChild removes and returns the trailing (sepKey, childPtr) pair.
func (n *Node) PopLastChild() (sepKey uint32, childPtr uint32) {
	size := n.Size()
	sepKey = n.SepKey(size - 1)
	childPtr = n.ChildPtr(size)
	n.SetSize(size - 1)
	return
}

// PopFirstChild removes and returns the first (sepKey, childPtr) pair,
// shifting the remaining keys and pointers left by one.
func (n *Node) PopFirstChild() (sepKey uint32, childPtr uint32) {
	sepKey = n.SepKey(0)
	childPtr = n.ChildPtr(0)
	size := n.Size()
	for i := uint32(0); i+1 < size; i++ {
		n.SetSepKey(i, n.SepKey(i+1))
	}
	for i := uint32(0); i < size; i++ {
		n.SetChildPtr(i, n.ChildPtr(i+1))
	}
	n.SetSize(size - 1)
	return
}

// --- Leaf-node layout ---

// InitLeaf formats the page as a fresh, empty leaf node.
func (n *Node) InitLeaf(parent uint32) {
	clear(n.buf)
	n.buf[0] = TagLeaf
	n.SetParentPageNo(parent)
	n.SetSize(0)
	n.SetNextLeaf(0)
	n.SetPrevLeaf(0)
}

func (n *Node) NextLeaf() uint32 {
	return binary.LittleEndian.Uint32(n.buf[9:13])
}

func (n *Node) SetNextLeaf(v uint32) {
	binary.LittleEndian.PutUint32(n.buf[9:13], v)
}

func (n *Node) PrevLeaf() uint32 {
	return binary.LittleEndian.Uint32(n.buf[13:17])
}

func (n *Node) SetPrevLeaf(v uint32) {
	binary.LittleEndian.PutUint32(n.buf[13:17], v)
}

func leafCellOffset(idx uint32, rowSize int) int {
	return leafHeaderSize + int(idx)*(keySize+rowSize)
}

// LeafKey returns the key at idx.
func (n *Node) LeafKey(idx uint32, rowSize int) uint32 {
	off := leafCellOffset(idx, rowSize)
	return binary.LittleEndian.Uint32(n.buf[off : off+4])
}

func (n *Node) setLeafKey(idx uint32, key uint32, rowSize int) {
	off := leafCellOffset(idx, rowSize)
	binary.LittleEndian.PutUint32(n.buf[off:off+4], key)
}

// LeafValue returns the R-byte row value at idx.
func (n *Node) LeafValue(idx uint32, rowSize int) []byte {
	off := leafCellOffset(idx, rowSize) + 4
	return n.buf[off : off+rowSize]
}

// SetLeafCell writes (key, value) at idx; value must be rowSize bytes.
func (n *Node) SetLeafCell(idx uint32, key uint32, value []byte, rowSize int) {
	n.setLeafKey(idx, key, rowSize)
	off := leafCellOffset(idx, rowSize) + 4
	copy(n.buf[off:off+rowSize], value)
}

// InsertLeafCell inserts (key, value) at idx, shifting the tail right.
func (n *Node) InsertLeafCell(idx uint32, key uint32, value []byte, rowSize int) {
	size := n.Size()
	cellSize := keySize + rowSize
	for i := size; i > idx; i-- {
		srcOff := leafCellOffset(i-1, rowSize)
		dstOff := leafCellOffset(i, rowSize)
		copy(n.buf[dstOff:dstOff+cellSize], n.buf[srcOff:srcOff+cellSize])
	}
	n.SetLeafCell(idx, key, value, rowSize)
	n.SetSize(size + 1)
}

// RemoveLeafCell removes the cell at idx, shifting the tail left.
func (n *Node) RemoveLeafCell(idx uint32, rowSize int) {
	size := n.Size()
	cellSize := keySize + rowSize
	for i := idx; i+1 < size; i++ {
		srcOff := leafCellOffset(i+1, rowSize)
		dstOff := leafCellOffset(i, rowSize)
		copy(n.buf[dstOff:dstOff+cellSize], n.buf[srcOff:srcOff+cellSize])
	}
	n.SetSize(size - 1)
}

// CopyLeafRange copies count entries from old starting at srcIdx into n
// (which must already be InitLeaf'd) starting at dstIdx.
func (n *Node) CopyLeafRange(old *Node, dstIdx, srcIdx, count uint32, rowSize int) {
	for i := uint32(0); i < count; i++ {
		k := old.LeafKey(srcIdx+i, rowSize)
		v := old.LeafValue(srcIdx+i, rowSize)
		n.SetLeafCell(dstIdx+i, k, v, rowSize)
	}
}
