// ABOUTME: B+Tree search, insert and delete over a pager-backed Store
// ABOUTME: Leaves split right-heavy and merge/borrow on underflow along the descent path

package btree

import (
	"github.com/nainya/pagestore/pkg/errs"
)

// BTree drives the search/insert/delete algorithm against a Store. It
// holds no page data itself; every node it touches is fetched through
// the store and mutated in place.
type BTree struct {
	store Store
}

// New returns a tree operating over store.
func New(store Store) *BTree {
	return &BTree{store: store}
}

// pathEntry is one level of a root-to-leaf descent. parentIdx is the
// index of this node's pointer within its parent's child array; it is
// meaningless for the root entry (path[0]).
type pathEntry struct {
	pageNo    uint32
	node      *Node
	parentIdx uint32
}

func (t *BTree) descend(key uint32) ([]pathEntry, error) {
	rootNo, err := t.store.RootPageNo()
	if err != nil {
		return nil, err
	}
	if rootNo == 0 {
		return nil, errs.New(errs.NotFound, "btree: empty tree")
	}
	node, err := t.store.GetNode(rootNo)
	if err != nil {
		return nil, err
	}
	path := []pathEntry{{pageNo: rootNo, node: node}}
	for node.IsInternal() {
		idx := internalChildIndex(node, key)
		childNo := node.ChildPtr(idx)
		child, err := t.store.GetNode(childNo)
		if err != nil {
			return nil, err
		}
		path = append(path, pathEntry{pageNo: childNo, node: child, parentIdx: idx})
		node = child
	}
	return path, nil
}

// internalChildIndex returns the pointer index to descend into for key:
// the largest i in [0, size) with SepKey(i) <= key, plus one; or 0 if
// key is smaller than every separator.
func internalChildIndex(n *Node, key uint32) uint32 {
	size := n.Size()
	idx := uint32(0)
	left, right := 0, int(size)-1
	for left <= right {
		mid := (left + right) / 2
		if n.SepKey(uint32(mid)) <= key {
			idx = uint32(mid) + 1
			left = mid + 1
		} else {
			right = mid - 1
		}
	}
	return idx
}

// leafSearch returns the position of key within the leaf (found=true),
// or the insertion point that keeps keys ascending (found=false).
func leafSearch(n *Node, key uint32, rowSize int) (idx uint32, found bool) {
	size := n.Size()
	lo, hi := 0, int(size)
	for lo < hi {
		mid := (lo + hi) / 2
		if n.LeafKey(uint32(mid), rowSize) < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	idx = uint32(lo)
	found = idx < size && n.LeafKey(idx, rowSize) == key
	return
}

// Get returns the row stored under key, if any.
func (t *BTree) Get(key uint32) ([]byte, bool, error) {
	rowSize := t.store.RowSize()
	path, err := t.descend(key)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	leaf := path[len(path)-1].node
	idx, found := leafSearch(leaf, key, rowSize)
	if !found {
		return nil, false, nil
	}
	value := make([]byte, rowSize)
	copy(value, leaf.LeafValue(idx, rowSize))
	return value, true, nil
}

// Height returns the number of levels from root to leaf inclusive, or
// 0 for an empty tree.
func (t *BTree) Height() (int, error) {
	rootNo, err := t.store.RootPageNo()
	if err != nil {
		return 0, err
	}
	if rootNo == 0 {
		return 0, nil
	}
	h := 1
	node, err := t.store.GetNode(rootNo)
	if err != nil {
		return 0, err
	}
	for node.IsInternal() {
		node, err = t.store.GetNode(node.ChildPtr(0))
		if err != nil {
			return 0, err
		}
		h++
	}
	return h, nil
}

// Insert writes (key, value), overwriting any existing row under key.
// value must be exactly RowSize() bytes.
func (t *BTree) Insert(key uint32, value []byte) error {
	rowSize := t.store.RowSize()
	if len(value) != rowSize {
		return errs.New(errs.InvalidRecord, "btree.Insert: value size mismatch")
	}

	rootNo, err := t.store.RootPageNo()
	if err != nil {
		return err
	}
	if rootNo == 0 {
		pageNo, node, err := t.store.AllocateNode()
		if err != nil {
			return err
		}
		node.InitLeaf(0)
		node.InsertLeafCell(0, key, value, rowSize)
		t.store.MarkDirty(pageNo)
		return t.store.SetRootPageNo(pageNo)
	}

	path, err := t.descend(key)
	if err != nil {
		return err
	}
	leafEntry := path[len(path)-1]
	leaf := leafEntry.node

	idx, found := leafSearch(leaf, key, rowSize)
	if found {
		leaf.SetLeafCell(idx, key, value, rowSize)
		t.store.MarkDirty(leafEntry.pageNo)
		return nil
	}
	leaf.InsertLeafCell(idx, key, value, rowSize)
	t.store.MarkDirty(leafEntry.pageNo)

	if int(leaf.Size()) < t.store.MaxLeafEntries() {
		return nil
	}

	splitKey, newPageNo, err := t.splitLeaf(leafEntry.pageNo, leaf)
	if err != nil {
		return err
	}

	parentPath := path[:len(path)-1]
	return t.promote(parentPath, leafEntry.parentIdx, leafEntry.pageNo, splitKey, newPageNo)
}

// splitLeaf splits a leaf that has reached MaxLeafEntries, keeping the
// first floor(size/2) entries in place and moving the remaining
// ceil(size/2) to a freshly allocated right sibling. Returns the new
// sibling's first key (the separator to promote) and its page number.
func (t *BTree) splitLeaf(pageNo uint32, leaf *Node) (splitKey uint32, newPageNo uint32, err error) {
	rowSize := t.store.RowSize()
	size := leaf.Size()
	splitAt := size / 2
	rightCount := size - splitAt

	newPageNo, newLeaf, err := t.store.AllocateNode()
	if err != nil {
		return 0, 0, err
	}
	newLeaf.InitLeaf(leaf.ParentPageNo())
	newLeaf.CopyLeafRange(leaf, 0, splitAt, rightCount, rowSize)
	newLeaf.SetSize(rightCount)

	oldNext := leaf.NextLeaf()
	newLeaf.SetNextLeaf(oldNext)
	newLeaf.SetPrevLeaf(pageNo)
	leaf.SetNextLeaf(newPageNo)
	leaf.SetSize(splitAt)

	if oldNext != 0 {
		nextNode, err := t.store.GetNode(oldNext)
		if err != nil {
			return 0, 0, err
		}
		nextNode.SetPrevLeaf(newPageNo)
		t.store.MarkDirty(oldNext)
	}

	t.store.MarkDirty(pageNo)
	t.store.MarkDirty(newPageNo)
	return newLeaf.LeafKey(0, rowSize), newPageNo, nil
}

// splitInternal splits an internal node that has reached
// MaxInternalEntries, promoting its middle separator key instead of
// copying it. Children that move to the new right sibling have their
// parent pointer updated.
func (t *BTree) splitInternal(pageNo uint32, node *Node) (promotedKey uint32, newPageNo uint32, err error) {
	size := node.Size()
	mid := size / 2
	promotedKey = node.SepKey(mid)
	rightKeyCount := size - mid - 1

	newPageNo, newNode, err := t.store.AllocateNode()
	if err != nil {
		return 0, 0, err
	}
	newNode.InitInternal(node.ParentPageNo(), false)

	for i := uint32(0); i <= rightKeyCount; i++ {
		newNode.SetChildPtr(i, node.ChildPtr(mid+1+i))
	}
	for i := uint32(0); i < rightKeyCount; i++ {
		newNode.SetSepKey(i, node.SepKey(mid+1+i))
	}
	newNode.SetSize(rightKeyCount)
	node.SetSize(mid)

	t.store.MarkDirty(pageNo)
	t.store.MarkDirty(newPageNo)

	for i := uint32(0); i <= rightKeyCount; i++ {
		childNo := newNode.ChildPtr(i)
		child, err := t.store.GetNode(childNo)
		if err != nil {
			return 0, 0, err
		}
		child.SetParentPageNo(newPageNo)
		t.store.MarkDirty(childNo)
	}
	return promotedKey, newPageNo, nil
}

// promote inserts (key, rightPageNo) as the separator following
// leftPageNo into parentPath's deepest node, splitting further up the
// path as needed. An empty parentPath means leftPageNo was the root,
// in which case a new internal root is created.
func (t *BTree) promote(parentPath []pathEntry, childIdx uint32, leftPageNo uint32, key uint32, rightPageNo uint32) error {
	if len(parentPath) == 0 {
		newRootNo, newRoot, err := t.store.AllocateNode()
		if err != nil {
			return err
		}
		newRoot.InitInternal(0, true)
		newRoot.SetChildPtr(0, leftPageNo)
		newRoot.InsertChild(0, key, rightPageNo)
		t.store.MarkDirty(newRootNo)

		left, err := t.store.GetNode(leftPageNo)
		if err != nil {
			return err
		}
		left.SetParentPageNo(newRootNo)
		if left.IsInternal() {
			left.SetIsRoot(false)
		}
		t.store.MarkDirty(leftPageNo)

		right, err := t.store.GetNode(rightPageNo)
		if err != nil {
			return err
		}
		right.SetParentPageNo(newRootNo)
		t.store.MarkDirty(rightPageNo)

		return t.store.SetRootPageNo(newRootNo)
	}

	parentEntry := parentPath[len(parentPath)-1]
	parent := parentEntry.node

	// A delete-side merge can leave an internal node holding exactly
	// MaxInternalEntries keys, where one more cell would no longer fit
	// in the page. Split such a parent first, then insert into whichever
	// half the child index lands in.
	if int(parent.Size()) >= t.store.MaxInternalEntries() {
		promotedKey, newRightNo, err := t.splitInternal(parentEntry.pageNo, parent)
		if err != nil {
			return err
		}
		leftSize := parent.Size()
		targetPageNo := parentEntry.pageNo
		target := parent
		idx := childIdx
		if childIdx > leftSize {
			target, err = t.store.GetNode(newRightNo)
			if err != nil {
				return err
			}
			targetPageNo = newRightNo
			idx = childIdx - leftSize - 1
		}
		target.InsertChild(idx, key, rightPageNo)
		t.store.MarkDirty(targetPageNo)

		right, err := t.store.GetNode(rightPageNo)
		if err != nil {
			return err
		}
		right.SetParentPageNo(targetPageNo)
		t.store.MarkDirty(rightPageNo)

		return t.promote(parentPath[:len(parentPath)-1], parentEntry.parentIdx, parentEntry.pageNo, promotedKey, newRightNo)
	}

	parent.InsertChild(childIdx, key, rightPageNo)
	t.store.MarkDirty(parentEntry.pageNo)

	right, err := t.store.GetNode(rightPageNo)
	if err != nil {
		return err
	}
	right.SetParentPageNo(parentEntry.pageNo)
	t.store.MarkDirty(rightPageNo)

	if int(parent.Size()) < t.store.MaxInternalEntries() {
		return nil
	}

	newKey, newRightPageNo, err := t.splitInternal(parentEntry.pageNo, parent)
	if err != nil {
		return err
	}
	return t.promote(parentPath[:len(parentPath)-1], parentEntry.parentIdx, parentEntry.pageNo, newKey, newRightPageNo)
}

// Delete removes key, reporting whether it was present. Underflowing
// leaves and internal nodes are repaired by borrowing from or merging
// with an adjacent sibling under the common parent.
func (t *BTree) Delete(key uint32) (bool, error) {
	rootNo, err := t.store.RootPageNo()
	if err != nil {
		return false, err
	}
	if rootNo == 0 {
		return false, nil
	}

	path, err := t.descend(key)
	if err != nil {
		return false, err
	}
	rowSize := t.store.RowSize()
	leafEntry := path[len(path)-1]
	leaf := leafEntry.node

	idx, found := leafSearch(leaf, key, rowSize)
	if !found {
		return false, nil
	}
	leaf.RemoveLeafCell(idx, rowSize)
	t.store.MarkDirty(leafEntry.pageNo)

	if err := t.fixLeafUnderflow(path); err != nil {
		return false, err
	}
	return true, nil
}

func (t *BTree) fixLeafUnderflow(path []pathEntry) error {
	leafEntry := path[len(path)-1]
	leaf := leafEntry.node
	rowSize := t.store.RowSize()

	if len(path) == 1 {
		return nil
	}
	minLeaf := t.store.MaxLeafEntries() / 2
	if int(leaf.Size()) >= minLeaf {
		return nil
	}

	parentEntry := path[len(path)-2]
	parent := parentEntry.node
	childIdx := leafEntry.parentIdx

	if childIdx > 0 {
		leftNo := parent.ChildPtr(childIdx - 1)
		left, err := t.store.GetNode(leftNo)
		if err != nil {
			return err
		}
		if int(left.Size()) > minLeaf {
			k := left.LeafKey(left.Size()-1, rowSize)
			v := make([]byte, rowSize)
			copy(v, left.LeafValue(left.Size()-1, rowSize))
			left.RemoveLeafCell(left.Size()-1, rowSize)
			leaf.InsertLeafCell(0, k, v, rowSize)
			parent.SetSepKey(childIdx-1, k)
			t.store.MarkDirty(leftNo)
			t.store.MarkDirty(leafEntry.pageNo)
			t.store.MarkDirty(parentEntry.pageNo)
			return nil
		}
	}
	if childIdx < parent.Size() {
		rightNo := parent.ChildPtr(childIdx + 1)
		right, err := t.store.GetNode(rightNo)
		if err != nil {
			return err
		}
		if int(right.Size()) > minLeaf {
			k := right.LeafKey(0, rowSize)
			v := make([]byte, rowSize)
			copy(v, right.LeafValue(0, rowSize))
			right.RemoveLeafCell(0, rowSize)
			leaf.InsertLeafCell(leaf.Size(), k, v, rowSize)
			parent.SetSepKey(childIdx, right.LeafKey(0, rowSize))
			t.store.MarkDirty(rightNo)
			t.store.MarkDirty(leafEntry.pageNo)
			t.store.MarkDirty(parentEntry.pageNo)
			return nil
		}
	}

	if childIdx > 0 {
		leftNo := parent.ChildPtr(childIdx - 1)
		left, err := t.store.GetNode(leftNo)
		if err != nil {
			return err
		}
		count := leaf.Size()
		left.CopyLeafRange(leaf, left.Size(), 0, count, rowSize)
		left.SetSize(left.Size() + count)
		left.SetNextLeaf(leaf.NextLeaf())
		if leaf.NextLeaf() != 0 {
			nxt, err := t.store.GetNode(leaf.NextLeaf())
			if err != nil {
				return err
			}
			nxt.SetPrevLeaf(leftNo)
			t.store.MarkDirty(leaf.NextLeaf())
		}
		t.store.MarkDirty(leftNo)
		parent.RemoveChild(childIdx - 1)
		t.store.MarkDirty(parentEntry.pageNo)
		return t.fixInternalUnderflow(path[:len(path)-1])
	}

	rightNo := parent.ChildPtr(childIdx + 1)
	right, err := t.store.GetNode(rightNo)
	if err != nil {
		return err
	}
	count := right.Size()
	leaf.CopyLeafRange(right, leaf.Size(), 0, count, rowSize)
	leaf.SetSize(leaf.Size() + count)
	leaf.SetNextLeaf(right.NextLeaf())
	if right.NextLeaf() != 0 {
		nxt, err := t.store.GetNode(right.NextLeaf())
		if err != nil {
			return err
		}
		nxt.SetPrevLeaf(leafEntry.pageNo)
		t.store.MarkDirty(right.NextLeaf())
	}
	t.store.MarkDirty(leafEntry.pageNo)
	parent.RemoveChild(childIdx)
	t.store.MarkDirty(parentEntry.pageNo)
	return t.fixInternalUnderflow(path[:len(path)-1])
}

func (t *BTree) fixInternalUnderflow(path []pathEntry) error {
	if len(path) == 0 {
		return nil
	}
	nodeEntry := path[len(path)-1]
	node := nodeEntry.node

	if len(path) == 1 {
		if node.Size() == 0 {
			onlyChild := node.ChildPtr(0)
			child, err := t.store.GetNode(onlyChild)
			if err != nil {
				return err
			}
			if child.IsInternal() {
				child.SetIsRoot(true)
			}
			child.SetParentPageNo(0)
			t.store.MarkDirty(onlyChild)
			return t.store.SetRootPageNo(onlyChild)
		}
		return nil
	}

	minInternal := t.store.MaxInternalEntries() / 2
	if int(node.Size()) >= minInternal {
		return nil
	}

	parentEntry := path[len(path)-2]
	parent := parentEntry.node
	childIdx := nodeEntry.parentIdx

	if childIdx > 0 {
		leftNo := parent.ChildPtr(childIdx - 1)
		left, err := t.store.GetNode(leftNo)
		if err != nil {
			return err
		}
		if int(left.Size()) > minInternal {
			sep := parent.SepKey(childIdx - 1)
			borrowedKey, borrowedChild := left.PopLastChild()
			node.PrependChild(sep, borrowedChild)
			parent.SetSepKey(childIdx-1, borrowedKey)

			bc, err := t.store.GetNode(borrowedChild)
			if err != nil {
				return err
			}
			bc.SetParentPageNo(nodeEntry.pageNo)
			t.store.MarkDirty(borrowedChild)
			t.store.MarkDirty(leftNo)
			t.store.MarkDirty(nodeEntry.pageNo)
			t.store.MarkDirty(parentEntry.pageNo)
			return nil
		}
	}
	if childIdx < parent.Size() {
		rightNo := parent.ChildPtr(childIdx + 1)
		right, err := t.store.GetNode(rightNo)
		if err != nil {
			return err
		}
		if int(right.Size()) > minInternal {
			sep := parent.SepKey(childIdx)
			borrowedKey, borrowedChild := right.PopFirstChild()
			node.AppendChild(sep, borrowedChild)
			parent.SetSepKey(childIdx, borrowedKey)

			bc, err := t.store.GetNode(borrowedChild)
			if err != nil {
				return err
			}
			bc.SetParentPageNo(nodeEntry.pageNo)
			t.store.MarkDirty(borrowedChild)
			t.store.MarkDirty(rightNo)
			t.store.MarkDirty(nodeEntry.pageNo)
			t.store.MarkDirty(parentEntry.pageNo)
			return nil
		}
	}

	if childIdx > 0 {
		leftNo := parent.ChildPtr(childIdx - 1)
		left, err := t.store.GetNode(leftNo)
		if err != nil {
			return err
		}
		sep := parent.SepKey(childIdx - 1)
		nodeSize := node.Size()
		left.AppendChild(sep, node.ChildPtr(0))
		for i := uint32(0); i < nodeSize; i++ {
			left.AppendChild(node.SepKey(i), node.ChildPtr(i+1))
		}
		for i := uint32(0); i <= nodeSize; i++ {
			childNo := node.ChildPtr(i)
			child, err := t.store.GetNode(childNo)
			if err != nil {
				return err
			}
			child.SetParentPageNo(leftNo)
			t.store.MarkDirty(childNo)
		}
		parent.RemoveChild(childIdx - 1)
		t.store.MarkDirty(leftNo)
		t.store.MarkDirty(parentEntry.pageNo)
		return t.fixInternalUnderflow(path[:len(path)-1])
	}

	rightNo := parent.ChildPtr(childIdx + 1)
	right, err := t.store.GetNode(rightNo)
	if err != nil {
		return err
	}
	sep := parent.SepKey(childIdx)
	rightSize := right.Size()
	node.AppendChild(sep, right.ChildPtr(0))
	for i := uint32(0); i < rightSize; i++ {
		node.AppendChild(right.SepKey(i), right.ChildPtr(i+1))
	}
	for i := uint32(0); i <= rightSize; i++ {
		childNo := right.ChildPtr(i)
		child, err := t.store.GetNode(childNo)
		if err != nil {
			return err
		}
		child.SetParentPageNo(nodeEntry.pageNo)
		t.store.MarkDirty(childNo)
	}
	parent.RemoveChild(childIdx)
	t.store.MarkDirty(nodeEntry.pageNo)
	t.store.MarkDirty(parentEntry.pageNo)
	return t.fixInternalUnderflow(path[:len(path)-1])
}
