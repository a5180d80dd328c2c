// ABOUTME: B+Tree range-scan iterator walking the leaf linked list
// ABOUTME: Descends once to locate the lower bound, then follows next_leaf

package btree

// Iterator walks (key, value) pairs in ascending order starting at or
// after a lower bound, stopping at an upper bound or an entry count
// limit, whichever comes first. A zero limit means unlimited.
type Iterator struct {
	tree    *BTree
	rowSize int
	hi      uint32
	limit   int
	count   int

	leaf *Node
	idx  uint32
	done bool
}

// Range returns an iterator over keys in [lo, hi], visiting at most
// limit entries (0 means unlimited).
func (t *BTree) Range(lo, hi uint32, limit int) (*Iterator, error) {
	rowSize := t.store.RowSize()
	rootNo, err := t.store.RootPageNo()
	if err != nil {
		return nil, err
	}
	if rootNo == 0 {
		return &Iterator{done: true}, nil
	}

	path, err := t.descend(lo)
	if err != nil {
		return nil, err
	}
	leafEntry := path[len(path)-1]
	idx, _ := leafSearch(leafEntry.node, lo, rowSize)

	return &Iterator{
		tree:    t,
		rowSize: rowSize,
		hi:      hi,
		limit:   limit,
		leaf:    leafEntry.node,
		idx:     idx,
	}, nil
}

// All returns an iterator over every key in the tree, in ascending order.
func (t *BTree) All() (*Iterator, error) {
	return t.Range(0, ^uint32(0), 0)
}

// Next advances the iterator, returning the next (key, value) pair.
// ok is false once the range, the limit, or the tree itself is exhausted.
func (it *Iterator) Next() (key uint32, value []byte, ok bool, err error) {
	if it.done {
		return 0, nil, false, nil
	}
	if it.limit > 0 && it.count >= it.limit {
		it.done = true
		return 0, nil, false, nil
	}

	for {
		if it.idx >= it.leaf.Size() {
			nextNo := it.leaf.NextLeaf()
			if nextNo == 0 {
				it.done = true
				return 0, nil, false, nil
			}
			nextLeaf, err := it.tree.store.GetNode(nextNo)
			if err != nil {
				return 0, nil, false, err
			}
			it.leaf = nextLeaf
			it.idx = 0
			continue
		}

		k := it.leaf.LeafKey(it.idx, it.rowSize)
		if k > it.hi {
			it.done = true
			return 0, nil, false, nil
		}

		v := make([]byte, it.rowSize)
		copy(v, it.leaf.LeafValue(it.idx, it.rowSize))
		it.idx++
		it.count++
		return k, v, true, nil
	}
}
