package btree

import "testing"

func freshLeaf() *Node {
	return NewNode(make([]byte, PageSize))
}

func freshInternal() *Node {
	return NewNode(make([]byte, PageSize))
}

func TestLeafInsertKeepsAscendingOrder(t *testing.T) {
	const rowSize = 8
	n := freshLeaf()
	n.InitLeaf(0)

	vals := map[uint32][]byte{
		30: {1, 2, 3, 4, 5, 6, 7, 8},
		10: {8, 7, 6, 5, 4, 3, 2, 1},
		20: {1, 1, 1, 1, 1, 1, 1, 1},
	}
	for _, k := range []uint32{30, 10, 20} {
		idx, found := leafSearch(n, k, rowSize)
		if found {
			t.Fatalf("key %d unexpectedly found before insert", k)
		}
		n.InsertLeafCell(idx, k, vals[k], rowSize)
	}

	if n.Size() != 3 {
		t.Fatalf("expected size 3, got %d", n.Size())
	}
	want := []uint32{10, 20, 30}
	for i, k := range want {
		if got := n.LeafKey(uint32(i), rowSize); got != k {
			t.Fatalf("index %d: expected key %d, got %d", i, k, got)
		}
	}
}

func TestLeafRemoveCellShiftsTail(t *testing.T) {
	const rowSize = 4
	n := freshLeaf()
	n.InitLeaf(0)
	for i, k := range []uint32{1, 2, 3} {
		n.InsertLeafCell(uint32(i), k, []byte{byte(k), 0, 0, 0}, rowSize)
	}
	n.RemoveLeafCell(1, rowSize)

	if n.Size() != 2 {
		t.Fatalf("expected size 2 after removal, got %d", n.Size())
	}
	if got := n.LeafKey(0, rowSize); got != 1 {
		t.Fatalf("expected key 1 at index 0, got %d", got)
	}
	if got := n.LeafKey(1, rowSize); got != 3 {
		t.Fatalf("expected key 3 at index 1, got %d", got)
	}
}

func TestInternalInsertChildAndRemoveChild(t *testing.T) {
	n := freshInternal()
	n.InitInternal(0, true)
	n.SetChildPtr(0, 100)
	n.InsertChild(0, 50, 200)
	n.InsertChild(1, 75, 300)

	if n.Size() != 2 {
		t.Fatalf("expected size 2, got %d", n.Size())
	}
	wantKeys := []uint32{50, 75}
	wantPtrs := []uint32{100, 200, 300}
	for i, k := range wantKeys {
		if got := n.SepKey(uint32(i)); got != k {
			t.Fatalf("sep key %d: expected %d, got %d", i, k, got)
		}
	}
	for i, p := range wantPtrs {
		if got := n.ChildPtr(uint32(i)); got != p {
			t.Fatalf("child ptr %d: expected %d, got %d", i, p, got)
		}
	}

	n.RemoveChild(0)
	if n.Size() != 1 {
		t.Fatalf("expected size 1 after removal, got %d", n.Size())
	}
	if got := n.SepKey(0); got != 75 {
		t.Fatalf("expected remaining sep key 75, got %d", got)
	}
	if got := n.ChildPtr(0); got != 100 {
		t.Fatalf("expected ChildPtr(0) unchanged at 100, got %d", got)
	}
	if got := n.ChildPtr(1); got != 300 {
		t.Fatalf("expected ChildPtr(1) to be 300 after removal, got %d", got)
	}
}

func TestInternalPrependAndAppendChild(t *testing.T) {
	n := freshInternal()
	n.InitInternal(0, false)
	n.SetChildPtr(0, 1)
	n.InsertChild(0, 10, 2)

	n.AppendChild(20, 3)
	if n.Size() != 2 || n.ChildPtr(2) != 3 || n.SepKey(1) != 20 {
		t.Fatalf("AppendChild did not extend tail correctly: size=%d", n.Size())
	}

	n.PrependChild(5, 0)
	if n.Size() != 3 {
		t.Fatalf("expected size 3 after prepend, got %d", n.Size())
	}
	if got := n.ChildPtr(0); got != 0 {
		t.Fatalf("expected prepended child ptr 0 at index 0, got %d", got)
	}
	if got := n.SepKey(0); got != 5 {
		t.Fatalf("expected prepended key 5 at index 0, got %d", got)
	}
	if got := n.ChildPtr(1); got != 1 {
		t.Fatalf("expected original ChildPtr(0)=1 shifted to index 1, got %d", got)
	}

	k, p := n.PopLastChild()
	if k != 20 || p != 3 {
		t.Fatalf("PopLastChild: expected (20,3), got (%d,%d)", k, p)
	}
	if n.Size() != 2 {
		t.Fatalf("expected size 2 after PopLastChild, got %d", n.Size())
	}

	k, p = n.PopFirstChild()
	if k != 5 || p != 0 {
		t.Fatalf("PopFirstChild: expected (5,0), got (%d,%d)", k, p)
	}
	if n.Size() != 1 {
		t.Fatalf("expected size 1 after PopFirstChild, got %d", n.Size())
	}
	if got := n.ChildPtr(0); got != 1 {
		t.Fatalf("expected ChildPtr(0)=1 after PopFirstChild, got %d", got)
	}
}

func TestLoadNodeRejectsUnknownTag(t *testing.T) {
	buf := make([]byte, PageSize)
	buf[0] = 0xFF
	if _, err := LoadNode(buf); err == nil {
		t.Fatalf("expected error for unknown tag")
	}
}

func TestMaxEntriesThresholds(t *testing.T) {
	if got := MaxLeafEntries(8); got <= 0 {
		t.Fatalf("expected positive leaf threshold, got %d", got)
	}
	if got := MaxInternalEntries(); got <= 0 {
		t.Fatalf("expected positive internal threshold, got %d", got)
	}
}
