package freespace

import "testing"

type fakeTx int64

func (f fakeTx) ID() int64 { return int64(f) }

func TestFreeThenAllocate(t *testing.T) {
	h := New()
	h.FreePage(fakeTx(1), 10)
	h.CommitTransaction(1)

	// not durable yet
	if _, ok := h.TryAllocateFromFreeSpace(fakeTx(2), 1); ok {
		t.Fatal("reused a page before its free was durable")
	}
	h.SetSafeTransaction(1)
	pn, ok := h.TryAllocateFromFreeSpace(fakeTx(2), 1)
	if !ok || pn != 10 {
		t.Fatalf("got %v %v", pn, ok)
	}
	// gone now
	if _, ok := h.TryAllocateFromFreeSpace(fakeTx(2), 1); ok {
		t.Fatal("allocated the same page twice")
	}
}

func TestContiguousRuns(t *testing.T) {
	h := New()
	for _, pn := range []int64{5, 6, 7, 9} {
		h.FreePage(fakeTx(1), pn)
	}
	h.CommitTransaction(1)
	h.SetSafeTransaction(1)

	pn, ok := h.TryAllocateFromFreeSpace(fakeTx(2), 3)
	if !ok || pn != 5 {
		t.Fatalf("got %v %v", pn, ok)
	}
	// 9 is still there, 5..7 are not
	pn, ok = h.TryAllocateFromFreeSpace(fakeTx(2), 1)
	if !ok || pn != 9 {
		t.Fatalf("got %v %v", pn, ok)
	}
	if _, ok := h.TryAllocateFromFreeSpace(fakeTx(2), 2); ok {
		t.Fatal("no contiguous pair should remain")
	}
}

func TestOwnFreesNotReusable(t *testing.T) {
	h := New()
	h.SetSafeTransaction(5)
	h.FreePage(fakeTx(6), 3)
	if _, ok := h.TryAllocateFromFreeSpace(fakeTx(6), 1); ok {
		t.Fatal("a transaction reused its own free")
	}
}

func TestDiscardTransaction(t *testing.T) {
	h := New()
	h.FreePage(fakeTx(1), 4)
	h.CommitTransaction(1)
	h.SetSafeTransaction(1)

	// tx 2 frees a page and takes one, then rolls back
	h.FreePage(fakeTx(2), 8)
	pn, ok := h.TryAllocateFromFreeSpace(fakeTx(2), 1)
	if !ok || pn != 4 {
		t.Fatalf("got %v %v", pn, ok)
	}
	h.DiscardTransaction(2)

	// the taken page is back, the rolled-back free is gone
	pn, ok = h.TryAllocateFromFreeSpace(fakeTx(3), 1)
	if !ok || pn != 4 {
		t.Fatalf("got %v %v", pn, ok)
	}
	if _, ok := h.TryAllocateFromFreeSpace(fakeTx(3), 1); ok {
		t.Fatal("rolled-back free survived")
	}
}

func TestRunSplit(t *testing.T) {
	h := New()
	for pn := int64(20); pn < 25; pn++ {
		h.FreePage(fakeTx(1), pn)
	}
	h.CommitTransaction(1)
	h.SetSafeTransaction(1)

	pn, ok := h.TryAllocateFromFreeSpace(fakeTx(2), 2)
	if !ok || pn != 20 {
		t.Fatalf("got %v %v", pn, ok)
	}
	pn, ok = h.TryAllocateFromFreeSpace(fakeTx(2), 3)
	if !ok || pn != 22 {
		t.Fatalf("remainder not reusable: %v %v", pn, ok)
	}
}
