package transaction

import (
	"github.com/Corvalius/ravendb/constant"
	"github.com/Corvalius/ravendb/errmsg"
	"github.com/Corvalius/ravendb/page"
)

// ModifyPage copies a page into scratch exactly once per transaction
// and returns the writable copy under the same logical page number.
func (tx *LowLevel) ModifyPage(pn int64) (page.Page, error) {
	if err := tx.writable(); err != nil {
		return page.Page{}, err
	}
	if _, ok := tx.wp.Dirty[pn]; ok {
		ref := tx.wp.ScratchTable[pn]
		return tx.pool.ReadPage(ref.File, ref.Slot, tx.scratchState(ref.File)), nil
	}
	old, err := tx.GetPage(pn)
	if err != nil {
		return page.Page{}, err
	}
	n := int64(1)
	if old.IsOverflow() {
		n = page.NumberOfPages(int64(old.OverflowSize()), tx.pgr.PageSize())
	}
	pg, err := tx.allocatePage(n, pn, pn, false, false)
	if err != nil {
		return page.Page{}, err
	}
	copy(pg.Buffer(), old.Buffer())
	if tx.hashes != nil {
		delete(tx.hashes, pn)
	}
	return pg, nil
}

// AllocatePage allocates a run of n pages, reusing free space before
// growing the tail.
func (tx *LowLevel) AllocatePage(n int64) (page.Page, error) {
	return tx.allocatePage(n, -1, -1, true, false)
}

// AllocateOverflowRawPage allocates an overflow run large enough for
// byteCount bytes.
func (tx *LowLevel) AllocateOverflowRawPage(byteCount int64) (page.Page, error) {
	if byteCount <= 0 || byteCount > constant.MaxOverflowSize {
		return page.Page{}, errmsg.InvalidAllocation
	}
	n := tx.pgr.GetNumberOfOverflowPages(byteCount)
	pg, err := tx.allocatePage(n, -1, -1, true, false)
	if err != nil {
		return page.Page{}, err
	}
	pg.SetFlags(constant.Overflow)
	pg.SetOverflowSize(uint32(byteCount))
	return pg, nil
}

// AllocatePages allocates one contiguous run covering every requested
// size and returns a handle per size, in order. When total is zero it
// is computed as the sum of the sizes.
func (tx *LowLevel) AllocatePages(sizes []int64, total int64) ([]page.Page, error) {
	if err := tx.writable(); err != nil {
		return nil, err
	}
	var need int64
	for _, n := range sizes {
		if n <= 0 {
			return nil, errmsg.InvalidAllocation
		}
		need += n
	}
	if total == 0 {
		total = need
	}
	if need != total {
		return nil, errmsg.InvalidAllocation
	}
	pgs := make([]page.Page, 0, len(sizes))
	for _, n := range sizes {
		pg, err := tx.allocatePage(n, -1, -1, true, true)
		if err != nil {
			return nil, err
		}
		pgs = append(pgs, pg)
	}
	return pgs, nil
}

func (tx *LowLevel) allocatePage(n, pageNumber, previous int64, zero, tail bool) (page.Page, error) {
	if err := tx.writable(); err != nil {
		return page.Page{}, err
	}
	if n <= 0 {
		return page.Page{}, errmsg.InvalidAllocation
	}
	pn := pageNumber
	if pn < 0 {
		if !tail {
			if v, ok := tx.fsp.TryAllocateFromFreeSpace(tx, n); ok {
				pn = v
			}
		}
		if pn < 0 {
			pn = tx.state.NextPageNumber
		}
	}
	if max := tx.pgr.MaxStorageSize(); max > 0 && (pn+n-1)*tx.pgr.PageSize() > max {
		return page.Page{}, errmsg.QuotaExceeded
	}
	ref, err := tx.pool.Allocate(tx.id, n)
	if err != nil {
		return page.Page{}, err
	}
	ref.Previous = previous
	if pageNumber < 0 && pn == tx.state.NextPageNumber {
		tx.state.NextPageNumber += n
	}
	tx.txPages[pn] = ref
	tx.allocated++
	if n > 1 {
		tx.overflow += n - 1
	}
	tx.wp.ScratchTable[pn] = ref
	tx.wp.Dirty[pn] = struct{}{}
	if n > 1 {
		tx.wp.DirtyOverflow[pn+1] = n - 1
		if err := tx.pool.EnsureMapped(ref.File, ref.Slot, n); err != nil {
			return page.Page{}, err
		}
	}
	buf := tx.pool.Buffer(ref.File, ref.Slot, n, tx.scratchState(ref.File))
	if zero {
		for i := range buf {
			buf[i] = 0
		}
	}
	pg := page.New(buf)
	pg.SetPageNumber(pn)
	switch {
	case n > 1:
		pg.SetFlags(constant.Overflow)
		pg.SetOverflowSize(uint32(n * tx.pgr.PageSize()))
	default:
		pg.SetFlags(constant.Single)
		pg.SetOverflowSize(0)
	}
	return pg, nil
}

// BreakLargeAllocationToSeparatePages rewrites an overflow run that was
// allocated in this transaction as independent single pages over the
// same scratch bytes.
func (tx *LowLevel) BreakLargeAllocationToSeparatePages(pn int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	ref, ok := tx.txPages[pn]
	if !ok || ref.Run <= 1 {
		return errmsg.InvalidOperation
	}
	refs := tx.pool.BreakLargeAllocationToSeparatePages(ref)
	delete(tx.wp.DirtyOverflow, pn+1)
	for i := int64(0); i < ref.Run; i++ {
		p := pn + i
		tx.txPages[p] = refs[i]
		tx.wp.ScratchTable[p] = refs[i]
		tx.wp.Dirty[p] = struct{}{}
		pg := page.New(tx.pool.Buffer(refs[i].File, refs[i].Slot, 1, tx.scratchState(refs[i].File)))
		pg.SetPageNumber(p)
		pg.SetFlags(constant.Single)
		pg.SetOverflowSize(0)
	}
	tx.allocated += ref.Run - 1
	tx.overflow -= ref.Run - 1
	return nil
}

// FreePage eagerly releases a page. Pages freed this way remain
// readable through GetPage for the rest of the transaction only if they
// were not allocated by it.
func (tx *LowLevel) FreePage(pn int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	tx.freed[pn] = struct{}{}
	tx.fsp.FreePage(tx, pn)
	if n, ok := tx.wp.DirtyOverflow[pn]; ok {
		delete(tx.wp.DirtyOverflow, pn)
		if n > 1 {
			tx.wp.DirtyOverflow[pn+1] = n - 1
		}
	}
	if ref, ok := tx.wp.ScratchTable[pn]; ok {
		delete(tx.txPages, pn)
		delete(tx.wp.ScratchTable, pn)
		delete(tx.wp.Dirty, pn)
		if ref.Run > 1 {
			delete(tx.wp.DirtyOverflow, pn+1)
			tx.overflow -= ref.Run - 1
		}
		tx.allocated--
		// other code paths in this transaction may still hold the
		// pointer; the slot goes back to the pool at commit or
		// rollback, never mid-transaction
		tx.unused = append(tx.unused, ref)
	}
	if tx.hashes != nil {
		delete(tx.hashes, pn)
	}
	return nil
}

// FreePageOnCommit defers the free to commit time, so the page stays
// valid for reads made earlier in the same transaction.
func (tx *LowLevel) FreePageOnCommit(pn int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	tx.toFree.Push(pn)
	return nil
}

func (tx *LowLevel) writable() error {
	switch {
	case tx.st == disposed:
		return errmsg.ObjectDisposed
	case tx.st != open:
		return errmsg.InvalidOperation
	case tx.flags != ReadWrite:
		return errmsg.ReadOnlyTransaction
	}
	if err := tx.e.Failed(); err != nil {
		return err
	}
	return nil
}
