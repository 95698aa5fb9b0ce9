package transaction

import (
	"time"

	"github.com/Corvalius/ravendb/constant"
	"github.com/Corvalius/ravendb/errmsg"
	"github.com/Corvalius/ravendb/journal"
	"github.com/Corvalius/ravendb/page"
	"github.com/Corvalius/ravendb/sum"
)

// Header returns the transaction header, which Commit finalizes before
// the journal write; the journal fills in the payload sizes and hash
// while writing.
func (tx *LowLevel) Header() *page.TxHeader {
	return tx.header
}

// Entries materializes the dirty set as page runs backed by scratch
// memory, ready for the journal.
func (tx *LowLevel) Entries() []journal.PageEntry {
	xs := make([]journal.PageEntry, 0, len(tx.wp.ScratchTable))
	for pn, ref := range tx.wp.ScratchTable {
		xs = append(xs, journal.PageEntry{
			Number: pn,
			Run:    ref.Run,
			Data:   tx.pool.Buffer(ref.File, ref.Slot, ref.Run, tx.scratchState(ref.File)),
		})
	}
	return xs
}

// Commit publishes the transaction through the journal. It is a no-op
// for read transactions. Once the journal write has returned the
// transaction is durable; a failure after that point latches the
// environment into catastrophic failure.
func (tx *LowLevel) Commit() error {
	if tx.st == disposed {
		return errmsg.ObjectDisposed
	}
	if tx.flags == Read {
		return nil
	}
	if tx.st != open {
		return errmsg.InvalidOperation
	}
	if err := tx.e.Failed(); err != nil {
		return err
	}
	start := time.Now()
	for {
		pn, ok := tx.toFree.Pop()
		if !ok {
			break
		}
		if err := tx.FreePage(pn); err != nil {
			return err
		}
	}
	tx.header.NextPageNumber = tx.state.NextPageNumber
	tx.header.LastPageNumber = tx.state.NextPageNumber - 1
	tx.header.Root = tx.state.Root
	tx.header.MarkerBits = constant.Commit
	if tx.lazy {
		tx.header.MarkerBits |= constant.Lazy
	}
	if tx.allocated+tx.overflow > 0 || tx.jrnl.HasDataInLazyTxBuffer() {
		written, bytes, err := tx.jrnl.WriteToJournal(tx, tx.allocated+tx.overflow+1)
		if err != nil {
			return err
		}
		tx.flushedToJournal = true
		tx.stats = CommitStats{WrittenPages: written, JournalBytes: bytes}
	}
	// past this point the transaction is durable; in-memory state can
	// no longer be unwound
	if err := tx.afterDurable(); err != nil {
		tx.st = committed
		tx.e.Latch(err)
		return err
	}
	tx.stats.Duration = time.Since(start)
	tx.st = committed
	tx.e.PublishState(tx.state, tx.id)
	tx.e.NotifyAfterCommit(tx.id)
	for _, fn := range tx.onCommit {
		fn()
	}
	return nil
}

func (tx *LowLevel) afterDurable() error {
	if constant.TestMode {
		if err := tx.validatePages(); err != nil {
			return err
		}
	}
	if tx.hasHeader {
		tx.pool.Free(tx.headerRef.File, tx.headerRef.Slot, tx.id)
		tx.hasHeader = false
	}
	for _, ref := range tx.txPages {
		tx.pool.Free(ref.File, ref.Slot, tx.id)
	}
	for _, ref := range tx.unused {
		tx.pool.Free(ref.File, ref.Slot, tx.id)
	}
	tx.txPages = nil
	tx.unused = nil
	tx.fsp.CommitTransaction(tx.id)
	return nil
}

// Rollback discards the transaction: every scratch slot it allocated is
// released for immediate reuse and the environment state is untouched.
func (tx *LowLevel) Rollback() error {
	if tx.st != open || tx.flags != ReadWrite {
		return nil
	}
	if constant.TestMode {
		if err := tx.validatePages(); err != nil {
			tx.e.Latch(err)
			return err
		}
	}
	for _, ref := range tx.txPages {
		tx.pool.Free(ref.File, ref.Slot, 0)
	}
	for _, ref := range tx.unused {
		tx.pool.Free(ref.File, ref.Slot, 0)
	}
	if tx.hasHeader {
		tx.pool.Free(tx.headerRef.File, tx.headerRef.Slot, 0)
		tx.hasHeader = false
	}
	tx.txPages = nil
	tx.unused = nil
	tx.fsp.DiscardTransaction(tx.id)
	tx.jrnl.UpdateCacheForJournalSnapshots()
	tx.cacheFile, tx.cacheState = -1, nil
	tx.st = rolledBack
	return nil
}

// Dispose is idempotent. An open write transaction is rolled back
// first.
func (tx *LowLevel) Dispose() {
	if tx.st == disposed {
		return
	}
	if tx.st == open && tx.flags == ReadWrite {
		tx.Rollback()
	}
	if tx.wp != nil {
		tx.wp.Reset()
	}
	tx.e.Deregister(tx.id)
	tx.e.NotifyCompleted(tx.id, tx.st == committed)
	tx.releaseStates()
	tx.st = disposed
	for _, fn := range tx.onDispose {
		fn()
	}
}

// validatePages recomputes the hash of every page this transaction read
// but did not modify, catching out-of-transaction mutation.
func (tx *LowLevel) validatePages() error {
	for pn, h := range tx.hashes {
		if _, ok := tx.freed[pn]; ok {
			continue
		}
		if _, ok := tx.wp.Dirty[pn]; ok {
			continue
		}
		if pg, ok := tx.jrnl.ReadPage(tx, pn, tx.scratchStates); ok {
			if sum.Sum(pg.Buffer()) != h {
				return errmsg.ReadFailed
			}
			continue
		}
		pg, err := tx.pgr.ReadPage(tx.dataState, pn)
		if err != nil {
			return err
		}
		if sum.Sum(pg.Buffer()) != h {
			return errmsg.ReadFailed
		}
	}
	return nil
}
