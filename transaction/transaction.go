package transaction

import (
	"time"

	"github.com/Corvalius/ravendb/constant"
	"github.com/Corvalius/ravendb/env"
	"github.com/Corvalius/ravendb/errmsg"
	"github.com/Corvalius/ravendb/freespace"
	"github.com/Corvalius/ravendb/journal"
	"github.com/Corvalius/ravendb/page"
	"github.com/Corvalius/ravendb/pager"
	"github.com/Corvalius/ravendb/scratch"
	"github.com/Corvalius/ravendb/stack"
	"github.com/Corvalius/ravendb/sum"
	"github.com/nnsgmsone/damrey/logger"
)

var (
	_ journal.Tx       = (*LowLevel)(nil)
	_ journal.CommitTx = (*LowLevel)(nil)
	_ freespace.Tx     = (*LowLevel)(nil)
)

func New(e *env.Env, id int64, flags Flags, pgr pager.Pager, pool scratch.Pool, jrnl journal.Journal, fsp freespace.Handler, log logger.Log) (*LowLevel, error) {
	if err := e.Failed(); err != nil {
		return nil, err
	}
	tx := &LowLevel{
		e:         e,
		id:        id,
		log:       log,
		pgr:       pgr,
		fsp:       fsp,
		pool:      pool,
		jrnl:      jrnl,
		flags:     flags,
		cacheFile: -1,
		state:     e.CloneState(),
	}
	for {
		st := pgr.State()
		if st.Acquire() {
			tx.dataState = st
			break
		}
	}
	tx.scratchStates = make(map[int64]*pager.State)
	for fid, st := range pool.GetPagerStatesOfAllScratches() {
		if st.Acquire() {
			tx.scratchStates[fid] = st
		}
	}
	tx.snaps = jrnl.GetSnapshots()
	if flags == Read {
		e.Register(id)
		return tx, nil
	}
	if constant.TestMode {
		if jrnl.HasTransactionsAtOrAbove(id) {
			tx.releaseStates()
			e.Latch(errmsg.DuplicateTransactionId)
			return nil, errmsg.DuplicateTransactionId
		}
		tx.hashes = make(map[int64]uint64)
	}
	tx.wp = e.WritePool()
	tx.wp.Reset()
	tx.freed = make(map[int64]struct{})
	tx.txPages = make(map[int64]scratch.PageFromScratch)
	tx.toFree = stack.New()
	if err := tx.initTransactionHeader(); err != nil {
		tx.releaseStates()
		return nil, err
	}
	e.Register(id)
	return tx, nil
}

func (tx *LowLevel) initTransactionHeader() error {
	ref, err := tx.pool.Allocate(tx.id, 1)
	if err != nil {
		return err
	}
	buf := tx.pool.Buffer(ref.File, ref.Slot, 1, tx.scratchState(ref.File))
	for i := range buf {
		buf[i] = 0
	}
	tx.header = &page.TxHeader{
		Marker:         constant.TxHeaderMarker,
		Id:             tx.id,
		NextPageNumber: tx.state.NextPageNumber,
		TimeStamp:      time.Now().UTC().UnixNano(),
		Root:           tx.state.Root,
	}
	tx.header.Encode(buf)
	tx.headerRef = ref
	tx.hasHeader = true
	return nil
}

func (tx *LowLevel) ID() int64 {
	return tx.id
}

func (tx *LowLevel) Flags() Flags {
	return tx.flags
}

func (tx *LowLevel) Lazy() bool {
	return tx.lazy
}

// SetLazy makes the commit append to the journal without syncing it;
// durability is deferred to the next durable commit.
func (tx *LowLevel) SetLazy() {
	tx.lazy = true
}

func (tx *LowLevel) Snapshots() []*journal.Snapshot {
	return tx.snaps
}

func (tx *LowLevel) NextPageNumber() int64 {
	return tx.state.NextPageNumber
}

func (tx *LowLevel) Root() page.TreeHeader {
	return tx.state.Root
}

func (tx *LowLevel) SetRoot(h page.TreeHeader) {
	tx.state.Root = h
}

func (tx *LowLevel) Stats() CommitStats {
	return tx.stats
}

func (tx *LowLevel) AllocatedPagesInTransaction() int64 {
	return tx.allocated
}

func (tx *LowLevel) OverflowPagesInTransaction() int64 {
	return tx.overflow
}

func (tx *LowLevel) OnCommit(fn func()) {
	tx.onCommit = append(tx.onCommit, fn)
}

func (tx *LowLevel) OnDispose(fn func()) {
	tx.onDispose = append(tx.onDispose, fn)
}

// GetPage resolves a page number through the transaction's scratch
// table, then the journal snapshot, then the data file.
func (tx *LowLevel) GetPage(pn int64) (page.Page, error) {
	if tx.st == disposed {
		return page.Page{}, errmsg.ObjectDisposed
	}
	if tx.wp != nil {
		if ref, ok := tx.wp.ScratchTable[pn]; ok {
			pg := tx.pool.ReadPage(ref.File, ref.Slot, tx.scratchState(ref.File))
			return tx.checked(pg, pn)
		}
	}
	if pg, ok := tx.jrnl.ReadPage(tx, pn, tx.scratchStates); ok {
		tx.recordHash(pn, pg)
		return tx.checked(pg, pn)
	}
	pg, err := tx.pgr.ReadPage(tx.dataState, pn)
	if err != nil {
		return page.Page{}, err
	}
	tx.recordHash(pn, pg)
	return tx.checked(pg, pn)
}

func (tx *LowLevel) checked(pg page.Page, pn int64) (page.Page, error) {
	if constant.TestMode && pg.PageNumber() != pn {
		tx.e.Latch(errmsg.ReadFailed)
		return page.Page{}, errmsg.ReadFailed
	}
	return pg, nil
}

func (tx *LowLevel) recordHash(pn int64, pg page.Page) {
	if tx.hashes == nil {
		return
	}
	if _, ok := tx.hashes[pn]; !ok {
		tx.hashes[pn] = sum.Sum(pg.Buffer())
	}
}

// scratchState resolves a scratch file's pinned pager state through a
// one-element cache; repeated lookups in the same file are the common
// case.
func (tx *LowLevel) scratchState(file int64) *pager.State {
	if tx.cacheFile == file && tx.cacheState != nil {
		return tx.cacheState
	}
	st, ok := tx.scratchStates[file]
	if !ok {
		// the file was created after this transaction began
		for fid, s := range tx.pool.GetPagerStatesOfAllScratches() {
			if _, held := tx.scratchStates[fid]; !held && s.Acquire() {
				tx.scratchStates[fid] = s
			}
		}
		st = tx.scratchStates[file]
	}
	tx.cacheFile, tx.cacheState = file, st
	return st
}

// EnsurePagerStateReference pins an additional pager state for the
// transaction's lifetime; it is released on dispose.
func (tx *LowLevel) EnsurePagerStateReference(st *pager.State) {
	for _, held := range tx.extraStates {
		if held == st {
			return
		}
	}
	if st.Acquire() {
		tx.extraStates = append(tx.extraStates, st)
	}
}

func (tx *LowLevel) releaseStates() {
	for _, st := range tx.scratchStates {
		st.Release()
	}
	tx.scratchStates = nil
	for _, st := range tx.extraStates {
		st.Release()
	}
	tx.extraStates = nil
	if tx.dataState != nil {
		tx.dataState.Release()
		tx.dataState = nil
	}
	tx.jrnl.ReleaseSnapshots(tx.snaps)
	tx.snaps = nil
}
