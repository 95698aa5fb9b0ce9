package db

import (
	"time"

	"github.com/Corvalius/ravendb/env"
	"github.com/Corvalius/ravendb/freespace"
	"github.com/Corvalius/ravendb/journal"
	"github.com/Corvalius/ravendb/page"
	"github.com/Corvalius/ravendb/pager"
	"github.com/Corvalius/ravendb/scratch"
	"github.com/nnsgmsone/damrey/logger"
)

// flusher copies committed journal pages back to the data file in the
// background, never past the oldest live transaction, then lets the
// journal and scratch pool reclaim what is covered.
type flusher struct {
	cycle   time.Duration
	flushed int64
	ch      chan struct{}
	e       *env.Env
	pgr     pager.Pager
	jrnl    journal.Journal
	pool    scratch.Pool
	fsp     freespace.Handler
	log     logger.Log
}

func newFlusher(cycle time.Duration, flushed int64, e *env.Env, pgr pager.Pager, jrnl journal.Journal, pool scratch.Pool, fsp freespace.Handler, log logger.Log) *flusher {
	return &flusher{
		e:       e,
		log:     log,
		pgr:     pgr,
		fsp:     fsp,
		pool:    pool,
		jrnl:    jrnl,
		cycle:   cycle,
		flushed: flushed,
		ch:      make(chan struct{}),
	}
}

func (f *flusher) Run() {
	ticker := time.NewTicker(f.cycle)
	defer ticker.Stop()
	for {
		select {
		case <-f.ch:
			f.flush()
			f.ch <- struct{}{}
			return
		case <-ticker.C:
			f.flush()
		}
	}
}

func (f *flusher) Stop() {
	f.ch <- struct{}{}
	<-f.ch
}

func (f *flusher) flush() {
	if f.e.Failed() != nil {
		return
	}
	upTo := f.e.OldestActiveTransaction() - 1
	if last := f.e.LastCommitted(); upTo > last {
		upTo = last
	}
	if upTo <= f.flushed {
		return
	}
	entries, rec := f.jrnl.CollectFlush(f.flushed, upTo)
	for _, en := range entries {
		if err := f.write(en); err != nil {
			f.e.Latch(err)
			f.log.Fatalf("flush of page %v failed: %v\n", en.Number, err)
			return
		}
	}
	if len(entries) > 0 {
		if rec != nil {
			f.pgr.SetHeaderState(rec.LastTxId, rec.NextPageNumber, rec.Root)
		}
		if err := f.pgr.Sync(); err != nil {
			f.e.Latch(err)
			f.log.Fatalf("data file sync failed: %v\n", err)
			return
		}
	}
	f.flushed = upTo
	f.pool.SetFlushedTransaction(upTo)
	f.fsp.SetSafeTransaction(upTo)
	f.jrnl.TruncateFlushed(f.flushed, f.e.OldestActiveTransaction())
}

func (f *flusher) write(en journal.PageEntry) error {
	if err := f.pgr.EnsureCapacity(en.Number + en.Run - 1); err != nil {
		return err
	}
	return f.pgr.WritePage(page.New(en.Data))
}
