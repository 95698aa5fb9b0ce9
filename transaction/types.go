package transaction

import (
	"time"

	"github.com/Corvalius/ravendb/env"
	"github.com/Corvalius/ravendb/freespace"
	"github.com/Corvalius/ravendb/journal"
	"github.com/Corvalius/ravendb/page"
	"github.com/Corvalius/ravendb/pager"
	"github.com/Corvalius/ravendb/scratch"
	"github.com/Corvalius/ravendb/stack"
	"github.com/nnsgmsone/damrey/logger"
)

type Flags int

const (
	Read Flags = iota
	ReadWrite
)

type txState int

const (
	open txState = iota
	committed
	rolledBack
	disposed
)

type CommitStats struct {
	WrittenPages int64
	JournalBytes int64
	Duration     time.Duration
}

// LowLevel is the core transaction engine: per-transaction state, page
// read/modify/allocate/free, commit, rollback and snapshot isolation.
type LowLevel struct {
	e     *env.Env
	id    int64
	flags Flags
	st    txState
	lazy  bool

	pgr  pager.Pager
	pool scratch.Pool
	jrnl journal.Journal
	fsp  freespace.Handler
	log  logger.Log

	state         env.State
	snaps         []*journal.Snapshot
	dataState     *pager.State
	scratchStates map[int64]*pager.State
	extraStates   []*pager.State

	// borrowed from the environment's write transaction pool
	wp *env.WriteTxPool

	freed   map[int64]struct{}
	unused  []scratch.PageFromScratch
	txPages map[int64]scratch.PageFromScratch
	toFree  stack.Stack

	header    *page.TxHeader
	headerRef scratch.PageFromScratch
	hasHeader bool

	allocated        int64
	overflow         int64
	flushedToJournal bool
	stats            CommitStats

	// one-element cache over the scratch pager-state map
	cacheFile  int64
	cacheState *pager.State

	// read-only page hashes, maintained in test mode
	hashes map[int64]uint64

	onCommit  []func()
	onDispose []func()
}
