package journal

import (
	"sync"

	"github.com/Corvalius/ravendb/page"
	"github.com/Corvalius/ravendb/pager"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"github.com/nnsgmsone/damrey/logger"
)

const (
	FileHeaderSize = 32
	TableEntrySize = 12
)

// Tx is the slice of a transaction the journal needs to serve reads.
type Tx interface {
	ID() int64
	Snapshots() []*Snapshot
}

// CommitTx is the slice of a write transaction the journal needs to
// persist it.
type CommitTx interface {
	ID() int64
	Lazy() bool
	Header() *page.TxHeader
	Entries() []PageEntry
}

// PageEntry is one dirty page run handed to WriteToJournal, and one
// flushable page run handed back to the data-file flusher.
type PageEntry struct {
	Number int64
	Run    int64
	Data   []byte
}

type Journal interface {
	Close() error

	WriteToJournal(tx CommitTx, totalPages int64) (int64, int64, error)
	ReadPage(tx Tx, pn int64, states map[int64]*pager.State) (page.Page, bool)
	GetSnapshots() []*Snapshot
	ReleaseSnapshots([]*Snapshot)
	UpdateCacheForJournalSnapshots()

	HasDataInLazyTxBuffer() bool
	HasTransactionsAtOrAbove(txId int64) bool

	CollectFlush(from, to int64) ([]PageEntry, *Recovered)
	TruncateFlushed(flushed, oldest int64)
}

// Snapshot freezes one journal file's page-translation table at the
// moment of the call: only versions with id <= max are visible through
// it.
type Snapshot struct {
	f   *jfile
	max int64
}

type version struct {
	tx  int64
	off int64 // file offset of the transaction header page
	idx int64 // page index within the uncompressed payload
	run int64
}

type jfile struct {
	sync.RWMutex
	id     int64
	path   string
	cap    int64
	size   int64
	lastTx int64
	state  *pager.State
	mp     map[int64][]version
}

// Recovered is the environment state rebuilt from the journal tail on
// open.
type Recovered struct {
	NextPageNumber int64
	LastTxId       int64
	Root           page.TreeHeader
}

type journal struct {
	sync.Mutex
	dir       string
	pageSize  int64
	fileSize  int64
	compress  bool
	envId     uuid.UUID
	fs        []*jfile
	curr      *jfile
	hasLazy   bool // one-way latch
	lazyDirty bool
	cache     *ristretto.Cache[string, []byte]
	log       logger.Log
}
