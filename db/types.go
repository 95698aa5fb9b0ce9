package db

import (
	"io"
	"time"

	"github.com/Corvalius/ravendb/env"
	"github.com/Corvalius/ravendb/freespace"
	"github.com/Corvalius/ravendb/journal"
	"github.com/Corvalius/ravendb/pager"
	"github.com/Corvalius/ravendb/scratch"
	"github.com/Corvalius/ravendb/transaction"
	"github.com/Corvalius/ravendb/tree"
	"github.com/nnsgmsone/damrey/logger"
)

/*
DB is a transactional page store rooted in one directory: a memory-mapped
data file, a write-ahead journal and a pool of scratch buffers. One write
transaction at a time; any number of concurrent snapshot readers.
*/
type DB interface {
	Close() error

	NewTransaction(flags transaction.Flags) (*Transaction, error)
	NewLowLevelTransaction(flags transaction.Flags) (*transaction.LowLevel, error)

	Update(fn func(*Transaction) error) error
	View(fn func(*Transaction) error) error

	Environment() *env.Env
}

type Config struct {
	DirName         string
	PageSize        int64
	MaxStorageSize  int64
	ScratchFileSize int64
	MaxScratchFiles int
	JournalFileSize int64
	CompressJournal bool
	CacheSize       int64
	FlushCycle      time.Duration
	LogWriter       io.Writer
}

// Participant takes part in a high-level commit; PrepareForCommit runs
// before the low-level commit is attempted.
type Participant interface {
	PrepareForCommit(tx *Transaction) error
}

// Transaction is a thin envelope over a low-level transaction holding
// the named subtrees opened in one unit of work.
type Transaction struct {
	ll           *transaction.LowLevel
	dir          *tree.Directory
	trees        map[string]*tree.Tree
	participants []Participant
}

type db struct {
	cfg  Config
	e    *env.Env
	pgr  pager.Pager
	pool scratch.Pool
	jrnl journal.Journal
	fsp  freespace.Handler
	fl   *flusher
	log  logger.Log
}
