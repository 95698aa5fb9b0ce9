package env

import (
	"sync"
	"sync/atomic"

	"github.com/Corvalius/ravendb/page"
	"github.com/Corvalius/ravendb/scratch"
	"github.com/google/uuid"
	"github.com/nnsgmsone/damrey/logger"
)

// State is the environment-wide state cloned into every transaction at
// begin and published atomically at commit.
type State struct {
	NextPageNumber int64
	Root           page.TreeHeader
}

// WriteTxPool holds the reusable containers of the single active write
// transaction. One writer at a time means one pool per environment.
type WriteTxPool struct {
	Dirty         map[int64]struct{}
	DirtyOverflow map[int64]int64
	ScratchTable  map[int64]scratch.PageFromScratch
}

type element struct {
	n  int // reference count
	id int64
}

// registry tracks active transaction ids and answers the oldest one.
type registry struct {
	sync.Mutex
	xs []*element
	mp map[int64]*element
}

type Env struct {
	id     uuid.UUID
	txId   int64 // last issued write transaction id
	lastId int64 // last committed transaction id
	writer sync.Mutex
	reg    *registry
	pool   *WriteTxPool

	failure atomic.Value // latched catastrophic error

	stateMu sync.Mutex
	state   State

	log logger.Log

	hookMu        sync.Mutex
	onCompleted   []func(txId int64, committed bool)
	onAfterCommit []func(txId int64)
}
