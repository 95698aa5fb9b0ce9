package scratch

import (
	"sync"

	"github.com/Corvalius/ravendb/page"
	"github.com/Corvalius/ravendb/pager"
)

// PageFromScratch identifies a copy-on-write slot: a contiguous run of
// page slots inside one anonymous scratch file.
type PageFromScratch struct {
	File        int64
	Slot        int64
	Run         int64
	OriginalRun int64
	Previous    int64 // page number of the previous version, -1 for none
}

type Pool interface {
	Close() error

	Allocate(txId, n int64) (PageFromScratch, error)
	Free(file, slot, txId int64)
	ReadPage(file, slot int64, s *pager.State) page.Page
	Buffer(file, slot, n int64, s *pager.State) []byte
	BreakLargeAllocationToSeparatePages(ref PageFromScratch) []PageFromScratch
	EnsureMapped(file, slot, n int64) error
	GetPagerStatesOfAllScratches() map[int64]*pager.State

	SetFlushedTransaction(txId int64)
	InUse() int64
}

type file struct {
	id    int64
	cap   int64 // capacity in pages
	next  int64 // bump position in pages
	state *pager.State
	alloc map[int64]int64   // slot -> run
	free  map[int64][]int64 // run -> slots
}

type pendingFree struct {
	file int64
	slot int64
	run  int64
	tx   int64
}

type pool struct {
	sync.Mutex
	pageSize int64
	fileSize int64
	maxFiles int
	inUse    int64 // live slots, in pages
	flushed  int64 // flushed transaction watermark
	fs       []*file
	pending  []pendingFree
	oldest   func() int64 // oldest active transaction id
}
