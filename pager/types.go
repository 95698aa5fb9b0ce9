package pager

import (
	"os"
	"sync"

	"github.com/Corvalius/ravendb/page"
	"github.com/google/uuid"
)

const (
	InitPages = 64
)

// Pager maps the data file and serves read-only pages by number. Writes
// go through the background flusher only.
type Pager interface {
	Close() error
	Sync() error

	PageSize() int64
	MaxStorageSize() int64
	NumberOfAllocatedPages() int64
	EnvironmentId() uuid.UUID

	State() *State
	ReadPage(s *State, pn int64) (page.Page, error)
	WritePage(p page.Page) error
	EnsureCapacity(pn int64) error
	GetNumberOfOverflowPages(byteCount int64) int64

	HeaderState() (lastTx, nextPage int64, root page.TreeHeader)
	SetHeaderState(lastTx, nextPage int64, root page.TreeHeader)
}

type pager struct {
	sync.Mutex
	pageSize int64
	max      int64 // max storage size, 0 for unlimited
	size     int64 // mapped bytes
	fp       *os.File
	st       *State
	envId    uuid.UUID
	fatal    func(error)
}
