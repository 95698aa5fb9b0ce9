package env

import (
	"github.com/Corvalius/ravendb/scratch"
)

func newWriteTxPool() *WriteTxPool {
	return &WriteTxPool{
		Dirty:         make(map[int64]struct{}),
		DirtyOverflow: make(map[int64]int64),
		ScratchTable:  make(map[int64]scratch.PageFromScratch),
	}
}

// Reset clears the containers for the next write transaction. The
// single-writer discipline makes this safe without locking.
func (p *WriteTxPool) Reset() {
	for k := range p.Dirty {
		delete(p.Dirty, k)
	}
	for k := range p.DirtyOverflow {
		delete(p.DirtyOverflow, k)
	}
	for k := range p.ScratchTable {
		delete(p.ScratchTable, k)
	}
}
