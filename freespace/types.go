package freespace

import (
	"sync"

	"github.com/google/btree"
)

// Tx is the slice of a transaction the handler needs.
type Tx interface {
	ID() int64
}

type Handler interface {
	TryAllocateFromFreeSpace(tx Tx, n int64) (int64, bool)
	FreePage(tx Tx, pn int64)
	CommitTransaction(txId int64)
	DiscardTransaction(txId int64)
	SetSafeTransaction(txId int64)
	Len() int
}

type run struct {
	first int64
	n     int64
	tx    int64 // freeing transaction
}

func (r *run) Less(than btree.Item) bool {
	return r.first < than.(*run).first
}

type handler struct {
	sync.Mutex
	safe  int64 // newest transaction whose frees are reusable
	bt    *btree.BTree
	taken map[int64][]*run // runs handed out, by taking transaction
}
