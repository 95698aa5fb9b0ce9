package freespace

import (
	"github.com/google/btree"
)

const (
	Degree = 32
)

func New() *handler {
	return &handler{
		bt:    btree.New(Degree),
		taken: make(map[int64][]*run),
	}
}

// TryAllocateFromFreeSpace returns the lowest contiguous run of n freed
// pages that is safe to reuse, removing it from the index. The take is
// provisional until the transaction commits.
func (h *handler) TryAllocateFromFreeSpace(tx Tx, n int64) (int64, bool) {
	h.Lock()
	defer h.Unlock()
	var found []*run
	var total int64
	h.bt.Ascend(func(i btree.Item) bool {
		r := i.(*run)
		if r.tx > h.safe || r.tx >= tx.ID() {
			found, total = found[:0], 0
			return true
		}
		if len(found) > 0 {
			last := found[len(found)-1]
			if last.first+last.n != r.first {
				found, total = found[:0], 0
			}
		}
		found = append(found, r)
		total += r.n
		return total < n
	})
	if total < n {
		return 0, false
	}
	first := found[0].first
	for _, r := range found {
		h.bt.Delete(r)
	}
	if rest := total - n; rest > 0 {
		last := found[len(found)-1]
		h.bt.ReplaceOrInsert(&run{first: first + n, n: rest, tx: last.tx})
	}
	h.taken[tx.ID()] = append(h.taken[tx.ID()], &run{first: first, n: n, tx: tx.ID()})
	return first, true
}

// FreePage records a page freed by tx; it becomes reusable once the
// freeing transaction is durable.
func (h *handler) FreePage(tx Tx, pn int64) {
	h.Lock()
	defer h.Unlock()
	h.bt.ReplaceOrInsert(&run{first: pn, n: 1, tx: tx.ID()})
}

// CommitTransaction settles a transaction's provisional takes.
func (h *handler) CommitTransaction(txId int64) {
	h.Lock()
	defer h.Unlock()
	delete(h.taken, txId)
}

// DiscardTransaction undoes a rolled-back transaction: its frees are
// withdrawn and its takes returned to the index.
func (h *handler) DiscardTransaction(txId int64) {
	h.Lock()
	defer h.Unlock()
	var drop []*run
	h.bt.Ascend(func(i btree.Item) bool {
		if r := i.(*run); r.tx == txId {
			drop = append(drop, r)
		}
		return true
	})
	for _, r := range drop {
		h.bt.Delete(r)
	}
	for _, r := range h.taken[txId] {
		h.bt.ReplaceOrInsert(&run{first: r.first, n: r.n, tx: 0})
	}
	delete(h.taken, txId)
}

func (h *handler) SetSafeTransaction(txId int64) {
	h.Lock()
	defer h.Unlock()
	if txId > h.safe {
		h.safe = txId
	}
}

func (h *handler) Len() int {
	h.Lock()
	defer h.Unlock()
	return h.bt.Len()
}
