package env

import (
	"io"
	"testing"

	"github.com/Corvalius/ravendb/errmsg"
	"github.com/Corvalius/ravendb/scratch"
	"github.com/google/uuid"
	"github.com/nnsgmsone/damrey/logger"
)

func newTestEnv() *Env {
	return New(uuid.New(), State{NextPageNumber: 1}, 0, logger.New(io.Discard, "test"))
}

func TestTransactionIdsAreMonotonic(t *testing.T) {
	e := newTestEnv()
	prev := int64(0)
	for i := 0; i < 100; i++ {
		id := e.NextTransactionId()
		if id <= prev {
			t.Fatalf("id %v after %v", id, prev)
		}
		prev = id
	}
}

func TestOldestActiveTransaction(t *testing.T) {
	e := newTestEnv()
	if got := e.OldestActiveTransaction(); got != 1 {
		t.Fatalf("idle oldest %v", got)
	}
	e.Register(3)
	e.Register(5)
	e.Register(3) // second reader on the same id
	if got := e.OldestActiveTransaction(); got != 3 {
		t.Fatalf("oldest %v", got)
	}
	e.Deregister(3)
	if got := e.OldestActiveTransaction(); got != 3 {
		t.Fatalf("oldest after one deregister %v", got)
	}
	e.Deregister(3)
	if got := e.OldestActiveTransaction(); got != 5 {
		t.Fatalf("oldest %v", got)
	}
	e.Deregister(5)
	if got := e.OldestActiveTransaction(); got != 1 {
		t.Fatalf("idle oldest %v", got)
	}
}

func TestCatastrophicLatch(t *testing.T) {
	e := newTestEnv()
	if e.Failed() != nil {
		t.Fatal("fresh environment failed")
	}
	e.Latch(errmsg.DuplicateTransactionId)
	e.Latch(errmsg.QuotaExceeded) // first cause wins
	if e.Failed() != errmsg.DuplicateTransactionId {
		t.Fatalf("latched %v", e.Failed())
	}
}

func TestPublishState(t *testing.T) {
	e := newTestEnv()
	st := e.CloneState()
	st.NextPageNumber = 17
	e.PublishState(st, 4)
	if e.LastCommitted() != 4 {
		t.Fatalf("last committed %v", e.LastCommitted())
	}
	if e.CloneState().NextPageNumber != 17 {
		t.Fatalf("state %+v", e.CloneState())
	}
}

func TestWriteTxPoolReset(t *testing.T) {
	p := newWriteTxPool()
	p.Dirty[1] = struct{}{}
	p.DirtyOverflow[2] = 3
	p.ScratchTable[1] = scratch.PageFromScratch{File: 1, Slot: 2, Run: 3}
	p.Reset()
	if len(p.Dirty)+len(p.DirtyOverflow)+len(p.ScratchTable) != 0 {
		t.Fatal("pool not reset")
	}
}

func TestCompletionHooks(t *testing.T) {
	e := newTestEnv()
	var completed []int64
	e.OnTransactionCompleted(func(id int64, ok bool) {
		if ok {
			completed = append(completed, id)
		}
	})
	e.NotifyCompleted(2, true)
	e.NotifyCompleted(3, false)
	if len(completed) != 1 || completed[0] != 2 {
		t.Fatalf("completed %v", completed)
	}
}
