package env

import (
	"sync/atomic"

	"github.com/Corvalius/ravendb/errmsg"
	"github.com/google/uuid"
	"github.com/nnsgmsone/damrey/logger"
)

func New(id uuid.UUID, st State, lastCommitted int64, log logger.Log) *Env {
	return &Env{
		id:     id,
		log:    log,
		state:  st,
		reg:    newRegistry(),
		pool:   newWriteTxPool(),
		txId:   lastCommitted,
		lastId: lastCommitted,
	}
}

func (e *Env) Id() uuid.UUID {
	return e.id
}

// Failed returns the latched catastrophic error, if any. Every
// transaction entry point checks it first.
func (e *Env) Failed() error {
	if v := e.failure.Load(); v != nil {
		return *v.(*error)
	}
	return nil
}

// Latch records a catastrophic failure. The first cause wins; all
// further transactions fail fast with it until process restart.
func (e *Env) Latch(err error) {
	if err == nil {
		err = errmsg.CatastrophicFailure
	}
	// stored behind a pointer so every value has the same concrete
	// type, whatever the error's own type is
	e.failure.CompareAndSwap(nil, &err)
}

func (e *Env) NextTransactionId() int64 {
	return atomic.AddInt64(&e.txId, 1)
}

func (e *Env) LastCommitted() int64 {
	return atomic.LoadInt64(&e.lastId)
}

func (e *Env) LockWriter() {
	e.writer.Lock()
}

func (e *Env) UnlockWriter() {
	e.writer.Unlock()
}

func (e *Env) Register(txId int64) {
	e.reg.Add(txId)
}

func (e *Env) Deregister(txId int64) {
	e.reg.Del(txId)
}

// OldestActiveTransaction returns the smallest live transaction id, or
// one past the last committed id when nothing is live.
func (e *Env) OldestActiveTransaction() int64 {
	if id, ok := e.reg.Min(); ok {
		return id
	}
	return e.LastCommitted() + 1
}

func (e *Env) CloneState() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// PublishState installs a committed transaction's state atomically.
func (e *Env) PublishState(st State, txId int64) {
	e.stateMu.Lock()
	e.state = st
	e.stateMu.Unlock()
	atomic.StoreInt64(&e.lastId, txId)
}

func (e *Env) WritePool() *WriteTxPool {
	return e.pool
}

func (e *Env) Log() logger.Log {
	return e.log
}

func (e *Env) OnTransactionCompleted(fn func(txId int64, committed bool)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.onCompleted = append(e.onCompleted, fn)
}

func (e *Env) OnTransactionAfterCommit(fn func(txId int64)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.onAfterCommit = append(e.onAfterCommit, fn)
}

func (e *Env) NotifyCompleted(txId int64, committed bool) {
	e.hookMu.Lock()
	fns := append([]func(int64, bool){}, e.onCompleted...)
	e.hookMu.Unlock()
	for _, fn := range fns {
		fn(txId, committed)
	}
}

func (e *Env) NotifyAfterCommit(txId int64) {
	e.hookMu.Lock()
	fns := append([]func(int64){}, e.onAfterCommit...)
	e.hookMu.Unlock()
	for _, fn := range fns {
		fn(txId)
	}
}
