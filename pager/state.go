package pager

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// State is a reference-counted mapping. Every transaction that touches a
// pager holds a reference for its lifetime and releases it on dispose;
// the mapping is unmapped when the last reference drops.
type State struct {
	n   int32 // refer
	buf []byte
}

func NewState(buf []byte) *State {
	return &State{n: 1, buf: buf}
}

func (s *State) Buffer() []byte {
	return s.buf
}

func (s *State) Acquire() bool {
	for {
		curr := atomic.LoadInt32(&s.n)
		if curr <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&s.n, curr, curr+1) {
			return true
		}
	}
}

func (s *State) Release() {
	if atomic.AddInt32(&s.n, -1) == 0 {
		unix.Munmap(s.buf)
		s.buf = nil
	}
}
