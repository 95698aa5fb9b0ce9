package scratch

import (
	"github.com/Corvalius/ravendb/pager"
	"golang.org/x/sys/unix"
)

func newFile(id, pageSize, fileSize int64) (*file, error) {
	buf, err := unix.Mmap(-1, 0, int(fileSize), unix.PROT_WRITE|unix.PROT_READ, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &file{
		id:    id,
		cap:   fileSize / pageSize,
		state: pager.NewState(buf),
		alloc: make(map[int64]int64),
		free:  make(map[int64][]int64),
	}, nil
}

func (f *file) close() {
	f.state.Release()
}

// take reserves a run of n page slots, preferring an exact-sized free
// run over the bump allocator.
func (f *file) take(n int64) (int64, bool) {
	if xs := f.free[n]; len(xs) > 0 {
		s := xs[len(xs)-1]
		f.free[n] = xs[:len(xs)-1]
		f.alloc[s] = n
		return s, true
	}
	if f.next+n <= f.cap {
		s := f.next
		f.next += n
		f.alloc[s] = n
		return s, true
	}
	return 0, false
}

func (f *file) put(slot, run int64) {
	f.free[run] = append(f.free[run], slot)
}
