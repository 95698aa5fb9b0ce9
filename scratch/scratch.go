package scratch

import (
	"github.com/Corvalius/ravendb/errmsg"
	"github.com/Corvalius/ravendb/page"
	"github.com/Corvalius/ravendb/pager"
)

func New(pageSize, fileSize int64, maxFiles int, oldest func() int64) (*pool, error) {
	p := &pool{
		pageSize: pageSize,
		fileSize: fileSize,
		maxFiles: maxFiles,
		oldest:   oldest,
	}
	f, err := newFile(0, pageSize, fileSize)
	if err != nil {
		return nil, err
	}
	p.fs = append(p.fs, f)
	return p, nil
}

func (p *pool) Close() error {
	p.Lock()
	defer p.Unlock()
	for _, f := range p.fs {
		f.close()
	}
	p.fs = nil
	return nil
}

func (p *pool) Allocate(txId, n int64) (PageFromScratch, error) {
	p.Lock()
	defer p.Unlock()
	p.drain()
	for _, f := range p.fs {
		if s, ok := f.take(n); ok {
			p.inUse += n
			return PageFromScratch{File: f.id, Slot: s, Run: n, OriginalRun: n, Previous: -1}, nil
		}
	}
	if len(p.fs) >= p.maxFiles || n > p.fileSize/p.pageSize {
		return PageFromScratch{}, errmsg.ScratchBufferFull
	}
	f, err := newFile(int64(len(p.fs)), p.pageSize, p.fileSize)
	if err != nil {
		return PageFromScratch{}, errmsg.ScratchBufferFull
	}
	p.fs = append(p.fs, f)
	s, ok := f.take(n)
	if !ok {
		return PageFromScratch{}, errmsg.ScratchBufferFull
	}
	p.inUse += n
	return PageFromScratch{File: f.id, Slot: s, Run: n, OriginalRun: n, Previous: -1}, nil
}

// Free releases a slot. With txId 0 the slot is immediately reusable
// (rollback); otherwise reuse is deferred until the transaction is
// flushed and no live transaction can still observe it.
func (p *pool) Free(file, slot, txId int64) {
	p.Lock()
	defer p.Unlock()
	f := p.fs[file]
	run, ok := f.alloc[slot]
	if !ok {
		return
	}
	delete(f.alloc, slot)
	p.inUse -= run
	if txId == 0 {
		f.put(slot, run)
		return
	}
	p.pending = append(p.pending, pendingFree{file: file, slot: slot, run: run, tx: txId})
}

func (p *pool) ReadPage(file, slot int64, s *pager.State) page.Page {
	if s == nil {
		p.Lock()
		s = p.fs[file].state
		p.Unlock()
	}
	buf := s.Buffer()
	pg := page.New(buf[slot*p.pageSize : (slot+1)*p.pageSize])
	if pg.IsOverflow() {
		n := page.NumberOfPages(int64(pg.OverflowSize()), p.pageSize)
		pg = page.New(buf[slot*p.pageSize : (slot+n)*p.pageSize])
	}
	return pg
}

func (p *pool) Buffer(file, slot, n int64, s *pager.State) []byte {
	if s == nil {
		p.Lock()
		s = p.fs[file].state
		p.Unlock()
	}
	return s.Buffer()[slot*p.pageSize : (slot+n)*p.pageSize]
}

// BreakLargeAllocationToSeparatePages splits an overflow run of N pages
// into N single-page allocations in place: same bytes, new metadata.
func (p *pool) BreakLargeAllocationToSeparatePages(ref PageFromScratch) []PageFromScratch {
	p.Lock()
	defer p.Unlock()
	f := p.fs[ref.File]
	delete(f.alloc, ref.Slot)
	refs := make([]PageFromScratch, 0, ref.Run)
	for i := int64(0); i < ref.Run; i++ {
		f.alloc[ref.Slot+i] = 1
		r := PageFromScratch{File: ref.File, Slot: ref.Slot + i, Run: 1, OriginalRun: ref.OriginalRun, Previous: -1}
		if i == 0 {
			r.Previous = ref.Previous
		}
		refs = append(refs, r)
	}
	return refs
}

// EnsureMapped verifies a multi-page slot is contiguously addressable.
// Scratch files are single anonymous mappings, so this is a bounds check.
func (p *pool) EnsureMapped(file, slot, n int64) error {
	p.Lock()
	defer p.Unlock()
	if slot+n > p.fs[file].cap {
		return errmsg.OutOfRange
	}
	return nil
}

func (p *pool) GetPagerStatesOfAllScratches() map[int64]*pager.State {
	p.Lock()
	defer p.Unlock()
	mp := make(map[int64]*pager.State, len(p.fs))
	for _, f := range p.fs {
		mp[f.id] = f.state
	}
	return mp
}

func (p *pool) SetFlushedTransaction(txId int64) {
	p.Lock()
	defer p.Unlock()
	if txId > p.flushed {
		p.flushed = txId
	}
	p.drain()
}

func (p *pool) InUse() int64 {
	p.Lock()
	defer p.Unlock()
	return p.inUse
}

// drain is called with the pool lock held. It moves pending frees whose
// transaction is both flushed and no longer observable back to the free
// lists.
func (p *pool) drain() {
	oldest := p.oldest()
	xs := p.pending[:0]
	for _, pf := range p.pending {
		if pf.tx <= p.flushed && pf.tx < oldest {
			p.fs[pf.file].put(pf.slot, pf.run)
		} else {
			xs = append(xs, pf)
		}
	}
	p.pending = xs
}
