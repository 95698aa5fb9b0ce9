package pager

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/Corvalius/ravendb/constant"
	"github.com/Corvalius/ravendb/errmsg"
	"github.com/Corvalius/ravendb/page"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

func New(path string, pageSize, max int64, fatal func(error)) (*pager, error) {
	fp, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0664)
	if err != nil {
		return nil, err
	}
	st, err := fp.Stat()
	if err != nil {
		fp.Close()
		return nil, err
	}
	p := &pager{
		fp:       fp,
		max:      max,
		fatal:    fatal,
		pageSize: pageSize,
		size:     st.Size(),
	}
	switch {
	case p.size < pageSize:
		p.envId = uuid.New()
		if err := p.init(); err != nil {
			fp.Close()
			return nil, err
		}
	default:
		if err := p.open(); err != nil {
			fp.Close()
			return nil, err
		}
	}
	return p, nil
}

func (p *pager) Close() error {
	p.Lock()
	st := p.st
	p.st = nil
	p.Unlock()
	if st != nil {
		st.Release()
	}
	return p.fp.Close()
}

func (p *pager) Sync() error {
	p.Lock()
	defer p.Unlock()
	return unix.Msync(p.st.buf, unix.MS_SYNC)
}

func (p *pager) PageSize() int64 {
	return p.pageSize
}

func (p *pager) MaxStorageSize() int64 {
	return p.max
}

func (p *pager) NumberOfAllocatedPages() int64 {
	p.Lock()
	defer p.Unlock()
	return p.size / p.pageSize
}

func (p *pager) EnvironmentId() uuid.UUID {
	return p.envId
}

// State returns the current mapping without acquiring a reference; the
// caller must Acquire before depending on it.
func (p *pager) State() *State {
	p.Lock()
	defer p.Unlock()
	return p.st
}

func (p *pager) ReadPage(s *State, pn int64) (page.Page, error) {
	buf := s.Buffer()
	if pn < 0 || (pn+1)*p.pageSize > int64(len(buf)) {
		err := errmsg.OutOfRange
		p.fatal(err)
		return page.Page{}, err
	}
	pg := page.New(buf[pn*p.pageSize : (pn+1)*p.pageSize])
	if pg.IsOverflow() {
		n := page.NumberOfPages(int64(pg.OverflowSize()), p.pageSize)
		if (pn+n)*p.pageSize > int64(len(buf)) {
			err := errmsg.OutOfRange
			p.fatal(err)
			return page.Page{}, err
		}
		pg = page.New(buf[pn*p.pageSize : (pn+n)*p.pageSize])
	}
	return pg, nil
}

func (p *pager) WritePage(pg page.Page) error {
	pn := pg.PageNumber()
	if err := p.EnsureCapacity(pn + int64(len(pg.Buffer()))/p.pageSize); err != nil {
		return err
	}
	p.Lock()
	defer p.Unlock()
	copy(p.st.buf[pn*p.pageSize:], pg.Buffer())
	return nil
}

// EnsureCapacity grows the file and remaps it so that page pn exists.
// Old states stay alive until their references drain.
func (p *pager) EnsureCapacity(pn int64) error {
	p.Lock()
	defer p.Unlock()
	need := (pn + 1) * p.pageSize
	if need <= p.size {
		return nil
	}
	size := p.size
	for size < need {
		size *= 2
	}
	if err := p.remap(size); err != nil {
		return err
	}
	return nil
}

func (p *pager) GetNumberOfOverflowPages(byteCount int64) int64 {
	return page.NumberOfPages(byteCount, p.pageSize)
}

// HeaderState reads the flushed state recorded in the header page.
func (p *pager) HeaderState() (int64, int64, page.TreeHeader) {
	p.Lock()
	defer p.Unlock()
	buf := p.st.buf
	lastTx := int64(binary.LittleEndian.Uint64(buf[28:]))
	nextPage := int64(binary.LittleEndian.Uint64(buf[36:]))
	return lastTx, nextPage, page.DecodeTreeHeader(buf[44:])
}

// SetHeaderState records the state as of the last flushed transaction
// in the header page; it is made durable by the next Sync.
func (p *pager) SetHeaderState(lastTx, nextPage int64, root page.TreeHeader) {
	p.Lock()
	defer p.Unlock()
	buf := p.st.buf
	binary.LittleEndian.PutUint64(buf[28:], uint64(lastTx))
	binary.LittleEndian.PutUint64(buf[36:], uint64(nextPage))
	root.Encode(buf[44:])
}

// remap is called with the pager lock held.
func (p *pager) remap(size int64) error {
	if err := unix.Ftruncate(int(p.fp.Fd()), size); err != nil {
		return err
	}
	buf, err := unix.Mmap(int(p.fp.Fd()), 0, int(size), unix.PROT_WRITE|unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	if old := p.st; old != nil {
		old.Release()
	}
	p.st = NewState(buf)
	p.size = size
	return nil
}

func (p *pager) init() error {
	if err := p.remap(InitPages * p.pageSize); err != nil {
		return err
	}
	buf := p.st.buf
	copy(buf, constant.DataFileMagic)
	binary.LittleEndian.PutUint32(buf[4:], constant.FormatVersion)
	binary.LittleEndian.PutUint32(buf[8:], uint32(p.pageSize))
	copy(buf[12:], p.envId[:])
	return unix.Msync(buf[:p.pageSize], unix.MS_SYNC)
}

func (p *pager) open() error {
	if err := p.remap(p.size); err != nil {
		return err
	}
	buf := p.st.buf
	if !bytes.Equal(buf[:4], []byte(constant.DataFileMagic)) {
		return errmsg.BadHeader
	}
	if int64(binary.LittleEndian.Uint32(buf[8:])) != p.pageSize {
		return errmsg.BadHeader
	}
	id, err := uuid.FromBytes(buf[12:28])
	if err != nil {
		return errmsg.BadHeader
	}
	p.envId = id
	return nil
}
