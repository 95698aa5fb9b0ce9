package journal

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/Corvalius/ravendb/errmsg"
	"github.com/Corvalius/ravendb/page"
	"github.com/Corvalius/ravendb/pager"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"github.com/nnsgmsone/damrey/logger"
	"github.com/ulikunitz/xz"
)

func Open(dir string, pageSize, fileSize int64, compress bool, envId uuid.UUID, cacheSize int64, log logger.Log) (*journal, *Recovered, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1 << 12,
		MaxCost:     cacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, nil, err
	}
	j := &journal{
		dir:      dir,
		log:      log,
		envId:    envId,
		cache:    cache,
		compress: compress,
		pageSize: pageSize,
		fileSize: fileSize,
	}
	rec, err := j.recover()
	if err != nil {
		j.Close()
		return nil, nil, err
	}
	if j.curr == nil {
		f, err := newJfile(0, dir, pageSize, fileSize, envId)
		if err != nil {
			j.Close()
			return nil, nil, err
		}
		j.fs = append(j.fs, f)
		j.curr = f
	}
	return j, rec, nil
}

func (j *journal) Close() error {
	j.Lock()
	defer j.Unlock()
	if j.lazyDirty && j.curr != nil {
		j.curr.flush()
		j.lazyDirty = false
	}
	for _, f := range j.fs {
		f.state.Release()
	}
	j.fs = nil
	j.curr = nil
	j.cache.Close()
	return nil
}

// WriteToJournal durably records the transaction's dirty pages. It
// returns the number of journal pages written and the payload size in
// bytes. After it returns the transaction is committed.
func (j *journal) WriteToJournal(tx CommitTx, totalPages int64) (int64, int64, error) {
	entries := tx.Entries()
	sort.Slice(entries, func(i, k int) bool { return entries[i].Number < entries[k].Number })

	var payload []byte
	for _, e := range entries {
		payload = append(payload, e.Data...)
	}
	usize := int64(len(payload))
	written := payload
	hdr := tx.Header()
	hdr.PageCount = int64(len(entries))
	hdr.UncompressedSize = usize
	hdr.CompressedSize = 0
	if j.compress {
		var b bytes.Buffer
		w, err := xz.NewWriter(&b)
		if err != nil {
			return 0, 0, err
		}
		if _, err := w.Write(payload); err != nil {
			return 0, 0, err
		}
		if err := w.Close(); err != nil {
			return 0, 0, err
		}
		if int64(b.Len()) < usize {
			written = b.Bytes()
			hdr.CompressedSize = int64(b.Len())
		}
	}
	hdr.Hash = hashOf(written)

	table := make([]byte, len(entries)*TableEntrySize)
	for i, e := range entries {
		putTableEntry(table[i*TableEntrySize:], e.Number, e.Run)
	}
	tablePages := page.NumberOfPages(int64(len(table)), j.pageSize)
	payloadPages := page.NumberOfPages(int64(len(written)), j.pageSize)
	total := (1 + tablePages + payloadPages) * j.pageSize

	j.Lock()
	defer j.Unlock()
	f := j.curr
	off, err := f.alloc(total)
	if err != nil {
		if err := j.roll(total); err != nil {
			return 0, 0, err
		}
		f = j.curr
		if off, err = f.alloc(total); err != nil {
			return 0, 0, err
		}
	}
	buf := f.buffer()
	zero(buf[off : off+j.pageSize])
	hdr.TimeStamp = time.Now().UTC().UnixNano()
	hdr.Encode(buf[off:])
	copy(buf[off+j.pageSize:], table)
	copy(buf[off+(1+tablePages)*j.pageSize:], written)
	switch {
	case tx.Lazy():
		j.hasLazy = true
		j.lazyDirty = true
	default:
		if err := f.flush(); err != nil {
			return 0, 0, err
		}
		j.lazyDirty = false
	}

	f.Lock()
	idx := int64(0)
	for _, e := range entries {
		f.mp[e.Number] = append(f.mp[e.Number], version{tx: tx.ID(), off: off, idx: idx, run: e.Run})
		idx += e.Run
	}
	f.lastTx = tx.ID()
	f.Unlock()
	return 1 + tablePages + payloadPages, int64(len(written)), nil
}

// GetSnapshots atomically freezes every journal file's translation
// table. The returned snapshots pin the file mappings until released.
func (j *journal) GetSnapshots() []*Snapshot {
	j.Lock()
	defer j.Unlock()
	var xs []*Snapshot
	for _, f := range j.fs {
		f.RLock()
		last := f.lastTx
		f.RUnlock()
		if last == 0 {
			continue
		}
		if !f.state.Acquire() {
			continue
		}
		xs = append(xs, &Snapshot{f: f, max: last})
	}
	return xs
}

func (j *journal) ReleaseSnapshots(xs []*Snapshot) {
	for _, s := range xs {
		s.f.state.Release()
	}
}

// ReadPage returns the most recent version of pn visible to the
// transaction's snapshot, or false if the page only lives in the data
// file.
func (j *journal) ReadPage(tx Tx, pn int64, _ map[int64]*pager.State) (page.Page, bool) {
	xs := tx.Snapshots()
	for i := len(xs) - 1; i >= 0; i-- {
		s := xs[i]
		s.f.RLock()
		vs := s.f.mp[pn]
		var v version
		ok := false
		for k := len(vs) - 1; k >= 0; k-- {
			if vs[k].tx <= s.max {
				v = vs[k]
				ok = true
				break
			}
		}
		s.f.RUnlock()
		if !ok {
			continue
		}
		buf, err := j.payload(s.f, v.off)
		if err != nil {
			return page.Page{}, false
		}
		return page.New(buf[v.idx*j.pageSize : (v.idx+v.run)*j.pageSize]), true
	}
	return page.Page{}, false
}

// UpdateCacheForJournalSnapshots invalidates cached payload views after
// a rollback.
func (j *journal) UpdateCacheForJournalSnapshots() {
	j.cache.Clear()
}

func (j *journal) HasDataInLazyTxBuffer() bool {
	j.Lock()
	defer j.Unlock()
	return j.hasLazy
}

func (j *journal) HasTransactionsAtOrAbove(txId int64) bool {
	j.Lock()
	defer j.Unlock()
	for _, f := range j.fs {
		f.RLock()
		last := f.lastTx
		f.RUnlock()
		if last >= txId {
			return true
		}
	}
	return false
}

// CollectFlush returns the newest version of every page committed by a
// transaction in (from, to], ready to be applied to the data file,
// together with the environment state as of the newest such
// transaction.
func (j *journal) CollectFlush(from, to int64) ([]PageEntry, *Recovered) {
	j.Lock()
	fs := append([]*jfile{}, j.fs...)
	j.Unlock()
	type best struct {
		tx int64
		f  *jfile
		v  version
	}
	mp := make(map[int64]best)
	top := best{}
	for _, f := range fs {
		f.RLock()
		for pn, vs := range f.mp {
			for k := len(vs) - 1; k >= 0; k-- {
				v := vs[k]
				if v.tx > from && v.tx <= to {
					if b, ok := mp[pn]; !ok || v.tx > b.tx {
						mp[pn] = best{tx: v.tx, f: f, v: v}
					}
					if v.tx > top.tx {
						top = best{tx: v.tx, f: f, v: v}
					}
					break
				}
			}
		}
		f.RUnlock()
	}
	var rec *Recovered
	if top.tx != 0 {
		if hdr, err := page.DecodeTxHeader(top.f.buffer()[top.v.off:]); err == nil {
			rec = &Recovered{NextPageNumber: hdr.NextPageNumber, LastTxId: hdr.Id, Root: hdr.Root}
		}
	}
	var xs []PageEntry
	for pn, b := range mp {
		buf, err := j.payload(b.f, b.v.off)
		if err != nil {
			continue
		}
		xs = append(xs, PageEntry{
			Number: pn,
			Run:    b.v.run,
			Data:   buf[b.v.idx*j.pageSize : (b.v.idx+b.v.run)*j.pageSize],
		})
	}
	sort.Slice(xs, func(i, k int) bool { return xs[i].Number < xs[k].Number })
	return xs, rec
}

// TruncateFlushed drops journal files whose every transaction has been
// applied to the data file and is older than any live snapshot.
func (j *journal) TruncateFlushed(flushed, oldest int64) {
	j.Lock()
	defer j.Unlock()
	var keep []*jfile
	for _, f := range j.fs {
		f.RLock()
		last := f.lastTx
		f.RUnlock()
		if f != j.curr && last <= flushed && last < oldest {
			f.state.Release()
			os.Remove(f.path)
			continue
		}
		keep = append(keep, f)
	}
	j.fs = keep
}

// roll is called with the journal lock held.
func (j *journal) roll(need int64) error {
	if err := j.curr.flush(); err != nil {
		return err
	}
	j.lazyDirty = false
	cap := j.fileSize
	if need+j.pageSize > cap {
		cap = need + j.pageSize
	}
	f, err := newJfile(j.curr.id+1, j.dir, j.pageSize, cap, j.envId)
	if err != nil {
		return err
	}
	j.fs = append(j.fs, f)
	j.curr = f
	return nil
}

// payload returns the uncompressed page payload of the transaction
// whose header sits at off. Decompressed payloads are cached.
func (j *journal) payload(f *jfile, off int64) ([]byte, error) {
	buf := f.buffer()
	hdr, err := page.DecodeTxHeader(buf[off:])
	if err != nil {
		return nil, err
	}
	tablePages := page.NumberOfPages(hdr.PageCount*TableEntrySize, j.pageSize)
	payloadOff := off + (1+tablePages)*j.pageSize
	if hdr.CompressedSize == 0 {
		return buf[payloadOff : payloadOff+hdr.UncompressedSize], nil
	}
	key := fmt.Sprintf("%v.%v", f.id, off)
	if v, ok := j.cache.Get(key); ok {
		return v, nil
	}
	r, err := xz.NewReader(bytes.NewReader(buf[payloadOff : payloadOff+hdr.CompressedSize]))
	if err != nil {
		return nil, err
	}
	v, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if int64(len(v)) != hdr.UncompressedSize {
		return nil, errmsg.ReadFailed
	}
	j.cache.Set(key, v, int64(len(v)))
	return v, nil
}

func zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
