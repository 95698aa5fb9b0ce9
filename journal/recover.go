package journal

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/Corvalius/ravendb/constant"
	"github.com/Corvalius/ravendb/page"
	"github.com/Corvalius/ravendb/sum"
)

func hashOf(data []byte) uint64 {
	return sum.Sum(data)
}

func putTableEntry(buf []byte, pn, run int64) {
	binary.LittleEndian.PutUint64(buf[0:], uint64(pn))
	binary.LittleEndian.PutUint32(buf[8:], uint32(run))
}

func getTableEntry(buf []byte) (int64, int64) {
	return int64(binary.LittleEndian.Uint64(buf[0:])), int64(binary.LittleEndian.Uint32(buf[8:]))
}

// recover rebuilds every journal file's page-translation table by
// scanning committed transactions from the head, stopping at the first
// incomplete or corrupt record. Files flushed and dropped in an earlier
// run leave holes in the numbering, so the directory is listed rather
// than probed from zero.
func (j *journal) recover() (*Recovered, error) {
	rec := &Recovered{NextPageNumber: constant.FirstDataPage}
	ids, err := listJournalFiles(j.dir)
	if err != nil {
		return nil, err
	}
	for _, i := range ids {
		f, err := openJfile(i, j.dir, j.envId)
		if err != nil {
			return nil, err
		}
		j.scan(f, rec)
		j.fs = append(j.fs, f)
		j.curr = f
	}
	return rec, nil
}

func listJournalFiles(dir string) ([]int64, error) {
	es, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []int64
	for _, e := range es {
		var id int64
		if n, err := fmt.Sscanf(e.Name(), "%d.JOURNAL", &id); err == nil && n == 1 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, k int) bool { return ids[i] < ids[k] })
	return ids, nil
}

func (j *journal) scan(f *jfile, rec *Recovered) {
	buf := f.buffer()
	off := j.pageSize
	for off+j.pageSize <= f.cap {
		hdr, err := page.DecodeTxHeader(buf[off:])
		if err != nil {
			break
		}
		if hdr.Id <= rec.LastTxId || hdr.MarkerBits&constant.Commit == 0 {
			break
		}
		tablePages := page.NumberOfPages(hdr.PageCount*TableEntrySize, j.pageSize)
		written := hdr.UncompressedSize
		if hdr.CompressedSize != 0 {
			written = hdr.CompressedSize
		}
		payloadPages := page.NumberOfPages(written, j.pageSize)
		end := off + (1+tablePages+payloadPages)*j.pageSize
		if end > f.cap {
			break
		}
		payloadOff := off + (1+tablePages)*j.pageSize
		if hashOf(buf[payloadOff:payloadOff+written]) != hdr.Hash {
			break
		}
		idx := int64(0)
		for i := int64(0); i < hdr.PageCount; i++ {
			pn, run := getTableEntry(buf[off+j.pageSize+i*TableEntrySize:])
			f.mp[pn] = append(f.mp[pn], version{tx: hdr.Id, off: off, idx: idx, run: run})
			idx += run
		}
		f.lastTx = hdr.Id
		rec.LastTxId = hdr.Id
		rec.NextPageNumber = hdr.NextPageNumber
		rec.Root = hdr.Root
		off = end
	}
	f.size = off
}
