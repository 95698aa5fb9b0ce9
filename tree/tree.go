package tree

import (
	"encoding/binary"
	"sort"

	"github.com/Corvalius/ravendb/constant"
	"github.com/Corvalius/ravendb/errmsg"
	"github.com/Corvalius/ravendb/page"
	"github.com/Corvalius/ravendb/transaction"
)

func Open(ll *transaction.LowLevel, name string, hdr page.TreeHeader) *Tree {
	return &Tree{name: name, hdr: hdr, ll: ll}
}

func Create(ll *transaction.LowLevel, name string) *Tree {
	return &Tree{
		name:   name,
		ll:     ll,
		mp:     make(map[string][]byte),
		loaded: true,
		dirty:  true,
	}
}

func (t *Tree) Name() string {
	return t.name
}

func (t *Tree) Header() page.TreeHeader {
	return t.hdr
}

func (t *Tree) IsModified() bool {
	return t.dirty
}

func (t *Tree) Put(k, v []byte) error {
	if len(k) == 0 {
		return errmsg.InvalidOperation
	}
	if err := t.load(); err != nil {
		return err
	}
	t.mp[string(k)] = append([]byte{}, v...)
	t.dirty = true
	return nil
}

func (t *Tree) Get(k []byte) ([]byte, bool, error) {
	if err := t.load(); err != nil {
		return nil, false, err
	}
	v, ok := t.mp[string(k)]
	return v, ok, nil
}

func (t *Tree) Delete(k []byte) error {
	if err := t.load(); err != nil {
		return err
	}
	if _, ok := t.mp[string(k)]; ok {
		delete(t.mp, string(k))
		t.dirty = true
	}
	return nil
}

func (t *Tree) Len() (int64, error) {
	if err := t.load(); err != nil {
		return 0, err
	}
	return int64(len(t.mp)), nil
}

// Save serializes a modified tree into a fresh overflow run and frees
// the previous one. Only legal inside a write transaction.
func (t *Tree) Save() (page.TreeHeader, error) {
	if !t.dirty {
		return t.hdr, nil
	}
	if t.hdr.RootPage != 0 {
		if err := t.ll.FreePageOnCommit(t.hdr.RootPage); err != nil {
			return page.TreeHeader{}, err
		}
	}
	blob := encode(t.mp)
	pg, err := t.ll.AllocateOverflowRawPage(int64(len(blob) + constant.PageHeaderSize))
	if err != nil {
		return page.TreeHeader{}, err
	}
	copy(pg.Buffer()[constant.PageHeaderSize:], blob)
	pg.SetTreeFlags(constant.Leaf)
	t.hdr.RootPage = pg.PageNumber()
	t.hdr.Entries = int64(len(t.mp))
	t.hdr.Flags = constant.Leaf
	t.dirty = false
	return t.hdr, nil
}

func (t *Tree) load() error {
	if t.loaded {
		return nil
	}
	t.mp = make(map[string][]byte)
	if t.hdr.RootPage != 0 {
		pg, err := t.ll.GetPage(t.hdr.RootPage)
		if err != nil {
			return err
		}
		blob := pg.Buffer()[constant.PageHeaderSize:pg.OverflowSize()]
		if err := decode(blob, t.mp); err != nil {
			return err
		}
	}
	t.loaded = true
	return nil
}

func encode(mp map[string][]byte) []byte {
	ks := make([]string, 0, len(mp))
	for k := range mp {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(ks)))
	for _, k := range ks {
		var h [6]byte
		binary.LittleEndian.PutUint16(h[0:], uint16(len(k)))
		binary.LittleEndian.PutUint32(h[2:], uint32(len(mp[k])))
		buf = append(buf, h[:]...)
		buf = append(buf, k...)
		buf = append(buf, mp[k]...)
	}
	return buf
}

func decode(buf []byte, mp map[string][]byte) error {
	if len(buf) < 4 {
		return errmsg.ReadFailed
	}
	n := int(binary.LittleEndian.Uint32(buf))
	o := 4
	for i := 0; i < n; i++ {
		if len(buf[o:]) < 6 {
			return errmsg.ReadFailed
		}
		kn := int(binary.LittleEndian.Uint16(buf[o:]))
		vn := int(binary.LittleEndian.Uint32(buf[o+2:]))
		o += 6
		if len(buf[o:]) < kn+vn {
			return errmsg.ReadFailed
		}
		k := string(buf[o : o+kn])
		o += kn
		mp[k] = append([]byte{}, buf[o:o+vn]...)
		o += vn
	}
	return nil
}
