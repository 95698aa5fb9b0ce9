package tree

import (
	"sort"

	"github.com/Corvalius/ravendb/constant"
	"github.com/Corvalius/ravendb/page"
	"github.com/Corvalius/ravendb/transaction"
)

func OpenDirectory(ll *transaction.LowLevel) *Directory {
	hdr := ll.Root()
	inner := &Tree{name: "$root", hdr: hdr, ll: ll}
	if hdr.RootPage == 0 {
		inner.mp = make(map[string][]byte)
		inner.loaded = true
	}
	return &Directory{ll: ll, inner: inner}
}

func (d *Directory) Get(name string) (page.TreeHeader, bool, error) {
	v, ok, err := d.inner.Get([]byte(name))
	if err != nil || !ok {
		return page.TreeHeader{}, false, err
	}
	if len(v) < page.TreeHeaderSize {
		return page.TreeHeader{}, false, nil
	}
	return page.DecodeTreeHeader(v), true, nil
}

func (d *Directory) Put(name string, h page.TreeHeader) error {
	var buf [page.TreeHeaderSize]byte
	h.Encode(buf[:])
	return d.inner.Put([]byte(name), buf[:])
}

func (d *Directory) Delete(name string) error {
	return d.inner.Delete([]byte(name))
}

func (d *Directory) Names() ([]string, error) {
	if err := d.inner.load(); err != nil {
		return nil, err
	}
	xs := make([]string, 0, len(d.inner.mp))
	for k := range d.inner.mp {
		xs = append(xs, k)
	}
	sort.Strings(xs)
	return xs, nil
}

func (d *Directory) IsModified() bool {
	return d.inner.dirty
}

// Save serializes the directory and installs its header as the
// transaction's root, so it rides in the transaction header at commit.
func (d *Directory) Save() error {
	if !d.inner.dirty {
		return nil
	}
	hdr, err := d.inner.Save()
	if err != nil {
		return err
	}
	hdr.Flags = constant.Directory
	d.inner.hdr = hdr
	d.ll.SetRoot(hdr)
	return nil
}
