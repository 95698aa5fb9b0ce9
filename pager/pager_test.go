package pager

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/Corvalius/ravendb/constant"
	"github.com/Corvalius/ravendb/page"
)

func newTestPager(t *testing.T, path string, max int64) *pager {
	t.Helper()
	p, err := New(path, constant.DefaultPageSize, max, func(error) {})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPagerWriteRead(t *testing.T) {
	p := newTestPager(t, filepath.Join(t.TempDir(), "DATA"), 0)
	defer p.Close()

	buf := make([]byte, constant.DefaultPageSize)
	pg := page.New(buf)
	pg.SetPageNumber(5)
	pg.SetFlags(constant.Single)
	copy(pg.Data(), []byte("hello pager"))
	if err := p.WritePage(pg); err != nil {
		t.Fatal(err)
	}
	got, err := p.ReadPage(p.State(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if got.PageNumber() != 5 {
		t.Fatalf("page number %v", got.PageNumber())
	}
	if !bytes.Equal(got.Buffer(), buf) {
		t.Fatal("page bytes differ")
	}
}

func TestPagerGrowth(t *testing.T) {
	p := newTestPager(t, filepath.Join(t.TempDir(), "DATA"), 0)
	defer p.Close()

	before := p.NumberOfAllocatedPages()
	if err := p.EnsureCapacity(before * 4); err != nil {
		t.Fatal(err)
	}
	if p.NumberOfAllocatedPages() <= before {
		t.Fatalf("file did not grow: %v -> %v", before, p.NumberOfAllocatedPages())
	}
}

func TestPagerOldStateSurvivesGrowth(t *testing.T) {
	p := newTestPager(t, filepath.Join(t.TempDir(), "DATA"), 0)
	defer p.Close()

	buf := make([]byte, constant.DefaultPageSize)
	pg := page.New(buf)
	pg.SetPageNumber(3)
	pg.SetFlags(constant.Single)
	copy(pg.Data(), []byte("stable"))
	if err := p.WritePage(pg); err != nil {
		t.Fatal(err)
	}
	old := p.State()
	if !old.Acquire() {
		t.Fatal("acquire failed")
	}
	defer old.Release()
	if err := p.EnsureCapacity(p.NumberOfAllocatedPages() * 8); err != nil {
		t.Fatal(err)
	}
	got, err := p.ReadPage(old, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Data()[:6], []byte("stable")) {
		t.Fatal("old mapping unreadable after growth")
	}
}

func TestPagerOutOfRange(t *testing.T) {
	var latched error
	p, err := New(filepath.Join(t.TempDir(), "DATA"), constant.DefaultPageSize, 0, func(err error) { latched = err })
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if _, err := p.ReadPage(p.State(), 1<<40); err == nil {
		t.Fatal("expected out of range error")
	}
	if latched == nil {
		t.Fatal("out of range read did not latch")
	}
}

func TestPagerReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "DATA")
	p := newTestPager(t, path, 0)
	id := p.EnvironmentId()
	p.SetHeaderState(9, 42, page.TreeHeader{RootPage: 7, Entries: 1})
	if err := p.Sync(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	p = newTestPager(t, path, 0)
	defer p.Close()
	if p.EnvironmentId() != id {
		t.Fatal("environment id changed across reopen")
	}
	lastTx, nextPage, root := p.HeaderState()
	if lastTx != 9 || nextPage != 42 || root.RootPage != 7 {
		t.Fatalf("header state %v %v %+v", lastTx, nextPage, root)
	}
}

func TestPagerOverflowRead(t *testing.T) {
	p := newTestPager(t, filepath.Join(t.TempDir(), "DATA"), 0)
	defer p.Close()

	buf := make([]byte, 3*constant.DefaultPageSize)
	pg := page.New(buf)
	pg.SetPageNumber(2)
	pg.SetFlags(constant.Overflow)
	pg.SetOverflowSize(10000)
	if err := p.WritePage(pg); err != nil {
		t.Fatal(err)
	}
	got, err := p.ReadPage(p.State(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Buffer()) != 3*constant.DefaultPageSize {
		t.Fatalf("overflow run length %v", len(got.Buffer()))
	}
}
