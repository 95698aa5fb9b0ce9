package db

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Corvalius/ravendb/errmsg"
	"github.com/Corvalius/ravendb/transaction"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DirName = filepath.Join(t.TempDir(), "store")
	cfg.LogWriter = os.Stderr
	cfg.FlushCycle = 10 * time.Millisecond
	return cfg
}

func openTestDB(t *testing.T, cfg Config) *db {
	t.Helper()
	d, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestUpdateViewRoundTrip(t *testing.T) {
	d := openTestDB(t, testConfig(t))
	defer d.Close()

	if err := d.Update(func(tx *Transaction) error {
		tr, err := tx.CreateTree("config")
		if err != nil {
			return err
		}
		return tr.Put([]byte("name"), []byte("pagedb"))
	}); err != nil {
		t.Fatal(err)
	}

	if err := d.View(func(tx *Transaction) error {
		tr, err := tx.ReadTree("config")
		if err != nil {
			return err
		}
		v, ok, err := tr.Get([]byte("name"))
		if err != nil {
			return err
		}
		if !ok || !bytes.Equal(v, []byte("pagedb")) {
			return fmt.Errorf("got %q %v", v, ok)
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

func TestReopenRecovers(t *testing.T) {
	cfg := testConfig(t)
	d := openTestDB(t, cfg)
	for i := 0; i < 10; i++ {
		if err := d.Update(func(tx *Transaction) error {
			tr, err := tx.CreateTree("kv")
			if err != nil {
				return err
			}
			return tr.Put([]byte(fmt.Sprintf("k%v", i)), []byte(fmt.Sprintf("v%v", i)))
		}); err != nil {
			t.Fatal(err)
		}
	}
	envId := d.Environment().Id()
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	d = openTestDB(t, cfg)
	defer d.Close()
	if d.Environment().Id() != envId {
		t.Fatal("environment id changed across reopen")
	}
	if err := d.View(func(tx *Transaction) error {
		tr, err := tx.ReadTree("kv")
		if err != nil {
			return err
		}
		for i := 0; i < 10; i++ {
			v, ok, err := tr.Get([]byte(fmt.Sprintf("k%v", i)))
			if err != nil {
				return err
			}
			if !ok || !bytes.Equal(v, []byte(fmt.Sprintf("v%v", i))) {
				return fmt.Errorf("k%v: got %q %v", i, v, ok)
			}
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

func TestTreeLifecycle(t *testing.T) {
	d := openTestDB(t, testConfig(t))
	defer d.Close()

	if err := d.Update(func(tx *Transaction) error {
		tr, err := tx.CreateTree("old")
		if err != nil {
			return err
		}
		return tr.Put([]byte("k"), []byte("v"))
	}); err != nil {
		t.Fatal(err)
	}

	if err := d.Update(func(tx *Transaction) error {
		return tx.RenameTree("old", "new")
	}); err != nil {
		t.Fatal(err)
	}

	if err := d.View(func(tx *Transaction) error {
		if _, err := tx.ReadTree("old"); err != errmsg.NotExist {
			return fmt.Errorf("old tree still visible: %v", err)
		}
		tr, err := tx.ReadTree("new")
		if err != nil {
			return err
		}
		v, ok, err := tr.Get([]byte("k"))
		if err != nil {
			return err
		}
		if !ok || !bytes.Equal(v, []byte("v")) {
			return fmt.Errorf("renamed tree lost data: %q %v", v, ok)
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := d.Update(func(tx *Transaction) error {
		return tx.DeleteTree("new")
	}); err != nil {
		t.Fatal(err)
	}
	if err := d.View(func(tx *Transaction) error {
		if _, err := tx.ReadTree("new"); err != errmsg.NotExist {
			return fmt.Errorf("deleted tree still visible: %v", err)
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

func TestRenameToExistingTree(t *testing.T) {
	d := openTestDB(t, testConfig(t))
	defer d.Close()

	if err := d.Update(func(tx *Transaction) error {
		if _, err := tx.CreateTree("a"); err != nil {
			return err
		}
		_, err := tx.CreateTree("b")
		return err
	}); err != nil {
		t.Fatal(err)
	}
	err := d.Update(func(tx *Transaction) error {
		return tx.RenameTree("a", "b")
	})
	if err != errmsg.TreeExists {
		t.Fatalf("expected tree exists error, got %v", err)
	}
}

func TestRollbackDiscardsTreeChanges(t *testing.T) {
	d := openTestDB(t, testConfig(t))
	defer d.Close()

	if err := d.Update(func(tx *Transaction) error {
		tr, err := tx.CreateTree("t")
		if err != nil {
			return err
		}
		return tr.Put([]byte("k"), []byte("old"))
	}); err != nil {
		t.Fatal(err)
	}

	tx, err := d.NewTransaction(transaction.ReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := tx.ReadTree("t")
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Put([]byte("k"), []byte("new")); err != nil {
		t.Fatal(err)
	}
	tx.Rollback()
	tx.Dispose()

	if err := d.View(func(tx *Transaction) error {
		tr, err := tx.ReadTree("t")
		if err != nil {
			return err
		}
		v, _, err := tr.Get([]byte("k"))
		if err != nil {
			return err
		}
		if !bytes.Equal(v, []byte("old")) {
			return fmt.Errorf("rollback leaked: %q", v)
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

func TestParticipants(t *testing.T) {
	d := openTestDB(t, testConfig(t))
	defer d.Close()

	prepared := false
	if err := d.Update(func(tx *Transaction) error {
		tx.RegisterParticipant(participantFunc(func(tx *Transaction) error {
			prepared = true
			tr, err := tx.CreateTree("audit")
			if err != nil {
				return err
			}
			return tr.Put([]byte("who"), []byte("participant"))
		}))
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if !prepared {
		t.Fatal("participant not invoked")
	}
	if err := d.View(func(tx *Transaction) error {
		tr, err := tx.ReadTree("audit")
		if err != nil {
			return err
		}
		if _, ok, err := tr.Get([]byte("who")); err != nil || !ok {
			return fmt.Errorf("participant write lost: %v %v", ok, err)
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

type participantFunc func(tx *Transaction) error

func (f participantFunc) PrepareForCommit(tx *Transaction) error { return f(tx) }

func TestFlusherAppliesJournal(t *testing.T) {
	d := openTestDB(t, testConfig(t))
	defer d.Close()

	if err := d.Update(func(tx *Transaction) error {
		tr, err := tx.CreateTree("t")
		if err != nil {
			return err
		}
		return tr.Put([]byte("k"), []byte("v"))
	}); err != nil {
		t.Fatal(err)
	}
	want := d.e.LastCommitted()
	deadline := time.Now().Add(5 * time.Second)
	for {
		lastTx, _, _ := d.pgr.HeaderState()
		if lastTx >= want {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("flusher never applied tx %v (at %v)", want, lastTx)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConcurrentReadersWithWriter(t *testing.T) {
	d := openTestDB(t, testConfig(t))
	defer d.Close()

	if err := d.Update(func(tx *Transaction) error {
		tr, err := tx.CreateTree("c")
		if err != nil {
			return err
		}
		return tr.Put([]byte("k"), []byte("value-0"))
	}); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if err := d.Update(func(tx *Transaction) error {
				tr, err := tx.ReadTree("c")
				if err != nil {
					return err
				}
				return tr.Put([]byte("k"), []byte(fmt.Sprintf("value-%v", i)))
			}); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	for r := 0; r < 20; r++ {
		if err := d.View(func(tx *Transaction) error {
			tr, err := tx.ReadTree("c")
			if err != nil {
				return err
			}
			first, ok, err := tr.Get([]byte("k"))
			if err != nil || !ok {
				return fmt.Errorf("read failed: %v %v", ok, err)
			}
			// snapshot isolation: repeated reads are identical
			for i := 0; i < 5; i++ {
				again, ok, err := tr.Get([]byte("k"))
				if err != nil || !ok || !bytes.Equal(first, again) {
					return fmt.Errorf("snapshot drifted: %q -> %q", first, again)
				}
			}
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.hcl")
	body := `
dir_name = "custom"
page_size = 8192
max_storage_size = 1048576
compress_journal = true
flush_cycle_ms = 250
`
	if err := os.WriteFile(path, []byte(body), 0664); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DirName != "custom" || cfg.PageSize != 8192 || cfg.MaxStorageSize != 1048576 {
		t.Fatalf("config %+v", cfg)
	}
	if !cfg.CompressJournal || cfg.FlushCycle != 250*time.Millisecond {
		t.Fatalf("config %+v", cfg)
	}
	// defaults survive for unset fields
	if cfg.ScratchFileSize != DefaultConfig().ScratchFileSize {
		t.Fatalf("scratch file size %v", cfg.ScratchFileSize)
	}
}

func TestCompressedJournalRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	cfg.CompressJournal = true
	d := openTestDB(t, cfg)
	defer d.Close()

	big := bytes.Repeat([]byte("compress me "), 1000)
	if err := d.Update(func(tx *Transaction) error {
		tr, err := tx.CreateTree("blob")
		if err != nil {
			return err
		}
		return tr.Put([]byte("k"), big)
	}); err != nil {
		t.Fatal(err)
	}
	if err := d.View(func(tx *Transaction) error {
		tr, err := tx.ReadTree("blob")
		if err != nil {
			return err
		}
		v, ok, err := tr.Get([]byte("k"))
		if err != nil || !ok || !bytes.Equal(v, big) {
			return fmt.Errorf("compressed payload mismatch: %v %v", ok, err)
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

func TestQuotaThroughFacade(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxStorageSize = 5 * cfg.PageSize
	d := openTestDB(t, cfg)
	defer d.Close()

	tx, err := d.NewLowLevelTransaction(transaction.ReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Dispose()
	for i := 0; i < 5; i++ {
		if _, err := tx.AllocatePage(1); err != nil {
			t.Fatalf("allocation %v: %v", i, err)
		}
	}
	if _, err := tx.AllocatePage(1); err != errmsg.QuotaExceeded {
		t.Fatalf("expected quota error, got %v", err)
	}
}
