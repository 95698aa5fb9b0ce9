package db

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"syscall"

	"github.com/Corvalius/ravendb/env"
	"github.com/Corvalius/ravendb/freespace"
	"github.com/Corvalius/ravendb/journal"
	"github.com/Corvalius/ravendb/pager"
	"github.com/Corvalius/ravendb/scratch"
	"github.com/Corvalius/ravendb/transaction"
	"github.com/Corvalius/ravendb/tree"
	"github.com/nnsgmsone/damrey/logger"
)

func Open(cfg Config) (*db, error) {
	if err := enlargelimit(); err != nil {
		return nil, err
	}
	if err := checkDir(cfg.DirName); err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogWriter, "pagedb")
	var e *env.Env
	fatal := func(err error) {
		if e != nil {
			e.Latch(err)
		}
	}
	pgr, err := pager.New(dataName(cfg.DirName), cfg.PageSize, cfg.MaxStorageSize, fatal)
	if err != nil {
		return nil, err
	}
	jrnl, rec, err := journal.Open(cfg.DirName, cfg.PageSize, cfg.JournalFileSize, cfg.CompressJournal, pgr.EnvironmentId(), cfg.CacheSize, log)
	if err != nil {
		pgr.Close()
		return nil, err
	}
	flushedTx, nextPage, root := pgr.HeaderState()
	if flushedTx > rec.LastTxId {
		rec.LastTxId = flushedTx
		rec.NextPageNumber = nextPage
		rec.Root = root
	}
	st := env.State{NextPageNumber: rec.NextPageNumber, Root: rec.Root}
	e = env.New(pgr.EnvironmentId(), st, rec.LastTxId, log)
	pool, err := scratch.New(cfg.PageSize, cfg.ScratchFileSize, cfg.MaxScratchFiles, e.OldestActiveTransaction)
	if err != nil {
		jrnl.Close()
		pgr.Close()
		return nil, err
	}
	fsp := freespace.New()
	d := &db{
		e:    e,
		cfg:  cfg,
		log:  log,
		pgr:  pgr,
		fsp:  fsp,
		pool: pool,
		jrnl: jrnl,
	}
	d.fl = newFlusher(cfg.FlushCycle, flushedTx, e, pgr, jrnl, pool, fsp, log)
	go d.fl.Run()
	return d, nil
}

func (d *db) Close() error {
	d.fl.Stop()
	d.jrnl.Close()
	d.pool.Close()
	return d.pgr.Close()
}

func (d *db) Environment() *env.Env {
	return d.e
}

func (d *db) NewLowLevelTransaction(flags transaction.Flags) (*transaction.LowLevel, error) {
	switch flags {
	case transaction.ReadWrite:
		d.e.LockWriter()
		id := d.e.NextTransactionId()
		ll, err := transaction.New(d.e, id, flags, d.pgr, d.pool, d.jrnl, d.fsp, d.log)
		if err != nil {
			d.e.UnlockWriter()
			return nil, err
		}
		ll.OnDispose(d.e.UnlockWriter)
		return ll, nil
	default:
		return transaction.New(d.e, d.e.LastCommitted(), flags, d.pgr, d.pool, d.jrnl, d.fsp, d.log)
	}
}

func (d *db) NewTransaction(flags transaction.Flags) (*Transaction, error) {
	ll, err := d.NewLowLevelTransaction(flags)
	if err != nil {
		return nil, err
	}
	return &Transaction{
		ll:    ll,
		dir:   tree.OpenDirectory(ll),
		trees: make(map[string]*tree.Tree),
	}, nil
}

func (d *db) Update(fn func(*Transaction) error) error {
	tx, err := d.NewTransaction(transaction.ReadWrite)
	if err != nil {
		return err
	}
	defer tx.Dispose()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *db) View(fn func(*Transaction) error) error {
	tx, err := d.NewTransaction(transaction.Read)
	if err != nil {
		return err
	}
	defer tx.Dispose()
	return fn(tx)
}

func dataName(dir string) string {
	return fmt.Sprintf("%s%cDATA", dir, os.PathSeparator)
}

func checkDir(dir string) error {
	st, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return os.Mkdir(dir, os.FileMode(0775))
	}
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return errors.New("not a directory")
	}
	if st.Mode()&0700 != 0700 {
		return errors.New("permission denied")
	}
	return nil
}

func enlargelimit() error {
	var rlimit syscall.Rlimit

	runtime.GOMAXPROCS(runtime.NumCPU())
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlimit); err != nil {
		return err
	}
	rlimit.Cur = rlimit.Max
	return syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rlimit)
}
