package db

import (
	"github.com/Corvalius/ravendb/errmsg"
	"github.com/Corvalius/ravendb/transaction"
	"github.com/Corvalius/ravendb/tree"
)

func (t *Transaction) LowLevel() *transaction.LowLevel {
	return t.ll
}

// ReadTree opens a named tree; the instance is cached for the
// transaction's lifetime.
func (t *Transaction) ReadTree(name string) (*tree.Tree, error) {
	if tr, ok := t.trees[name]; ok {
		return tr, nil
	}
	hdr, ok, err := t.dir.Get(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errmsg.NotExist
	}
	tr := tree.Open(t.ll, name, hdr)
	t.trees[name] = tr
	return tr, nil
}

// CreateTree opens the named tree, creating it if it does not exist.
func (t *Transaction) CreateTree(name string) (*tree.Tree, error) {
	if tr, ok := t.trees[name]; ok {
		return tr, nil
	}
	hdr, ok, err := t.dir.Get(name)
	if err != nil {
		return nil, err
	}
	if ok {
		tr := tree.Open(t.ll, name, hdr)
		t.trees[name] = tr
		return tr, nil
	}
	if t.ll.Flags() != transaction.ReadWrite {
		return nil, errmsg.ReadOnlyTransaction
	}
	tr := tree.Create(t.ll, name)
	t.trees[name] = tr
	return tr, nil
}

func (t *Transaction) DeleteTree(name string) error {
	if t.ll.Flags() != transaction.ReadWrite {
		return errmsg.ReadOnlyTransaction
	}
	hdr, ok, err := t.dir.Get(name)
	if err != nil {
		return err
	}
	if !ok {
		return errmsg.NotExist
	}
	if hdr.RootPage != 0 {
		if err := t.ll.FreePageOnCommit(hdr.RootPage); err != nil {
			return err
		}
	}
	delete(t.trees, name)
	return t.dir.Delete(name)
}

func (t *Transaction) RenameTree(oldName, newName string) error {
	if t.ll.Flags() != transaction.ReadWrite {
		return errmsg.ReadOnlyTransaction
	}
	if _, ok, err := t.dir.Get(newName); err != nil {
		return err
	} else if ok {
		return errmsg.TreeExists
	}
	hdr, ok, err := t.dir.Get(oldName)
	if err != nil {
		return err
	}
	if !ok {
		return errmsg.NotExist
	}
	if tr, cached := t.trees[oldName]; cached {
		delete(t.trees, oldName)
		t.trees[newName] = tr
	}
	if err := t.dir.Delete(oldName); err != nil {
		return err
	}
	return t.dir.Put(newName, hdr)
}

func (t *Transaction) RegisterParticipant(p Participant) {
	t.participants = append(t.participants, p)
}

// Commit serializes every modified tree's root into the root directory,
// then commits through the low-level transaction.
func (t *Transaction) Commit() error {
	if t.ll.Flags() == transaction.Read {
		return t.ll.Commit()
	}
	for _, p := range t.participants {
		if err := p.PrepareForCommit(t); err != nil {
			return err
		}
	}
	for name, tr := range t.trees {
		if !tr.IsModified() {
			continue
		}
		hdr, err := tr.Save()
		if err != nil {
			return err
		}
		if err := t.dir.Put(name, hdr); err != nil {
			return err
		}
	}
	if err := t.dir.Save(); err != nil {
		return err
	}
	return t.ll.Commit()
}

func (t *Transaction) Rollback() error {
	return t.ll.Rollback()
}

func (t *Transaction) Dispose() {
	t.ll.Dispose()
}
