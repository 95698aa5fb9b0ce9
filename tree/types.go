package tree

import (
	"github.com/Corvalius/ravendb/page"
	"github.com/Corvalius/ravendb/transaction"
)

// Tree is a named subtree: a sorted key/value payload serialized into
// one overflow run, referenced by a TreeHeader. Higher-level page
// structures replace this payload without touching the core.
type Tree struct {
	name   string
	hdr    page.TreeHeader
	ll     *transaction.LowLevel
	mp     map[string][]byte
	loaded bool
	dirty  bool
}

// Directory is the root-objects tree: it maps tree names to tree
// headers and its own header travels in every transaction header.
type Directory struct {
	ll    *transaction.LowLevel
	inner *Tree
}
