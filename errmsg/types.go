package errmsg

import "errors"

var (
	NotExist               = errors.New("not exist")
	TreeExists             = errors.New("tree already exists")
	ReadFailed             = errors.New("read failed")
	WriteFailed            = errors.New("write failed")
	BadHeader              = errors.New("bad file header")
	OutOfSpace             = errors.New("out of space")
	OutOfRange             = errors.New("page number out of range")
	ObjectDisposed         = errors.New("object disposed")
	InvalidOperation       = errors.New("invalid operation")
	InvalidAllocation      = errors.New("invalid allocation")
	QuotaExceeded          = errors.New("quota exceeded")
	ScratchBufferFull      = errors.New("scratch buffer full")
	ReadOnlyTransaction    = errors.New("read-only transaction")
	DuplicateTransactionId = errors.New("duplicate transaction id")
	CatastrophicFailure    = errors.New("catastrophic failure")
)
