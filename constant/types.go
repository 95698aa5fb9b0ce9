package constant

import "time"

var (
	FlushCycle = 100 * time.Millisecond
)

// TestMode turns on page hash validation and the duplicate
// transaction id guard.
var TestMode bool

const (
	DefaultPageSize = 4096
	MinPageSize     = 512
	MaxPageSize     = 1 << 16 // 64KB
)

const (
	PageHeaderSize  = 14
	PageNumberOff   = 0
	OverflowSizeOff = 8
	FlagsOff        = 12
	TreeFlagsOff    = 13
)

// page flags
const (
	Single   byte = 1 << 0
	Overflow byte = 1 << 1
)

// tree page flags
const (
	Branch    byte = 1 << 0
	Leaf      byte = 1 << 1
	Directory byte = 1 << 2
)

const (
	TxHeaderMarker = uint32(0x564E5254)
)

// transaction header marker bits
const (
	Commit byte = 1 << 0
	Lazy   byte = 1 << 1
)

const (
	HeaderPage    = int64(0)
	FirstDataPage = int64(1)
)

const (
	DataFileMagic    = "PGDB"
	JournalFileMagic = "PGJL"
	FormatVersion    = uint32(1)
)

const (
	DefaultScratchFileSize = int64(1 << 23) // 8MB
	DefaultMaxScratchFiles = 32
	DefaultJournalFileSize = int64(1 << 23) // 8MB
	DefaultCacheSize       = int64(1 << 25) // 32MB
	MaxOverflowSize        = int64(1<<31 - 2)
)
