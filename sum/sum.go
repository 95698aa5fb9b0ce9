package sum

import (
	"github.com/cespare/xxhash/v2"
)

func Sum(data []byte) uint64 {
	return xxhash.Sum64(data)
}
