package page

import (
	"encoding/binary"

	"github.com/Corvalius/ravendb/constant"
	"github.com/Corvalius/ravendb/errmsg"
)

const (
	TreeHeaderSize = 17
	TxHeaderSize   = 69 + TreeHeaderSize
)

func (h *TreeHeader) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:], uint64(h.RootPage))
	binary.LittleEndian.PutUint64(buf[8:], uint64(h.Entries))
	buf[16] = h.Flags
}

func DecodeTreeHeader(buf []byte) TreeHeader {
	return TreeHeader{
		RootPage: int64(binary.LittleEndian.Uint64(buf[0:])),
		Entries:  int64(binary.LittleEndian.Uint64(buf[8:])),
		Flags:    buf[16],
	}
}

func (h *TxHeader) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], h.Marker)
	binary.LittleEndian.PutUint64(buf[4:], uint64(h.Id))
	binary.LittleEndian.PutUint64(buf[12:], uint64(h.NextPageNumber))
	binary.LittleEndian.PutUint64(buf[20:], uint64(h.LastPageNumber))
	binary.LittleEndian.PutUint64(buf[28:], uint64(h.PageCount))
	binary.LittleEndian.PutUint64(buf[36:], uint64(h.UncompressedSize))
	binary.LittleEndian.PutUint64(buf[44:], uint64(h.CompressedSize))
	binary.LittleEndian.PutUint64(buf[52:], h.Hash)
	binary.LittleEndian.PutUint64(buf[60:], uint64(h.TimeStamp))
	buf[68] = h.MarkerBits
	h.Root.Encode(buf[69:])
}

func DecodeTxHeader(buf []byte) (*TxHeader, error) {
	if len(buf) < TxHeaderSize {
		return nil, errmsg.BadHeader
	}
	h := &TxHeader{
		Marker:           binary.LittleEndian.Uint32(buf[0:]),
		Id:               int64(binary.LittleEndian.Uint64(buf[4:])),
		NextPageNumber:   int64(binary.LittleEndian.Uint64(buf[12:])),
		LastPageNumber:   int64(binary.LittleEndian.Uint64(buf[20:])),
		PageCount:        int64(binary.LittleEndian.Uint64(buf[28:])),
		UncompressedSize: int64(binary.LittleEndian.Uint64(buf[36:])),
		CompressedSize:   int64(binary.LittleEndian.Uint64(buf[44:])),
		Hash:             binary.LittleEndian.Uint64(buf[52:]),
		TimeStamp:        int64(binary.LittleEndian.Uint64(buf[60:])),
		MarkerBits:       buf[68],
		Root:             DecodeTreeHeader(buf[69:]),
	}
	if h.Marker != constant.TxHeaderMarker {
		return nil, errmsg.BadHeader
	}
	return h, nil
}
