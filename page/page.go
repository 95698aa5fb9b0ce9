package page

import (
	"encoding/binary"

	"github.com/Corvalius/ravendb/constant"
)

func New(buf []byte) Page {
	return Page{buf: buf}
}

func (p Page) IsValid() bool {
	return p.buf != nil
}

func (p Page) Buffer() []byte {
	return p.buf
}

func (p Page) Data() []byte {
	return p.buf[constant.PageHeaderSize:]
}

func (p Page) PageNumber() int64 {
	return int64(binary.LittleEndian.Uint64(p.buf[constant.PageNumberOff:]))
}

func (p Page) SetPageNumber(pn int64) {
	binary.LittleEndian.PutUint64(p.buf[constant.PageNumberOff:], uint64(pn))
}

func (p Page) OverflowSize() uint32 {
	return binary.LittleEndian.Uint32(p.buf[constant.OverflowSizeOff:])
}

func (p Page) SetOverflowSize(n uint32) {
	binary.LittleEndian.PutUint32(p.buf[constant.OverflowSizeOff:], n)
}

func (p Page) Flags() byte {
	return p.buf[constant.FlagsOff]
}

func (p Page) SetFlags(f byte) {
	p.buf[constant.FlagsOff] = f
}

func (p Page) TreeFlags() byte {
	return p.buf[constant.TreeFlagsOff]
}

func (p Page) SetTreeFlags(f byte) {
	p.buf[constant.TreeFlagsOff] = f
}

func (p Page) IsOverflow() bool {
	return p.Flags()&constant.Overflow != 0
}

// NumberOfPages returns how many pages a payload of byteCount bytes
// occupies.
func NumberOfPages(byteCount, pageSize int64) int64 {
	return (byteCount + pageSize - 1) / pageSize
}
