package journal

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/Corvalius/ravendb/constant"
	"github.com/Corvalius/ravendb/errmsg"
	"github.com/Corvalius/ravendb/pager"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

func fileName(idx int64, dir string) string {
	return fmt.Sprintf("%s%c%v.JOURNAL", dir, os.PathSeparator, idx)
}

func newJfile(id int64, dir string, pageSize, cap int64, envId uuid.UUID) (*jfile, error) {
	path := fileName(id, dir)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0664)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)
	if err := unix.Ftruncate(fd, cap); err != nil {
		return nil, err
	}
	buf, err := unix.Mmap(fd, 0, int(cap), unix.PROT_WRITE|unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	copy(buf, constant.JournalFileMagic)
	binary.LittleEndian.PutUint32(buf[4:], constant.FormatVersion)
	binary.LittleEndian.PutUint64(buf[8:], uint64(id))
	copy(buf[16:], envId[:])
	return &jfile{
		id:    id,
		path:  path,
		cap:   cap,
		size:  pageSize,
		state: pager.NewState(buf),
		mp:    make(map[int64][]version),
	}, nil
}

func openJfile(id int64, dir string, envId uuid.UUID) (*jfile, error) {
	path := fileName(id, dir)
	fd, err := unix.Open(path, unix.O_RDWR, 0664)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, err
	}
	buf, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_WRITE|unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	f := &jfile{
		id:    id,
		path:  path,
		cap:   st.Size,
		state: pager.NewState(buf),
		mp:    make(map[int64][]version),
	}
	if string(buf[:4]) != constant.JournalFileMagic {
		f.state.Release()
		return nil, errmsg.BadHeader
	}
	if int64(binary.LittleEndian.Uint64(buf[8:])) != id {
		f.state.Release()
		return nil, errmsg.BadHeader
	}
	if fid, err := uuid.FromBytes(buf[16:32]); err != nil || fid != envId {
		f.state.Release()
		return nil, errmsg.BadHeader
	}
	return f, nil
}

func (f *jfile) buffer() []byte {
	return f.state.Buffer()
}

func (f *jfile) flush() error {
	return unix.Msync(f.state.Buffer(), unix.MS_SYNC)
}

// alloc reserves size bytes at the tail, or fails when the file is full.
func (f *jfile) alloc(size int64) (int64, error) {
	curr := f.size
	if curr+size > f.cap {
		return 0, errmsg.OutOfSpace
	}
	f.size += size
	return curr, nil
}
