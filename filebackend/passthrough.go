package filebackend

import (
	"errors"
	"io"
	"os"

	"github.com/bvisor-project/bvisor/errno"
)

// Passthrough grants direct read-only access to a host file, for paths
// the router judged safe to expose as-is (spec.md §4.4/§4.5).
type Passthrough struct {
	f *os.File
}

// OpenPassthrough opens path read-only on the host.
func OpenPassthrough(path string) (*Passthrough, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, translateOpenErr(err)
	}
	return &Passthrough{f: f}, nil
}

func (p *Passthrough) Kind() Kind { return KindPassthrough }

func (p *Passthrough) ReadAt(buf []byte, off int64) (int, error) {
	n, err := p.f.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, translateIOErr(err)
	}
	return n, nil
}

func (p *Passthrough) WriteAt(buf []byte, off int64) (int, error) {
	return 0, ErrReadOnly
}

func (p *Passthrough) Statx() (Stat, error) {
	fi, err := p.f.Stat()
	if err != nil {
		return Stat{}, errno.EIO
	}
	return Stat{Mode: uint32(fi.Mode()), Size: fi.Size(), IsDir: fi.IsDir()}, nil
}

func (p *Passthrough) Close() error {
	return p.f.Close()
}

func translateOpenErr(err error) error {
	if e, ok := errno.FromSyscall(err); ok {
		return e
	}
	return errno.EIO
}

func translateIOErr(err error) error {
	if e, ok := errno.FromSyscall(err); ok {
		return e
	}
	return errno.EIO
}
