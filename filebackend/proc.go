package filebackend

import "github.com/bvisor-project/bvisor/errno"

// Proc is a read-only handle over pre-rendered virtual /proc content.
// Rendering itself happens above this package (spec.md §4.4's /proc
// router rule fires before any namespace lookup is available here) —
// Proc only serves the bytes it was handed, the same way Passthrough
// serves a host file's bytes.
type Proc struct {
	content []byte
}

// NewProc wraps already-rendered content as a Proc handle.
func NewProc(content []byte) *Proc {
	return &Proc{content: content}
}

func (p *Proc) Kind() Kind { return KindProc }

func (p *Proc) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(p.content)) {
		return 0, nil
	}
	n := copy(buf, p.content[off:])
	return n, nil
}

func (p *Proc) WriteAt(buf []byte, off int64) (int, error) {
	return 0, ErrReadOnly
}

func (p *Proc) Statx() (Stat, error) {
	return Stat{Mode: 0o444, Size: int64(len(p.content))}, nil
}

func (p *Proc) Close() error { return nil }

// ErrNotRenderable is returned by the /proc renderer when asked for a
// path it doesn't recognise (spec.md §4.5's Proc backend only covers
// self, self/status, <pid> and <pid>/status).
var ErrNotRenderable = errno.ENOENT
