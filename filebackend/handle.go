// Package filebackend implements the four file handle variants a routed
// path can resolve to (spec.md §4.5): Passthrough (read-only host access),
// Cow (copy-on-write over a host file), Tmp (a private file in the
// overlay), and Proc (rendered virtual /proc content). Each is grounded
// on the same "open once, read/write/stat/close through one interface"
// shape the teacher's runner.Runner and pkg/forkexec.Runner use for their
// own resource lifecycles.
package filebackend

import "github.com/bvisor-project/bvisor/errno"

// Kind identifies which variant a Handle is; pathrouter also uses it to
// name the backend a path routes to.
type Kind int

const (
	KindPassthrough Kind = iota
	KindCow
	KindTmp
	KindProc
)

func (k Kind) String() string {
	switch k {
	case KindPassthrough:
		return "passthrough"
	case KindCow:
		return "cow"
	case KindTmp:
		return "tmp"
	case KindProc:
		return "proc"
	default:
		return "unknown"
	}
}

// Stat is the subset of file metadata the fstat/fstatat/faccessat
// handlers need to fabricate a struct stat for the guest.
type Stat struct {
	Mode  uint32
	Size  int64
	Ino   uint64
	IsDir bool
}

// Handle is an open file description backing one or more virtual FDs.
// Offsets are owned by the caller (fdtable), not the Handle — a Handle
// only knows how to service reads/writes at an explicit offset, which is
// what lets fdtable implement dup/CLONE_FILES sharing (same Handle,
// independent or shared offset per spec.md §4.6) without the backend
// needing to know which case it's in.
type Handle interface {
	Kind() Kind
	ReadAt(buf []byte, off int64) (int, error)
	WriteAt(buf []byte, off int64) (int, error)
	Statx() (Stat, error)
	Close() error
}

// ErrReadOnly is returned by WriteAt on a handle that never accepts
// writes (Passthrough, Proc).
var ErrReadOnly = errno.EROFS
