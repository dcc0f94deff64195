package filebackend

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bvisor-project/bvisor/errno"
)

// Tmp is a private file living entirely inside the overlay's tmp/
// subtree — never backed by anything on the host outside the overlay
// (spec.md §4.4's `/tmp/*` routing rule).
type Tmp struct {
	f *os.File
}

// TmpMirrorPath maps a guest path under a Tmp-routed prefix to its
// flattened overlay filename under tmpDir — the same name CreateTmp
// opens, and what Fstatat/Faccessat must stat instead of the guest's own
// (never real) path.
func TmpMirrorPath(tmpDir, guestPath string) string {
	return filepath.Join(tmpDir, fmt.Sprintf("%x", fnv1a(guestPath)))
}

// CreateTmp creates (or opens, per flags) a file named guestPath under
// tmpDir. guestPath is the path as the guest sees it; it is flattened
// into a single overlay-local filename so nested guest tmp paths never
// need real host directories created for them.
func CreateTmp(tmpDir, guestPath string, create bool) (*Tmp, error) {
	name := TmpMirrorPath(tmpDir, guestPath)
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(name, flags, 0o600)
	if err != nil {
		return nil, translateOpenErr(err)
	}
	return &Tmp{f: f}, nil
}

func (t *Tmp) Kind() Kind { return KindTmp }

func (t *Tmp) ReadAt(buf []byte, off int64) (int, error) {
	n, err := t.f.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, translateIOErr(err)
	}
	return n, nil
}

func (t *Tmp) WriteAt(buf []byte, off int64) (int, error) {
	n, err := t.f.WriteAt(buf, off)
	if err != nil {
		return n, translateIOErr(err)
	}
	return n, nil
}

func (t *Tmp) Statx() (Stat, error) {
	fi, err := t.f.Stat()
	if err != nil {
		return Stat{}, errno.EIO
	}
	return Stat{Mode: uint32(fi.Mode()), Size: fi.Size(), IsDir: fi.IsDir()}, nil
}

func (t *Tmp) Close() error {
	return t.f.Close()
}

// fnv1a hashes a path to a stable flattened filename for its tmp entry.
func fnv1a(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
