// Package fdtable implements the virtual FD table (spec.md §4.6): a
// per-thread-group map from small integer descriptors the guest sees to
// reference-counted filebackend.Handle values, each new one taking the
// lowest free number at or above 3, the way the teacher's fileset code never needed to (ptrace
// never virtualises FD numbers) but every seccomp-notify style sandbox
// must, since a fabricated read/write/close has to speak in FDs the
// guest itself chose never to see host numbers for.
package fdtable

import (
	"sync"

	"github.com/bvisor-project/bvisor/errno"
	"github.com/bvisor-project/bvisor/filebackend"
)

// firstVfd is the first virtual FD ever handed out; 0/1/2 are left to
// the guest's own stdio, which the supervisor never intercepts (the
// handlers package passes fd 0/1/2 operations straight through as
// CONTINUE before ever touching a Table).
const firstVfd = 3

// entry is one slot: a handle plus its own file offset and the number of
// virtual FDs currently referencing it.
type entry struct {
	handle   filebackend.Handle
	offset   int64
	refs     int
	writable bool
}

// Table is one thread group's virtual FD table. Threads of one thread
// group share the same *Table pointer; a clone that starts a new thread
// group instead gets an independent Table produced by Fork, whose entries still share the
// underlying Handle (and hence file offset) with the parent's, matching
// POSIX fork() semantics for open file descriptions.
type Table struct {
	mu      sync.Mutex
	entries map[int]*entry
}

// New returns an empty table.
func New() *Table {
	return &Table{entries: make(map[int]*entry)}
}

// lowestFree scans for the lowest unused vfd at or above firstVfd. Callers
// hold t.mu.
func (t *Table) lowestFree() int {
	vfd := firstVfd
	for {
		if _, ok := t.entries[vfd]; !ok {
			return vfd
		}
		vfd++
	}
}

// Insert allocates the lowest free virtual FD for handle and returns it —
// spec.md's insert must yield the lowest unused value at or above 3, so a
// vfd freed by Remove is reused before the table grows further. writable
// records whether the guest's open(2) requested a write-capable mode;
// GetWritable consults it so a handle opened read-only never reaches a
// backend's WriteAt, regardless of what that backend would otherwise do.
func (t *Table) Insert(h filebackend.Handle, writable bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	vfd := t.lowestFree()
	t.entries[vfd] = &entry{handle: h, refs: 1, writable: writable}
	return vfd
}

// Get returns the handle and current offset for vfd.
func (t *Table) Get(vfd int) (filebackend.Handle, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[vfd]
	if !ok {
		return nil, 0, errno.EBADF
	}
	return e.handle, e.offset, nil
}

// GetWritable is Get plus a write-mode gate: a vfd opened without a write
// flag never reaches a backend's WriteAt, so Passthrough/Cow/Tmp's own
// read-only enforcement is a backstop rather than the only line of
// defense (spec.md §4.5's "opened without a write flag" half of the Cow
// invariant would otherwise be unreachable, since Cow.WriteAt promotes to
// writecopy mode unconditionally on first call).
func (t *Table) GetWritable(vfd int) (filebackend.Handle, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[vfd]
	if !ok {
		return nil, 0, errno.EBADF
	}
	if !e.writable {
		return nil, 0, errno.EROFS
	}
	return e.handle, e.offset, nil
}

// Advance moves vfd's sequential offset forward by n bytes, as read(2)
// and write(2) do; readAt/writeAt-style handlers that pass an explicit
// offset should not call this.
func (t *Table) Advance(vfd int, n int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[vfd]
	if !ok {
		return errno.EBADF
	}
	e.offset += n
	return nil
}

// Remove drops one reference to vfd's handle, closing it once no
// virtual FD (in this table or a table produced from it by Fork) refers to it
// any longer.
func (t *Table) Remove(vfd int) error {
	t.mu.Lock()
	e, ok := t.entries[vfd]
	if !ok {
		t.mu.Unlock()
		return errno.EBADF
	}
	delete(t.entries, vfd)
	e.refs--
	closeNow := e.refs == 0
	t.mu.Unlock()

	if closeNow {
		return e.handle.Close()
	}
	return nil
}

// Dup installs a second virtual FD, newVfd (if non-negative) or the next
// free one, pointing at the same entry (and hence the same shared
// offset) as vfd — dup(2)/dup2(2) semantics.
func (t *Table) Dup(vfd int, newVfd int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[vfd]
	if !ok {
		return 0, errno.EBADF
	}
	if newVfd < 0 {
		newVfd = t.lowestFree()
	} else if old, exists := t.entries[newVfd]; exists {
		old.refs--
		if old.refs == 0 {
			old.handle.Close()
		}
	}
	e.refs++
	t.entries[newVfd] = e
	return newVfd, nil
}

// Fork returns a new Table with the same entries as t, each entry
// sharing its Handle and offset with the original (as os-level fork
// shares open file descriptions), for a child that clones without
// CLONE_FILES.
func (t *Table) Fork() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	nt := &Table{entries: make(map[int]*entry, len(t.entries))}
	for vfd, e := range t.entries {
		e.refs++
		nt.entries[vfd] = e
	}
	return nt
}

// CloseAll releases every entry in the table, used when a thread group
// exits.
func (t *Table) CloseAll() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[int]*entry)
	t.mu.Unlock()

	closed := make(map[*entry]bool)
	for _, e := range entries {
		e.refs--
		if e.refs == 0 && !closed[e] {
			closed[e] = true
			e.handle.Close()
		}
	}
}
