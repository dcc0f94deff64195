package fdtable

import (
	"testing"

	"github.com/bvisor-project/bvisor/errno"
	"github.com/bvisor-project/bvisor/filebackend"
)

type countingHandle struct {
	closed *int
}

func (h *countingHandle) Kind() filebackend.Kind { return filebackend.KindTmp }
func (h *countingHandle) ReadAt(buf []byte, off int64) (int, error)  { return 0, nil }
func (h *countingHandle) WriteAt(buf []byte, off int64) (int, error) { return len(buf), nil }
func (h *countingHandle) Statx() (filebackend.Stat, error)           { return filebackend.Stat{}, nil }
func (h *countingHandle) Close() error {
	*h.closed++
	return nil
}

func TestInsertStartsAtThree(t *testing.T) {
	tbl := New()
	vfd := tbl.Insert(&countingHandle{closed: new(int)}, true)
	if vfd != 3 {
		t.Fatalf("first vfd = %d, want 3", vfd)
	}
}

func TestGetWritableRejectsReadOnlyEntry(t *testing.T) {
	tbl := New()
	vfd := tbl.Insert(&countingHandle{closed: new(int)}, false)
	if _, _, err := tbl.GetWritable(vfd); err != errno.EROFS {
		t.Fatalf("GetWritable on read-only entry = %v, want EROFS", err)
	}
	if _, _, err := tbl.Get(vfd); err != nil {
		t.Fatalf("Get on read-only entry should still succeed: %v", err)
	}

	wvfd := tbl.Insert(&countingHandle{closed: new(int)}, true)
	if _, _, err := tbl.GetWritable(wvfd); err != nil {
		t.Fatalf("GetWritable on writable entry: %v", err)
	}
}

func TestRemoveClosesOnLastReference(t *testing.T) {
	closed := 0
	tbl := New()
	vfd := tbl.Insert(&countingHandle{closed: &closed}, true)

	dupped, err := tbl.Dup(vfd, -1)
	if err != nil {
		t.Fatalf("Dup: %v", err)
	}

	if err := tbl.Remove(vfd); err != nil {
		t.Fatalf("Remove(vfd): %v", err)
	}
	if closed != 0 {
		t.Fatalf("handle closed with a live dup outstanding")
	}

	if err := tbl.Remove(dupped); err != nil {
		t.Fatalf("Remove(dupped): %v", err)
	}
	if closed != 1 {
		t.Fatalf("closed = %d, want 1 after last reference dropped", closed)
	}
}

func TestForkSharesOffset(t *testing.T) {
	tbl := New()
	vfd := tbl.Insert(&countingHandle{closed: new(int)}, true)
	tbl.Advance(vfd, 10)

	child := tbl.Fork()
	if _, off, err := child.Get(vfd); err != nil || off != 10 {
		t.Fatalf("child offset = %d, %v; want 10, nil", off, err)
	}

	tbl.Advance(vfd, 5)
	if _, off, _ := child.Get(vfd); off != 15 {
		t.Fatalf("child should observe the shared offset advance, got %d", off)
	}
}

func TestGetUnknownVfdIsEBADF(t *testing.T) {
	tbl := New()
	if _, _, err := tbl.Get(99); err == nil {
		t.Fatalf("expected EBADF for an unallocated vfd")
	}
}
