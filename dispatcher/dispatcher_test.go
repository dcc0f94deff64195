package dispatcher

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bvisor-project/bvisor/errno"
	"github.com/bvisor-project/bvisor/fdtable"
	"github.com/bvisor-project/bvisor/handlers"
	"github.com/bvisor-project/bvisor/membridge"
	"github.com/bvisor-project/bvisor/notif"
	"github.com/bvisor-project/bvisor/overlay"
	"github.com/bvisor-project/bvisor/pathrouter"
	"github.com/bvisor-project/bvisor/pkg/seccomp/libseccomp"
	"github.com/bvisor-project/bvisor/procmodel"
)

// fakeEnv is a minimal handlers.Env for exercising Dispatch without a
// real supervisor.State.
type fakeEnv struct {
	registry *procmodel.Registry
	tables   map[procmodel.AbsTgid]*fdtable.Table
}

func newFakeEnv() *fakeEnv {
	reg := procmodel.New()
	reg.RegisterInitial(1)
	return &fakeEnv{registry: reg, tables: make(map[procmodel.AbsTgid]*fdtable.Table)}
}

func (e *fakeEnv) Bridge() *membridge.Bridge     { return membridge.New(true) }
func (e *fakeEnv) Router() *pathrouter.Router    { return pathrouter.New("/nonexistent-overlay") }
func (e *fakeEnv) Overlay() *overlay.Root        { return nil }
func (e *fakeEnv) Registry() *procmodel.Registry { return e.registry }
func (e *fakeEnv) Table(tgid procmodel.AbsTgid) *fdtable.Table {
	t, ok := e.tables[tgid]
	if !ok {
		t = fdtable.New()
		e.tables[tgid] = t
	}
	return t
}
func (e *fakeEnv) DropTable(tgid procmodel.AbsTgid) { delete(e.tables, tgid) }
func (e *fakeEnv) Uptime() time.Duration            { return 0 }
func (e *fakeEnv) Log() *logrus.Logger              { l := logrus.New(); l.Out = io.Discard; return l }

func silentEntry() *logrus.Entry {
	l := logrus.New()
	l.Out = io.Discard
	return logrus.NewEntry(l)
}

func TestDispatchRoutesModelledSyscallToHandler(t *testing.T) {
	env := newFakeEnv()
	no, err := libseccomp.ToSyscallNumber("getpid")
	if err != nil {
		t.Fatalf("ToSyscallNumber(getpid): %v", err)
	}
	n := notif.NewNotification(1, 1, int(no), [6]uint64{})

	reply := Dispatch(env, silentEntry(), n)

	if reply.How != notif.Emulated {
		t.Fatalf("expected an emulated reply from the getpid handler, got %v", reply.How)
	}
	if reply.Val != 1 {
		t.Fatalf("expected getpid to report NsTgid 1 for the initial thread, got %d", reply.Val)
	}
}

func TestDispatchPassesThroughUnmodelledSyscall(t *testing.T) {
	env := newFakeEnv()
	no, err := libseccomp.ToSyscallNumber("mmap")
	if err != nil {
		t.Fatalf("ToSyscallNumber(mmap): %v", err)
	}
	n := notif.NewNotification(2, 1, int(no), [6]uint64{})

	reply := Dispatch(env, silentEntry(), n)

	if reply.How != notif.Continue {
		t.Fatalf("expected mmap to pass through unmodified, got %v", reply.How)
	}
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	orig := Table["getpid"]
	Table["getpid"] = func(env handlers.Env, n *notif.Notification) notif.Reply { panic("boom") }
	defer func() { Table["getpid"] = orig }()

	env := newFakeEnv()
	no, _ := libseccomp.ToSyscallNumber("getpid")
	n := notif.NewNotification(3, 1, int(no), [6]uint64{})

	reply := Dispatch(env, silentEntry(), n)

	if reply.How != notif.Emulated || reply.Error != int32(errno.ENOSYS) {
		t.Fatalf("expected a panic to be recovered into ENOSYS, got %+v", reply)
	}
}

func TestDispatchUnknownSyscallNumberPassesThrough(t *testing.T) {
	env := newFakeEnv()
	n := notif.NewNotification(4, 1, 999999, [6]uint64{})

	reply := Dispatch(env, silentEntry(), n)

	if reply.How != notif.Continue {
		t.Fatalf("expected an unresolvable syscall number to pass through, got %v", reply.How)
	}
}
