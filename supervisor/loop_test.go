package supervisor

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/bvisor-project/bvisor/filebackend"
	"github.com/bvisor-project/bvisor/membridge"
	"github.com/bvisor-project/bvisor/overlay"
	"github.com/bvisor-project/bvisor/pathrouter"
	"github.com/bvisor-project/bvisor/procmodel"
)

func testState(t *testing.T) *State {
	t.Helper()
	log := logrus.New()
	log.Out = io.Discard
	root, err := overlay.NewForTest(t.TempDir())
	if err != nil {
		t.Fatalf("overlay.NewForTest: %v", err)
	}
	t.Cleanup(func() { root.Close() })
	return NewState(membridge.New(true), pathrouter.New(root.Base()), root, procmodel.New(), log)
}

func TestRegisterChildThreadSharesParentTable(t *testing.T) {
	state := testState(t)
	state.registry.RegisterInitial(1)
	sup := &Supervisor{state: state, log: state.log, initialTid: 1, seenAny: true}

	sup.registerChild(1, 2, procmodel.CloneKindThread)

	pt, _ := state.registry.Get(1)
	ct, ok := state.registry.Get(2)
	if !ok {
		t.Fatal("child not registered")
	}
	if ct.Tgid != pt.Tgid {
		t.Fatalf("CLONE_THREAD child should keep parent's Tgid, got %d want %d", ct.Tgid, pt.Tgid)
	}

	parentTable := state.Table(pt.Tgid)
	vfd := parentTable.Insert(filebackend.NewProc(nil), false)

	// The child's table lookup is keyed by the same Tgid, so it must be
	// the very same *fdtable.Table instance, not a copy.
	if state.Table(ct.Tgid) != parentTable {
		t.Fatal("CLONE_THREAD child does not share its parent's fd table")
	}
	if _, _, err := state.Table(ct.Tgid).Get(vfd); err != nil {
		t.Fatalf("fd inserted via parent table not visible via child's table lookup: %v", err)
	}
}

func TestRegisterChildForkGetsIndependentTable(t *testing.T) {
	state := testState(t)
	state.registry.RegisterInitial(1)
	sup := &Supervisor{state: state, log: state.log, initialTid: 1, seenAny: true}

	parentTable := state.Table(1)
	vfd := parentTable.Insert(filebackend.NewProc(nil), false)

	sup.registerChild(1, 2, procmodel.CloneKindFork)

	ct, ok := state.registry.Get(2)
	if !ok {
		t.Fatal("child not registered")
	}
	if int(ct.Tgid) == 1 {
		t.Fatal("plain fork should start a new thread group")
	}

	childTable := state.Table(ct.Tgid)
	if childTable == parentTable {
		t.Fatal("plain fork should not share the parent's table pointer")
	}
	if _, _, err := childTable.Get(vfd); err != nil {
		t.Fatalf("forked table should still see the parent's already-open fd: %v", err)
	}
}

func TestExitGroupDropsTable(t *testing.T) {
	state := testState(t)
	state.registry.RegisterInitial(1)
	_ = state.Table(1) // force creation
	state.DropTable(1)

	state.mu.Lock()
	_, ok := state.tables[1]
	state.mu.Unlock()
	if ok {
		t.Fatal("DropTable did not remove the table entry")
	}
}
