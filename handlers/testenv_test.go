package handlers

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bvisor-project/bvisor/fdtable"
	"github.com/bvisor-project/bvisor/membridge"
	"github.com/bvisor-project/bvisor/overlay"
	"github.com/bvisor-project/bvisor/pathrouter"
	"github.com/bvisor-project/bvisor/procmodel"
)

// testEnv is a minimal Env for driving handlers without a real
// supervisor.State, mirroring the dispatcher package's own fakeEnv.
type testEnv struct {
	registry *procmodel.Registry
	tables   map[procmodel.AbsTgid]*fdtable.Table
	overlay  *overlay.Root
	router   *pathrouter.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ov, err := overlay.NewForTest(t.TempDir())
	if err != nil {
		t.Fatalf("overlay.NewForTest: %v", err)
	}
	t.Cleanup(func() { ov.Close() })

	reg := procmodel.New()
	reg.RegisterInitial(1)
	return &testEnv{
		registry: reg,
		tables:   make(map[procmodel.AbsTgid]*fdtable.Table),
		overlay:  ov,
		router:   pathrouter.New(ov.Base()),
	}
}

func (e *testEnv) Bridge() *membridge.Bridge  { return membridge.New(true) }
func (e *testEnv) Router() *pathrouter.Router { return e.router }
func (e *testEnv) Overlay() *overlay.Root     { return e.overlay }
func (e *testEnv) Registry() *procmodel.Registry { return e.registry }
func (e *testEnv) Table(tgid procmodel.AbsTgid) *fdtable.Table {
	tb, ok := e.tables[tgid]
	if !ok {
		tb = fdtable.New()
		e.tables[tgid] = tb
	}
	return tb
}
func (e *testEnv) DropTable(tgid procmodel.AbsTgid) { delete(e.tables, tgid) }
func (e *testEnv) Uptime() time.Duration            { return 0 }
func (e *testEnv) Log() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}
