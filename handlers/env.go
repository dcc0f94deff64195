// Package handlers implements the per-syscall handler functions spec.md
// §4.8 describes, dispatched by package dispatcher. Each handler is a
// plain function of an Env and a trapped notif.Notification, grounded on
// the teacher's tracerHandler.Handle switch (runner/ptrace/handle_linux.go)
// but working against decoded notification fields instead of ptrace
// register reads, and answering with an emulated notif.Reply instead of
// a TraceAction.
package handlers

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bvisor-project/bvisor/fdtable"
	"github.com/bvisor-project/bvisor/membridge"
	"github.com/bvisor-project/bvisor/overlay"
	"github.com/bvisor-project/bvisor/pathrouter"
	"github.com/bvisor-project/bvisor/procmodel"
)

// Env is the slice of supervisor state a handler needs. It is an
// interface, not a concrete struct, so this package never imports the
// supervisor package that assembles the real implementation — dispatcher
// and handlers sit strictly below supervisor in the dependency graph.
type Env interface {
	Bridge() *membridge.Bridge
	Router() *pathrouter.Router
	Overlay() *overlay.Root
	Registry() *procmodel.Registry
	// Table returns the virtual FD table for tgid, creating one the
	// first time a given thread group is seen.
	Table(tgid procmodel.AbsTgid) *fdtable.Table
	// DropTable discards tgid's virtual FD table once its last thread has
	// exited, so a later reused AbsTgid never inherits stale virtual FDs.
	DropTable(tgid procmodel.AbsTgid)
	// Uptime reports how long this guest run has been alive, for
	// sysinfo(2)'s synthetic uptime field.
	Uptime() time.Duration
	Log() *logrus.Logger
}

// staging is the maximum number of bytes a single read/write handler
// call moves through the membridge in one shot (spec.md §4.3's staging
// buffer cap) — larger requests simply come back as a short count, which
// looks to the guest exactly like a short read/write from a pipe.
const staging = 4096
