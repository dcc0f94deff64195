package supervisor

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bvisor-project/bvisor/dispatcher"
	"github.com/bvisor-project/bvisor/notif"
	"github.com/bvisor-project/bvisor/procmodel"
)

// Supervisor drives one guest run's notification loop.
type Supervisor struct {
	listener *notif.Listener
	state    *State
	log      *logrus.Logger

	initialTid procmodel.AbsTid
	seenAny    bool
}

// New builds a Supervisor around an already-installed listener fd and
// the guest's initial thread id.
func New(listener *notif.Listener, state *State, initialTid int) *Supervisor {
	return &Supervisor{listener: listener, state: state, log: state.log, initialTid: procmodel.AbsTid(initialTid)}
}

// Run is the notification loop: receive, dispatch, reply, until the
// guest has no threads left. It returns nil on the clean "guest exited"
// case and a non-nil error for anything that should abort the run
// (spec.md §4.1/§7 — a Recv/Send error other than "guest gone" is
// fatal, not recoverable per-notification).
func (s *Supervisor) Run() error {
	for {
		n, err := s.listener.Recv()
		if err != nil {
			if notif.IsGuestGone(err) {
				return nil
			}
			return &notif.ErrFatal{Op: "recv", Err: err}
		}

		s.ensureRegistered(procmodel.AbsTid(n.Pid))

		entry := s.log.WithField("pid", n.Pid)
		reply := dispatcher.Dispatch(s.state, entry, n)

		if err := s.listener.Send(reply); err != nil {
			if notif.IsGuestGone(err) {
				continue
			}
			return &notif.ErrFatal{Op: "send", Err: err}
		}
	}
}

// ensureRegistered lazily admits a thread the registry has never seen.
// Seccomp user-notification, unlike ptrace's PTRACE_EVENT_CLONE, never
// hands the supervisor a new child's pid at clone time — the first sign
// of a new thread is its own first trapped syscall. This mirrors
// procmodel's SyncNewThreads fallback but keyed off the pid actually
// seen rather than an opportunistic /proc/<pid>/task scan.
func (s *Supervisor) ensureRegistered(pid procmodel.AbsTid) {
	if _, ok := s.state.registry.Get(pid); ok {
		return
	}
	if !s.seenAny {
		s.seenAny = true
		s.state.registry.RegisterInitial(pid)
		return
	}

	parent, ok := hostParentOf(pid)
	if !ok {
		s.state.registry.RegisterInitial(pid)
		return
	}
	if _, ok := s.state.registry.Get(parent); !ok {
		s.state.registry.RegisterInitial(pid)
		return
	}

	kind, err := s.state.registry.DetectCloneKind(parent, pid)
	if err != nil {
		kind = procmodel.CloneKindFork
	}
	s.registerChild(parent, pid, kind)
}

// registerChild admits a clone into the registry and sets up its thread
// group's virtual FD table to match, per the CLONE_FILES-sharing decision
// recorded in DESIGN.md open question (b). A CLONE_THREAD child joins its
// parent's thread group (RegisterChild gives it the same Tgid), so it
// already shares the parent's table via State.Table's Tgid-keyed lookup —
// nothing further to do. A new thread group (plain fork, or CLONE_NEWPID)
// gets its own table forked from the parent's, preserving shared offsets on
// already-open handles without sharing later opens/closes.
func (s *Supervisor) registerChild(parent, child procmodel.AbsTid, kind procmodel.CloneKind) {
	pt, ok := s.state.registry.Get(parent)
	if !ok {
		s.log.WithField("pid", child).Warn("clone observed from an unregistered parent")
		return
	}
	parentTgid := pt.Tgid

	ct, err := s.state.registry.RegisterChild(parent, child, kind)
	if err != nil {
		s.log.WithField("pid", child).WithError(err).Warn("failed to register observed thread")
		return
	}

	if ct.Tgid == parentTgid {
		return // same thread group already, table sharing is implicit
	}
	s.state.ForkTable(parentTgid, ct.Tgid)
}

// hostParentOf reads /proc/<pid>/status for the real (host-namespace)
// parent pid, the same source procmodel's DetectCloneKind reads to
// classify the clone.
func hostParentOf(pid procmodel.AbsTid) (procmodel.AbsTid, bool) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "PPid:") {
			v, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "PPid:")))
			if err != nil {
				return 0, false
			}
			return procmodel.AbsTid(v), true
		}
	}
	return 0, false
}
