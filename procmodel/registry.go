package procmodel

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/bvisor-project/bvisor/errno"
)

// Registry owns every Thread and Namespace the supervisor has observed.
// Its methods are the only mutators — callers never touch a Thread's or
// Namespace's fields directly, mirroring the ownership discipline the
// teacher's runner packages use for their arena-style maps.
type Registry struct {
	mu sync.Mutex

	threads map[AbsTid]*Thread
	root    *Namespace
	rootTid AbsTid
}

// New creates an empty registry. RegisterInitial must be called once
// before any other method.
func New() *Registry {
	return &Registry{threads: make(map[AbsTid]*Thread)}
}

// RegisterInitial admits the guest's very first thread, founding the root
// namespace it and every later descendant is rooted under.
func (r *Registry) RegisterInitial(tid AbsTid) *Thread {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.root = newNamespace(nil)
	t := &Thread{Tid: tid, Tgid: AbsTgid(tid), Cwd: "/", ns: r.root}
	r.root.admit(tid)
	r.threads[tid] = t
	r.rootTid = tid
	return t
}

// RegisterChild admits a newly observed thread, cloned from parent under
// the given CloneKind (spec.md §4.7).
func (r *Registry) RegisterChild(parent, child AbsTid, kind CloneKind) (*Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pt, ok := r.threads[parent]
	if !ok {
		return nil, errno.ESRCH
	}

	target := pt.ns
	if kind == CloneKindNewPID {
		target = newNamespace(pt.ns)
	}

	t := &Thread{Tid: child, Parent: parent, Cwd: pt.Cwd, ns: target}
	if kind == CloneKindThread {
		t.Tgid = pt.Tgid
	} else {
		t.Tgid = AbsTgid(child)
	}

	// Admit into target and every ancestor namespace, each assigning its
	// own fresh NsTid — a thread is visible in its whole ancestry chain,
	// not just its innermost namespace.
	for _, ns := range target.chain() {
		ns.admit(child)
	}

	r.threads[child] = t
	return t, nil
}

// HandleExit removes tid from the registry, evicting it from every
// namespace on its ancestry chain and reparenting any children it leaves
// behind to the guest's initial thread (spec.md §4.7).
func (r *Registry) HandleExit(tid AbsTid) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.threads[tid]
	if !ok {
		return
	}
	for _, ns := range t.ns.chain() {
		ns.remove(tid)
	}
	delete(r.threads, tid)

	for _, other := range r.threads {
		if other.Parent == tid {
			other.Parent = r.rootTid
		}
	}
}

// Get looks up a thread by its absolute id.
func (r *Registry) Get(tid AbsTid) (*Thread, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[tid]
	return t, ok
}

// Count returns the number of threads the registry currently knows about,
// for sysinfo(2)'s synthetic "procs" field.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.threads)
}

// NsTid returns tid's id as seen from within its own innermost namespace.
func (r *Registry) NsTid(tid AbsTid) (NsTid, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[tid]
	if !ok {
		return 0, false
	}
	return t.ns.nsTidOf(tid)
}

// GetNamespaced resolves a target expressed as an NsTgid inside viewer's
// own innermost namespace — the lookup kill(2) and similar handlers need
// (spec.md §4.8).
func (r *Registry) GetNamespaced(viewer AbsTid, target NsTgid) (*Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	vt, ok := r.threads[viewer]
	if !ok {
		return nil, errno.ESRCH
	}
	abs, ok := vt.ns.byNs[NsTid(target)]
	if !ok {
		return nil, errno.ESRCH
	}
	tt, ok := r.threads[abs]
	if !ok || !tt.IsLeader() {
		return nil, errno.ESRCH
	}
	return tt, nil
}

// Visible reports whether viewer's namespace can see target — target
// appears in the namespace viewer's innermost namespace is rooted at,
// i.e. viewer's namespace is an ancestor-or-equal of target's innermost
// namespace. This is why a thread in a nested namespace cannot resolve
// its real parent once a CLONE_NEWPID boundary separates them.
func (r *Registry) Visible(viewer, target AbsTid) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	vt, ok := r.threads[viewer]
	if !ok {
		return false
	}
	_, ok = vt.ns.byAbs[target]
	return ok
}

// ParentNsTgid returns the NsTgid of tid's parent as seen from tid's own
// namespace, or 0 if the parent is unregistered, is the guest root, or
// lies outside tid's namespace visibility — the three cases spec.md
// §4.8's getppid handler collapses to a single "return 0".
func (r *Registry) ParentNsTgid(tid AbsTid) NsTgid {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.threads[tid]
	if !ok || t.Parent == 0 || tid == r.rootTid {
		return 0
	}
	pt, ok := r.threads[t.Parent]
	if !ok {
		return 0
	}
	if _, visible := t.ns.byAbs[pt.Tid]; !visible {
		return 0
	}
	leaderNs, ok := t.ns.nsTidOf(AbsTid(pt.Tgid))
	if !ok {
		return 0
	}
	return NsTgid(leaderNs)
}

// classification of /proc/<pid>/status's Tgid/NSpid lines, used by
// DetectCloneKind when a trap site cannot recover raw
// clone flags (e.g. the syscall was clone3 with a flags struct arg the
// dispatcher chose not to decode).
type procStatus struct {
	tgid  int
	nsLen int // number of namespace levels /proc reports NSpid entries for
}

func readProcStatus(pid AbsTid) (procStatus, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return procStatus{}, errno.ESRCH
	}
	defer f.Close()

	var st procStatus
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "Tgid:"):
			st.tgid, _ = strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Tgid:")))
		case strings.HasPrefix(line, "NSpid:"):
			fields := strings.Fields(strings.TrimPrefix(line, "NSpid:"))
			st.nsLen = len(fields)
		}
	}
	return st, sc.Err()
}

// DetectCloneKind classifies a clone the dispatcher observed but could
// not decode flags for, by comparing /proc/<child>/status against the
// parent's already-known namespace depth (spec.md §4.7's fallback path).
func (r *Registry) DetectCloneKind(parent, child AbsTid) (CloneKind, error) {
	r.mu.Lock()
	pt, ok := r.threads[parent]
	r.mu.Unlock()
	if !ok {
		return 0, errno.ESRCH
	}

	cst, err := readProcStatus(child)
	if err != nil {
		return 0, err
	}
	if cst.nsLen > pt.ns.depth {
		return CloneKindNewPID, nil
	}
	if cst.tgid != 0 && AbsTid(cst.tgid) != child {
		return CloneKindThread, nil
	}
	return CloneKindFork, nil
}

// SyncNewThreads opportunistically rescans /proc/<known>/task for sibling
// threads the supervisor has not yet observed a clone trap for — the
// window spec.md §4.7 notes exists between a thread group leader's clone
// and its new thread's first trapped syscall. Threads it finds are
// admitted as CLONE_THREAD children of known.
func (r *Registry) SyncNewThreads(known AbsTid) {
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", known))
	if err != nil {
		return
	}
	for _, e := range entries {
		tid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		abs := AbsTid(tid)
		r.mu.Lock()
		_, seen := r.threads[abs]
		r.mu.Unlock()
		if seen {
			continue
		}
		if _, err := r.RegisterChild(known, abs, CloneKindThread); err != nil {
			continue
		}
	}
}
