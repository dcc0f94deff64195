// Package procmodel reconstructs a virtual PID-namespace hierarchy from
// observed clones, per spec.md §3/§4.7. It has no teacher analogue — the
// ptrace-based teacher never modelled namespaces — so it is built directly
// from spec.md's invariants, in the "registry owns everything, records are
// arena entries keyed by id" style spec.md §9 calls for.
package procmodel

import "golang.org/x/sys/unix"

// AbsTid and AbsTgid are thread/thread-group ids in the supervisor's own
// (root) PID namespace — the canonical key into every internal map.
type AbsTid int
type AbsTgid int

// NsTid and NsTgid are the same ids as seen from inside a (possibly
// nested) namespace.
type NsTid int
type NsTgid int

// CloneKind classifies an observed clone for RegisterChild, resolved
// either from register arguments (when available) or, per spec.md §4.7,
// from parsing /proc/<child>/status when they are not.
type CloneKind int

const (
	// CloneKindFork is a plain fork/clone: new thread group, same
	// namespace as the parent.
	CloneKindFork CloneKind = iota
	// CloneKindThread is CLONE_THREAD: joins the parent's thread group,
	// same namespace.
	CloneKindThread
	// CloneKindNewPID is CLONE_NEWPID: founds a fresh, nested namespace.
	CloneKindNewPID
)

// CloneFlagsToKind resolves a CloneKind from raw clone(2)/clone3(2) flags,
// when the trap site can recover them from registers.
func CloneFlagsToKind(flags uint64) CloneKind {
	switch {
	case flags&unix.CLONE_NEWPID != 0:
		return CloneKindNewPID
	case flags&unix.CLONE_THREAD != 0:
		return CloneKindThread
	default:
		return CloneKindFork
	}
}

// Thread is a virtualised execution context (spec.md §3).
type Thread struct {
	Tid    AbsTid
	Tgid   AbsTgid
	Parent AbsTid // 0 (no thread has AbsTid 0) means "no visible parent"
	Cwd    string

	ns *Namespace
}

// IsLeader reports whether t is its thread group's leader.
func (t *Thread) IsLeader() bool { return AbsTgid(t.Tid) == t.Tgid }

// Namespace is a PID namespace (spec.md §3).
type Namespace struct {
	depth  int
	parent *Namespace

	byAbs map[AbsTid]NsTid
	byNs  map[NsTid]AbsTid
	next  NsTid
}

// Depth returns the namespace's nesting depth; the root namespace is 1.
func (n *Namespace) Depth() int { return n.depth }

func newNamespace(parent *Namespace) *Namespace {
	depth := 1
	if parent != nil {
		depth = parent.depth + 1
	}
	return &Namespace{
		depth:  depth,
		parent: parent,
		byAbs:  make(map[AbsTid]NsTid),
		byNs:   make(map[NsTid]AbsTid),
		next:   1,
	}
}

// admit assigns tid the namespace's next NsTid. The invariant that the
// first admitted thread gets NsTid 1 falls out of next starting at 1.
func (n *Namespace) admit(tid AbsTid) NsTid {
	id := n.next
	n.next++
	n.byAbs[tid] = id
	n.byNs[id] = tid
	return id
}

func (n *Namespace) remove(tid AbsTid) {
	if id, ok := n.byAbs[tid]; ok {
		delete(n.byAbs, tid)
		delete(n.byNs, id)
	}
}

// nsTidOf returns the NsTid a thread has been assigned in this namespace,
// which is spec.md's "one AbsTid has one NsTid per namespace that contains
// it" — every namespace on a thread's ancestry chain assigns its own id.
func (n *Namespace) nsTidOf(tid AbsTid) (NsTid, bool) {
	id, ok := n.byAbs[tid]
	return id, ok
}

func (n *Namespace) empty() bool { return len(n.byAbs) == 0 }

// chain walks from n up through its ancestors, n first.
func (n *Namespace) chain() []*Namespace {
	var chain []*Namespace
	for cur := n; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	return chain
}
