package procmodel

import "testing"

func TestRegisterInitialAssignsNsTidOne(t *testing.T) {
	r := New()
	r.RegisterInitial(100)

	nt, ok := r.NsTid(100)
	if !ok || nt != 1 {
		t.Fatalf("NsTid = %v, %v; want 1, true", nt, ok)
	}
}

func TestNewPidChildHidesParent(t *testing.T) {
	r := New()
	r.RegisterInitial(100)
	child, err := r.RegisterChild(100, 200, CloneKindNewPID)
	if err != nil {
		t.Fatalf("RegisterChild: %v", err)
	}
	if child.ns.depth != 2 {
		t.Fatalf("child namespace depth = %d, want 2", child.ns.depth)
	}

	if got := r.ParentNsTgid(200); got != 0 {
		t.Fatalf("ParentNsTgid(200) = %d, want 0 (parent invisible across NEWPID boundary)", got)
	}
	if r.Visible(200, 100) {
		t.Fatalf("child should not see the root-namespace parent")
	}
	if !r.Visible(100, 200) {
		t.Fatalf("root-namespace thread should see the nested child")
	}
}

func TestThreadClonesShareTgid(t *testing.T) {
	r := New()
	r.RegisterInitial(100)
	th, err := r.RegisterChild(100, 101, CloneKindThread)
	if err != nil {
		t.Fatalf("RegisterChild: %v", err)
	}
	if th.Tgid != 100 {
		t.Fatalf("Tgid = %d, want 100", th.Tgid)
	}
	if th.IsLeader() {
		t.Fatalf("thread clone should not be its own group leader")
	}
}

func TestPlainForkGetsOwnTgid(t *testing.T) {
	r := New()
	r.RegisterInitial(100)
	ch, err := r.RegisterChild(100, 150, CloneKindFork)
	if err != nil {
		t.Fatalf("RegisterChild: %v", err)
	}
	if !ch.IsLeader() {
		t.Fatalf("forked child should be its own group leader")
	}
	if got := r.ParentNsTgid(150); got != 1 {
		t.Fatalf("ParentNsTgid(150) = %d, want 1 (root thread's NsTid)", got)
	}
}

func TestHandleExitReparentsChildren(t *testing.T) {
	r := New()
	r.RegisterInitial(100)
	if _, err := r.RegisterChild(100, 200, CloneKindFork); err != nil {
		t.Fatalf("RegisterChild(200): %v", err)
	}
	if _, err := r.RegisterChild(200, 300, CloneKindFork); err != nil {
		t.Fatalf("RegisterChild(300): %v", err)
	}

	r.HandleExit(200)

	if _, ok := r.Get(200); ok {
		t.Fatalf("exited thread should be gone")
	}
	child, ok := r.Get(300)
	if !ok {
		t.Fatalf("grandchild should survive")
	}
	if child.Parent != 100 {
		t.Fatalf("orphan reparented to %d, want guest root 100", child.Parent)
	}
}

func TestGetNamespacedResolvesLeaderByNsTgid(t *testing.T) {
	r := New()
	r.RegisterInitial(100)
	if _, err := r.RegisterChild(100, 200, CloneKindFork); err != nil {
		t.Fatalf("RegisterChild: %v", err)
	}
	nt, _ := r.NsTid(200)

	got, err := r.GetNamespaced(100, NsTgid(nt))
	if err != nil {
		t.Fatalf("GetNamespaced: %v", err)
	}
	if got.Tid != 200 {
		t.Fatalf("resolved tid = %d, want 200", got.Tid)
	}
}

func TestGetNamespacedRejectsThreadThatIsNotALeader(t *testing.T) {
	r := New()
	r.RegisterInitial(100)
	if _, err := r.RegisterChild(100, 101, CloneKindThread); err != nil {
		t.Fatalf("RegisterChild: %v", err)
	}
	nt, _ := r.NsTid(101)

	if _, err := r.GetNamespaced(100, NsTgid(nt)); err == nil {
		t.Fatalf("expected ESRCH resolving a non-leader thread as a tgid")
	}
}
