package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bvisor-project/bvisor/errno"
	"github.com/bvisor-project/bvisor/filebackend"
	"github.com/bvisor-project/bvisor/procmodel"
)

// renderProc fabricates the /proc content spec.md §4.5's Proc backend
// covers: /proc/self, /proc/self/status, /proc/<n> and /proc/<n>/status,
// where <n> is an NsTgid in the calling thread's own namespace. Nothing
// else under /proc resolves — spec.md never asked for a general /proc
// filesystem, just enough for a guest's own introspection.
func renderProc(env Env, viewerPid int, path string) ([]byte, error) {
	rest := strings.TrimPrefix(path, "/proc")
	rest = strings.TrimPrefix(rest, "/")

	segs := strings.SplitN(rest, "/", 2)
	head := segs[0]
	wantStatus := len(segs) == 2 && segs[1] == "status"
	if len(segs) == 2 && segs[1] != "status" {
		return nil, filebackend.ErrNotRenderable
	}

	reg := env.Registry()
	viewer, ok := reg.Get(procmodel.AbsTid(viewerPid))
	if !ok {
		return nil, errno.ESRCH
	}

	var target *procmodel.Thread
	if head == "" || head == "self" {
		target = viewer
	} else {
		n, err := strconv.Atoi(head)
		if err != nil {
			return nil, filebackend.ErrNotRenderable
		}
		resolved, rerr := reg.GetNamespaced(viewer.Tid, procmodel.NsTgid(n))
		if rerr != nil {
			return nil, errno.ENOENT
		}
		target = resolved
	}

	ownNs, _ := reg.NsTid(target.Tid)
	if wantStatus {
		return []byte(fmt.Sprintf(
			"Name:\tguest\nState:\tR (running)\nTgid:\t%d\nPid:\t%d\nPPid:\t%d\nNSpid:\t%d\n",
			ownNs, ownNs, reg.ParentNsTgid(target.Tid), ownNs,
		)), nil
	}
	return []byte(fmt.Sprintf("%d\n", ownNs)), nil
}
