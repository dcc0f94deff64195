// Package pathrouter maps a guest's normalised absolute path to a
// backend decision (spec.md §4.4): block outright, or hand off to one of
// the filebackend variants. The directory-boundary matching walk is
// adapted from the teacher's FileSet.IsInSetSmart (fileset.go) — the
// same "check the exact name, then walk up through each parent directory
// checking a `<dir>/` bucket, most specific match wins" algorithm, here
// returning a routing Decision instead of a boolean permission.
package pathrouter

import (
	"path/filepath"
	"strings"

	"github.com/bvisor-project/bvisor/errno"
	"github.com/bvisor-project/bvisor/filebackend"
)

// Decision is the outcome of routing one path.
type Decision struct {
	Block   bool
	Backend filebackend.Kind
}

var blockDecision = Decision{Block: true}

func routeDecision(k filebackend.Kind) Decision { return Decision{Backend: k} }

// Router holds the static ordered prefix-rule table plus the one dynamic
// rule every instance needs: blocking the guest from reaching into the
// supervisor's own overlay directory.
type Router struct {
	exact map[string]Decision
	dirs  map[string]Decision
}

// New builds the default rule table from spec.md §4.4, additionally
// blocking overlayBase (the supervisor's private scratch directory) so
// the guest can never read or corrupt its own cow/tmp snapshots.
func New(overlayBase string) *Router {
	r := &Router{
		exact: make(map[string]Decision),
		dirs:  make(map[string]Decision),
	}

	r.dirs["/sys/"] = blockDecision
	r.dirs["/run/"] = blockDecision
	r.dirs["/dev/"] = blockDecision
	r.dirs["/proc/"] = routeDecision(filebackend.KindProc)
	r.exact["/proc"] = routeDecision(filebackend.KindProc)
	r.dirs["/tmp/"] = routeDecision(filebackend.KindTmp)

	for _, dev := range []string{"/dev/null", "/dev/zero", "/dev/full", "/dev/random", "/dev/urandom", "/dev/tty"} {
		r.exact[dev] = routeDecision(filebackend.KindPassthrough)
	}

	if overlayBase != "" {
		r.dirs[overlayBase+"/"] = blockDecision
		r.exact[overlayBase] = blockDecision
	}

	return r
}

// Route resolves an already-normalised absolute path to a Decision. The
// default, when nothing more specific matches, is Cow — spec.md's "the
// rest of the filesystem is copy-on-write by default" rule.
func (r *Router) Route(path string) Decision {
	if d, ok := r.exact[path]; ok {
		return d
	}
	name := path
	for level := 0; name != ""; level++ {
		if d, ok := r.dirs[name+"/"]; ok {
			return d
		}
		next := dirname(name)
		if next == name {
			break
		}
		name = next
	}
	return routeDecision(filebackend.KindCow)
}

// Normalize cleans `.` and `..` components out of an absolute path —
// clean already collapses a `..` past root to `/`, so a guest can never
// walk outside the filesystem it's shown. There is no AT_FDCWD-relative
// resolution at this layer: a relative path is rejected outright, since a
// file backend never keeps around a real cwd to resolve it against.
func Normalize(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", errno.EINVAL
	}
	return filepath.Clean(path), nil
}

// dirname mirrors the teacher's fileset.go dirname: strip a trailing
// slash, then take the parent directory.
func dirname(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	if path == "" {
		return "/"
	}
	return filepath.Dir(path)
}
