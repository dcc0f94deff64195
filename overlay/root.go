// Package overlay manages the supervisor's private host-side scratch
// directory, used by the Cow and Tmp file backends for copy-on-write
// snapshots and private tmpfs-style files (spec.md §4.4/§4.5).
package overlay

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// testUID is the fixed overlay directory name test builds use, so test
// output is reproducible and easy to find if a test leaks its cleanup.
const testUID = "testtest00000000"

// Root is a supervisor-owned scratch directory, created on supervisor
// start and removed on stop.
type Root struct {
	base string
	cow  string
	tmp  string
}

// New creates a fresh overlay directory under dir (or os.TempDir if dir
// is empty), named with a random 16 hex digit uid.
func New(dir string) (*Root, error) {
	uid, err := randomUID()
	if err != nil {
		return nil, err
	}
	return newWithUID(dir, uid)
}

// NewForTest creates an overlay directory with the fixed test uid, so
// package tests don't depend on crypto/rand and clean up predictably.
func NewForTest(dir string) (*Root, error) {
	return newWithUID(dir, testUID)
}

func newWithUID(dir, uid string) (*Root, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	base := filepath.Join(dir, ".bvisor-"+uid)
	r := &Root{
		base: base,
		cow:  filepath.Join(base, "cow"),
		tmp:  filepath.Join(base, "tmp"),
	}
	for _, d := range []string{r.base, r.cow, r.tmp} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			r.Close()
			return nil, fmt.Errorf("overlay: mkdir %s: %w", d, err)
		}
	}
	return r, nil
}

func randomUID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("overlay: generate uid: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CowDir returns the directory copy-on-write snapshots are written into.
func (r *Root) CowDir() string { return r.cow }

// TmpDir returns the directory private tmp files are written into.
func (r *Root) TmpDir() string { return r.tmp }

// Base returns the overlay root's own path, so callers can guard against
// the guest reaching into it (spec.md §4.4's "/tmp/.bvisor is always
// blocked" rule).
func (r *Root) Base() string { return r.base }

// Close removes the overlay directory and everything under it.
func (r *Root) Close() error {
	if r.base == "" {
		return nil
	}
	return os.RemoveAll(r.base)
}
