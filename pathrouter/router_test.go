package pathrouter

import (
	"testing"

	"github.com/bvisor-project/bvisor/errno"
	"github.com/bvisor-project/bvisor/filebackend"
)

func TestDefaultRules(t *testing.T) {
	r := New("/tmp/.bvisor-test")

	cases := []struct {
		path string
		want Decision
	}{
		{"/sys/kernel/notes", blockDecision},
		{"/run/lock", blockDecision},
		{"/dev/sda", blockDecision},
		{"/dev/null", routeDecision(filebackend.KindPassthrough)},
		{"/proc", routeDecision(filebackend.KindProc)},
		{"/proc/self/status", routeDecision(filebackend.KindProc)},
		{"/tmp/scratch.txt", routeDecision(filebackend.KindTmp)},
		{"/tmp/.bvisor-test/cow/1", blockDecision},
		{"/home/user/main.go", routeDecision(filebackend.KindCow)},
	}
	for _, c := range cases {
		got := r.Route(c.path)
		if got != c.want {
			t.Errorf("Route(%q) = %+v, want %+v", c.path, got, c.want)
		}
	}
}

func TestNormalizeCleansDotDotWithinAnAbsolutePath(t *testing.T) {
	got, err := Normalize("/home/user/../other/./file.txt")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got != "/home/other/file.txt" {
		t.Fatalf("Normalize = %q, want /home/other/file.txt", got)
	}

	if got, err := Normalize("/../../../etc/shadow"); err != nil || got != "/etc/shadow" {
		t.Fatalf("Normalize escaping root = (%q, %v), want (/etc/shadow, nil)", got, err)
	}
}

func TestNormalizeRejectsRelativePaths(t *testing.T) {
	if _, err := Normalize("etc/passwd"); err != errno.EINVAL {
		t.Fatalf("Normalize(relative) error = %v, want EINVAL", err)
	}
	if _, err := Normalize("../etc/passwd"); err != errno.EINVAL {
		t.Fatalf("Normalize(relative ..) error = %v, want EINVAL", err)
	}
}
