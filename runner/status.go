// Package runner reports a finished guest run's outcome — how it ended
// and what it consumed — the same summary shape the teacher's own
// runner package uses for a judged submission, re-themed around a
// supervised guest instead of a scored program.
package runner

// Status is a guest run's terminal outcome.
type Status int

const (
	StatusInvalid Status = iota // uninitialized

	StatusNormal // exited zero

	StatusSignalled         // killed by a signal
	StatusNonzeroExitStatus // exited non-zero

	StatusSupervisorError // the supervisor loop itself failed
)

var statusString = []string{
	"invalid",
	"normal exit",
	"killed by signal",
	"non-zero exit status",
	"supervisor error",
}

func (t Status) String() string {
	i := int(t)
	if i >= 0 && i < len(statusString) {
		return statusString[i]
	}
	return statusString[0]
}

func (t Status) Error() string {
	return t.String()
}
