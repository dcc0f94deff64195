package runner

import (
	"fmt"
	"time"
)

// Result is a finished guest run's summary.
type Result struct {
	Status
	ExitStatus int    // exit code, or the terminating signal number
	Error      string // detail for StatusSupervisorError

	SetUpTime   time.Duration // time spent inside bootstrap.Launch
	RunningTime time.Duration // time spent inside the supervisor loop
}

func (r Result) String() string {
	switch r.Status {
	case StatusNormal:
		return fmt.Sprintf("Result[%v][setup %v run %v]", r.Status, r.SetUpTime, r.RunningTime)

	case StatusSignalled:
		return fmt.Sprintf("Result[Signalled(%d)][setup %v run %v]", r.ExitStatus, r.SetUpTime, r.RunningTime)

	case StatusSupervisorError:
		return fmt.Sprintf("Result[SupervisorError(%s)][setup %v run %v]", r.Error, r.SetUpTime, r.RunningTime)

	default:
		return fmt.Sprintf("Result[%v(%s %d)][setup %v run %v]", r.Status, r.Error, r.ExitStatus, r.SetUpTime, r.RunningTime)
	}
}
