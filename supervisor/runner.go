package supervisor

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bvisor-project/bvisor/bootstrap"
	"github.com/bvisor-project/bvisor/runner"
)

// GuestRunner adapts one full guest launch-and-supervise cycle to
// runner.Runner, the same shape the teacher's own Runner implementations
// (pkg/forkexec, the ptrace runner) exposed for a judged submission —
// here reporting a supervised guest's outcome instead of a verdict.
type GuestRunner struct {
	Config bootstrap.Config
	State  *State
}

var _ runner.Runner = (*GuestRunner)(nil)

// Run launches the guest, drives its supervisor loop to completion, and
// reaps its exit status. The context is accepted for interface
// conformance; a real deadline is instead enforced host-side via the
// rlimit baked into Config.Limits, since a CPU-time rlimit kills the
// guest itself without the supervisor needing to race a Go timer against
// blocking notif.Listener.Recv calls.
func (g *GuestRunner) Run(_ context.Context) runner.Result {
	setupStart := time.Now()
	guest, err := bootstrap.Launch(g.Config)
	if err != nil {
		return runner.Result{Status: runner.StatusSupervisorError, Error: err.Error()}
	}
	defer guest.Close()
	setupTime := time.Since(setupStart)

	runStart := time.Now()
	sup := New(guest.Listener, g.State, guest.Pid)
	if err := sup.Run(); err != nil {
		return runner.Result{
			Status:      runner.StatusSupervisorError,
			Error:       err.Error(),
			SetUpTime:   setupTime,
			RunningTime: time.Since(runStart),
		}
	}

	var ws unix.WaitStatus
	if _, err := unix.Wait4(guest.Pid, &ws, 0, nil); err != nil {
		return runner.Result{
			Status:      runner.StatusSupervisorError,
			Error:       err.Error(),
			SetUpTime:   setupTime,
			RunningTime: time.Since(runStart),
		}
	}

	res := runner.Result{SetUpTime: setupTime, RunningTime: time.Since(runStart)}
	switch {
	case ws.Exited() && ws.ExitStatus() == 0:
		res.Status = runner.StatusNormal
	case ws.Exited():
		res.Status = runner.StatusNonzeroExitStatus
		res.ExitStatus = ws.ExitStatus()
	case ws.Signaled():
		res.Status = runner.StatusSignalled
		res.ExitStatus = int(ws.Signal())
	default:
		res.Status = runner.StatusSupervisorError
		res.Error = "guest ended in an unexpected wait status"
	}
	return res
}
