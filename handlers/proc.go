package handlers

import (
	"golang.org/x/sys/unix"

	"github.com/bvisor-project/bvisor/errno"
	"github.com/bvisor-project/bvisor/notif"
	"github.com/bvisor-project/bvisor/procmodel"
	"github.com/bvisor-project/bvisor/runner"
)

// Getpid implements getpid(2): a thread's own NsTgid, per its own
// namespace's view of its thread group leader.
func Getpid(env Env, n *notif.Notification) notif.Reply {
	t, ok := env.Registry().Get(procmodel.AbsTid(n.Pid))
	if !ok {
		return notif.ReplyError(n, int32(errno.ESRCH))
	}
	leaderNs, ok := reg(env).NsTid(procmodel.AbsTid(t.Tgid))
	if !ok {
		return notif.ReplyError(n, int32(errno.ESRCH))
	}
	return notif.ReplySuccess(n, int64(leaderNs))
}

// Gettid implements gettid(2): a thread's own NsTid.
func Gettid(env Env, n *notif.Notification) notif.Reply {
	nt, ok := reg(env).NsTid(procmodel.AbsTid(n.Pid))
	if !ok {
		return notif.ReplyError(n, int32(errno.ESRCH))
	}
	return notif.ReplySuccess(n, int64(nt))
}

// Getppid implements getppid(2): 0 whenever the parent is unregistered,
// is the guest root, or lies across a namespace boundary the caller
// can't see past (procmodel.Registry.ParentNsTgid already folds all
// three cases into that single return value).
func Getppid(env Env, n *notif.Notification) notif.Reply {
	return notif.ReplySuccess(n, int64(reg(env).ParentNsTgid(procmodel.AbsTid(n.Pid))))
}

// Kill implements kill(2): the target pid argument is an NsTgid in the
// caller's own namespace, resolved to a real AbsTid before the signal
// reaches the host kernel.
func Kill(env Env, n *notif.Notification) notif.Reply {
	target := int64(n.Arg0())
	sig := int(n.Arg1())
	if target <= 0 {
		// Process-group and broadcast forms are out of scope; spec.md
		// only models signalling a single namespaced target.
		return notif.ReplyError(n, int32(errno.EINVAL))
	}

	tt, err := reg(env).GetNamespaced(procmodel.AbsTid(n.Pid), procmodel.NsTgid(target))
	if err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	if err := unix.Kill(int(tt.Tid), unix.Signal(sig)); err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	return notif.ReplySuccess(n, 0)
}

// Exit implements exit(2): the thread is about to vanish, so the
// registry is updated eagerly instead of waiting on a future notif that
// will never arrive for a gone thread (spec.md §4.1's ENOENT-on-Recv
// case exists for exactly this reason).
func Exit(env Env, n *notif.Notification) notif.Reply {
	env.Registry().HandleExit(procmodel.AbsTid(n.Pid))
	return notif.ReplyContinue(n)
}

// ExitGroup implements exit_group(2), tearing down every thread in the
// caller's thread group along with its virtual FD table.
func ExitGroup(env Env, n *notif.Notification) notif.Reply {
	t, ok := env.Registry().Get(procmodel.AbsTid(n.Pid))
	if ok {
		env.Table(t.Tgid).CloseAll()
		env.DropTable(t.Tgid)
	}
	env.Registry().HandleExit(procmodel.AbsTid(n.Pid))
	return notif.ReplyContinue(n)
}

// syntheticTotalram and syntheticFreeram are the fixed memory totals
// spec.md §4.8 mandates for sysinfo(2) — a guest never gets to see the
// host's real memory sizing.
const (
	syntheticTotalram = runner.Size(2 << 30) // 2 GiB
	syntheticFreeram  = runner.Size(1 << 30) // 1 GiB
)

// Sysinfo implements sysinfo(2) by synthesizing a Sysinfo_t entirely from
// supervisor state — never the host's real values, which would leak
// information about the machine the guest is running on.
func Sysinfo(env Env, n *notif.Notification) notif.Reply {
	var info unix.Sysinfo_t
	info.Uptime = int64(env.Uptime().Seconds())
	info.Totalram = syntheticTotalram.Byte()
	info.Freeram = syntheticFreeram.Byte()
	info.Procs = uint16(env.Registry().Count())
	info.Unit = 1

	if err := env.Bridge().Write(int(n.Pid), uintptr(n.Arg0()), &info); err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	return notif.ReplySuccess(n, 0)
}

func reg(env Env) *procmodel.Registry { return env.Registry() }
