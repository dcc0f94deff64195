// Package dispatcher maps a trapped syscall to its handler function, the
// same syscall-name switch shape as the teacher's tracerHandler.Handle
// (runner/ptrace/handle_linux.go), rebuilt around notif.Notification and
// a handler table instead of a ptrace-context switch statement.
package dispatcher

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bvisor-project/bvisor/errno"
	"github.com/bvisor-project/bvisor/handlers"
	"github.com/bvisor-project/bvisor/notif"
	"github.com/bvisor-project/bvisor/pkg/seccomp/libseccomp"
)

// HandlerFunc answers one trapped syscall.
type HandlerFunc func(env handlers.Env, n *notif.Notification) notif.Reply

// Table is the syscall-name-to-handler map. A syscall absent from the
// table is passed through with Continue — spec.md's default posture for
// anything the supervisor doesn't need to virtualise (mmap, brk, futex,
// and the rest of the syscalls a guest calls that never touch the
// filesystem or process model).
var Table = map[string]HandlerFunc{
	"openat":     handlers.Openat,
	"close":      handlers.Close,
	"read":       handlers.Read,
	"write":      handlers.Write,
	"readv":      handlers.Readv,
	"writev":     handlers.Writev,
	"fstat":      handlers.Fstat,
	"newfstatat": handlers.Fstatat,
	"faccessat":  handlers.Faccessat,
	"sysinfo":    handlers.Sysinfo,
	"getpid":     handlers.Getpid,
	"getppid":    handlers.Getppid,
	"gettid":     handlers.Gettid,
	"kill":       handlers.Kill,
	"exit":       handlers.Exit,
	"exit_group": handlers.ExitGroup,
}

// Dispatch resolves n's syscall number to a name and, if the table has a
// handler for it, runs it. An unresolvable syscall number passes through
// with Continue, like any syscall the table has no handler for. A handler
// panic is recovered into ENOSYS, per spec.md §7 — a defect in one
// handler must not take down the whole supervisor loop.
func Dispatch(env handlers.Env, log *logrus.Entry, n *notif.Notification) (reply notif.Reply) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("recover", fmt.Sprint(r)).Error("handler panic")
			reply = notif.ReplyError(n, int32(errno.ENOSYS))
		}
	}()

	name, err := libseccomp.ToSyscallName(uint(n.SyscallNo()))
	if err != nil {
		log.WithField("syscall_no", n.SyscallNo()).Debug("unknown syscall number")
		return notif.ReplyContinue(n)
	}

	fn, ok := Table[name]
	if !ok {
		log.WithField("syscall", name).Trace("passthrough")
		return notif.ReplyContinue(n)
	}

	log.WithField("syscall", name).Debug("dispatch")
	return fn(env, n)
}
