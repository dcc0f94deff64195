// Package notif implements the seccomp user-notification protocol: the
// fixed-layout RECV/SEND messages exchanged over the listener fd the
// kernel hands back when a SECCOMP_RET_USER_NOTIF filter traps a syscall.
//
// Unlike a ptrace-based tracer, the kernel delivers the six syscall
// argument registers directly in the notification struct — there is no
// ptrace-stop and no PTRACE_GETREGS. Notification mirrors the accessor
// shape of a ptrace register context (Arg0()..Arg5(), SyscallNo()) because
// handler code wants the same interface either way, but the underlying
// storage is just the struct fields the kernel wrote.
package notif

// Notification is one trapped syscall, as delivered by IOCTL_NOTIF_RECV.
type Notification struct {
	// Id identifies this notification; it must be echoed back in the
	// matching Reply and is also used with NOTIF_ID_VALID to detect a
	// guest that has already exited.
	Id uint64
	// Pid is the AbsTid of the guest thread that raised the trap, in the
	// supervisor's own PID namespace.
	Pid uint32
	// syscallNr and args hold the raw notification payload.
	syscallNr int32
	args      [6]uint64
}

// NewNotification builds a Notification from decoded fields, for tests
// that need to drive a handler or the dispatcher without a real listener
// fd. Production code only ever gets a Notification from Listener.Recv.
func NewNotification(id uint64, pid uint32, syscallNr int, args [6]uint64) *Notification {
	return &Notification{Id: id, Pid: pid, syscallNr: int32(syscallNr), args: args}
}

// SyscallNo returns the trapped syscall number, in the guest's ABI.
func (n *Notification) SyscallNo() int { return int(n.syscallNr) }

func (n *Notification) Arg0() uint64 { return n.args[0] }
func (n *Notification) Arg1() uint64 { return n.args[1] }
func (n *Notification) Arg2() uint64 { return n.args[2] }
func (n *Notification) Arg3() uint64 { return n.args[3] }
func (n *Notification) Arg4() uint64 { return n.args[4] }
func (n *Notification) Arg5() uint64 { return n.args[5] }

// Disposition is how a Reply answers a Notification.
type Disposition int

const (
	// Continue asks the kernel to execute the trapped syscall itself.
	Continue Disposition = iota
	// Emulated means Val (success) or Error (failure) carries the result
	// the guest should observe as if the syscall had run.
	Emulated
)

// Reply is the fixed-layout response written by IOCTL_NOTIF_SEND.
type Reply struct {
	Id    uint64
	How   Disposition
	Val   int64
	Error int32
}

// ReplyContinue builds a CONTINUE response for the given notification.
func ReplyContinue(n *Notification) Reply {
	return Reply{Id: n.Id, How: Continue}
}

// ReplySuccess builds an emulated-success response with the given return
// value (e.g. a byte count or a new virtual FD).
func ReplySuccess(n *Notification, val int64) Reply {
	return Reply{Id: n.Id, How: Emulated, Val: val}
}

// ReplyError builds an emulated-failure response carrying errno.
func ReplyError(n *Notification, errno int32) Reply {
	return Reply{Id: n.Id, How: Emulated, Val: -1, Error: errno}
}
