// Package bootstrap launches a guest under a seccomp user-notification
// filter and hands the resulting listener fd back to the supervisor
// (spec.md §6). Unlike ptrace, a SECCOMP_RET_USER_NOTIF filter can only
// be installed by the process it will apply to, and only that process's
// own seccomp() call returns the listener fd — the supervisor never sees
// it directly. Bootstrap solves this with a tiny init shim
// (RunGuestInit, reached by re-exec'ing the supervisor's own binary with
// GuestInitArg) that runs as the guest's first code: it
// predicts the fd number its own seccomp() call is about to allocate,
// reports that number to the supervisor over an inherited control
// socket, installs the filter, waits for an acknowledgement, then execs
// the real target. The supervisor uses pidfd_getfd to duplicate that
// predicted fd out of the guest's fd table into its own, which is
// spec.md's actual "cross-process FD handoff" mechanism.
package bootstrap

// GuestInitArg is the argv[1] the guestinit shim recognises, distinguishing
// a re-exec of the supervisor's own binary acting as guest init from a
// normal supervisor invocation.
const GuestInitArg = "__bvisor_guest_init__"

// ctlFd is the fixed fd number the control socket is placed at in the
// guest's fd table (Runner.Files[3], immediately after stdio).
const ctlFd = 3

// predictMsgLen is the wire size of the "here is my predicted listener
// fd number" message: one little-endian uint32.
const predictMsgLen = 4

// ackByte is the single byte the supervisor sends back once it has
// successfully pidfd_getfd'd the guest's listener fd, telling the guest
// it is safe to proceed to exec.
const ackByte = 0x01
