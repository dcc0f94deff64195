//go:build linux
// +build linux

package bootstrap

import (
	"encoding/binary"
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/bvisor-project/bvisor/pkg/memfd"
	"github.com/bvisor-project/bvisor/pkg/seccomp/libseccomp"
)

// RunGuestInit is the guest-side half of the bootstrap protocol. It
// never returns on success — it ends by exec'ing target, replacing
// itself entirely, so the guest's pid, memory image, and (crucially)
// its just-installed seccomp filter carry straight over.
func RunGuestInit(target string, argv, env []string) error {
	ctl := os.NewFile(uintptr(ctlFd), "bvisor-ctl")

	predicted, err := predictNextFd()
	if err != nil {
		return fmt.Errorf("guestinit: predict fd: %w", err)
	}

	if err := sendPredicted(ctl, predicted); err != nil {
		return fmt.Errorf("guestinit: report predicted fd: %w", err)
	}

	filter, err := libseccomp.BuildNotifyFilter()
	if err != nil {
		return fmt.Errorf("guestinit: build filter: %w", err)
	}
	if _, _, errno := syscall.RawSyscall(unix.SYS_PRCTL, unix.PR_SET_NO_NEW_PRIVS, 1, 0); errno != 0 {
		return fmt.Errorf("guestinit: PR_SET_NO_NEW_PRIVS: %w", errno)
	}

	prog := filter.SockFprog()
	fd, _, errno := syscall.RawSyscall(unix.SYS_SECCOMP,
		unix.SECCOMP_SET_MODE_FILTER,
		unix.SECCOMP_FILTER_FLAG_NEW_LISTENER,
		uintptr(unsafe.Pointer(prog)))
	if errno != 0 {
		return fmt.Errorf("guestinit: install filter: %w", errno)
	}
	if int(fd) != predicted {
		// The predicted fd number didn't materialise — some fd churned
		// between the prediction and the seccomp() call. Report the real
		// number so the supervisor doesn't hand the wrong fd to
		// pidfd_getfd, then let it decide whether to retry the handoff.
		_ = sendPredicted(ctl, int(fd))
	}

	if err := waitAck(ctl); err != nil {
		return fmt.Errorf("guestinit: wait for ack: %w", err)
	}

	if err := ctl.Close(); err != nil {
		return fmt.Errorf("guestinit: close control socket: %w", err)
	}

	return execSealed(target, argv, env)
}

// execSealed loads target into a sealed, read-only memfd and execs that
// instead of the path directly. It runs after the seccomp filter is
// already installed, so the exec itself traps through the very listener
// the supervisor just pidfd_getfd'd out — this only hardens against a
// TOCTOU race on target's backing file between guestinit reading it here
// and the kernel's own exec-time read, since the memfd's content is
// snapshotted and sealed before either read can be raced again.
func execSealed(target string, argv, env []string) error {
	f, err := os.Open(target)
	if err != nil {
		return fmt.Errorf("guestinit: open target: %w", err)
	}
	sealed, err := memfd.DupToMemfd(target, f)
	f.Close()
	if err != nil {
		return fmt.Errorf("guestinit: seal target into memfd: %w", err)
	}
	defer sealed.Close()

	return syscall.Exec(fmt.Sprintf("/proc/self/fd/%d", sealed.Fd()), argv, env)
}

// predictNextFd learns the next fd number the kernel will hand out by
// duplicating and immediately closing fd 0 — the freed slot is the
// lowest-numbered free fd, which is exactly what a subsequent syscall
// returning a new fd (like seccomp(..., NEW_LISTENER)) will receive, as
// long as nothing else opens an fd in between.
func predictNextFd() (int, error) {
	dup, err := unix.Dup(0)
	if err != nil {
		return 0, err
	}
	if err := unix.Close(dup); err != nil {
		return 0, err
	}
	return dup, nil
}

func sendPredicted(ctl *os.File, fd int) error {
	var buf [predictMsgLen]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(fd))
	n, err := ctl.Write(buf[:])
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("short write reporting predicted fd")
	}
	return nil
}

func waitAck(ctl *os.File) error {
	var b [1]byte
	n, err := ctl.Read(b[:])
	if err != nil {
		return err
	}
	if n != 1 || b[0] != ackByte {
		return fmt.Errorf("unexpected ack byte %v", b)
	}
	return nil
}
