//go:build linux
// +build linux

package notif

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Listener wraps the notification fd obtained from the guest's
// SECCOMP_RET_USER_NOTIF filter (via bootstrap's cross-process FD
// handoff, spec.md §6).
type Listener struct {
	fd int
}

// NewListener takes ownership of fd; the caller must not use it directly
// afterwards.
func NewListener(fd int) *Listener {
	return &Listener{fd: fd}
}

// Close releases the listener fd.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

// Recv blocks until a guest thread traps, or returns ENOENT once no guest
// thread remains (spec.md §4.1).
func (l *Listener) Recv() (*Notification, error) {
	var raw unix.SeccompNotif
	if err := ioctl(l.fd, unix.SECCOMP_IOCTL_NOTIF_RECV, uintptr(unsafe.Pointer(&raw))); err != nil {
		return nil, err
	}
	n := &Notification{
		Id:        raw.Id,
		Pid:       raw.Pid,
		syscallNr: raw.Data.Nr,
	}
	copy(n.args[:], raw.Data.Args[:])
	return n, nil
}

// Send delivers a reply. A reply that races a guest exit returns ENOENT;
// per spec.md §4.1 that is not fatal — the caller should log and continue.
func (l *Listener) Send(r Reply) error {
	raw := unix.SeccompNotifResp{
		Id:    r.Id,
		Val:   r.Val,
		Error: r.Error,
	}
	if r.How == Continue {
		raw.Flags = unix.SECCOMP_USER_NOTIF_FLAG_CONTINUE
	}
	return ioctl(l.fd, unix.SECCOMP_IOCTL_NOTIF_SEND, uintptr(unsafe.Pointer(&raw)))
}

// Valid reports whether the notification id is still live — the kernel's
// NOTIF_ID_VALID check, for re-verifying that a slow lookup didn't race
// a guest exit.
func (l *Listener) Valid(id uint64) bool {
	v := id
	err := ioctl(l.fd, unix.SECCOMP_IOCTL_NOTIF_ID_VALID, uintptr(unsafe.Pointer(&v)))
	return err == nil
}

func ioctl(fd int, req uint, arg uintptr) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), uintptr(req), arg)
	if errno != 0 {
		return errno
	}
	return nil
}

// IsGuestGone reports whether err is the "no guest threads remain" signal
// spec.md §4.1 calls out for Recv, or the "reply raced guest exit" signal
// for Send.
func IsGuestGone(err error) bool {
	errno, ok := err.(syscall.Errno)
	return ok && errno == syscall.ENOENT
}

// ErrFatal wraps a non-ENOENT error from Recv/Send, which spec.md §4.1/§7
// says must unwind the supervisor loop.
type ErrFatal struct {
	Op  string
	Err error
}

func (e *ErrFatal) Error() string {
	return fmt.Sprintf("notif: %s: %v", e.Op, e.Err)
}

func (e *ErrFatal) Unwrap() error { return e.Err }
