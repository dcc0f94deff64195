//go:build linux
// +build linux

package bootstrap

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bvisor-project/bvisor/notif"
	"github.com/bvisor-project/bvisor/pkg/forkexec"
	"github.com/bvisor-project/bvisor/pkg/rlimit"
	"github.com/bvisor-project/bvisor/pkg/unixsocket"
)

// Config describes one guest launch.
type Config struct {
	Args []string
	Env  []string
	Dir  string

	// Limits carries the resource limits applied to the guest via
	// pkg/rlimit; a zero field sets no limit for that resource.
	Limits rlimit.RLimits
}

// Guest is a launched guest process plus the listener it hands its
// syscalls to.
type Guest struct {
	Pid      int
	Listener *notif.Listener

	parentSock *unixsocket.Socket
	pidfd      int
}

// Launch starts cfg.Args[0] under a seccomp user-notification filter and
// returns once the listener fd handoff has completed — the guest is
// blocked waiting for completeHandoff's ackByte at that point, so it has not yet
// executed a single instruction of the real target.
func Launch(cfg Config) (*Guest, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: resolve own executable: %w", err)
	}

	parent, child, err := unixsocket.NewSocketPair()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create control socketpair: %w", err)
	}
	childFile, err := child.File()
	if err != nil {
		child.Close()
		parent.Close()
		return nil, fmt.Errorf("bootstrap: dup control socket: %w", err)
	}
	defer child.Close()
	defer childFile.Close()

	runner := &forkexec.Runner{
		Args:       append([]string{self, GuestInitArg}, cfg.Args...),
		Env:        cfg.Env,
		WorkDir:    cfg.Dir,
		Files:      []uintptr{0, 1, 2, childFile.Fd()},
		RLimits:    cfg.Limits.PrepareRLimit(),
		NoNewPrivs: true,
	}

	pid, err := runner.Start()
	if err != nil {
		parent.Close()
		return nil, fmt.Errorf("bootstrap: start guest: %w", err)
	}

	g := &Guest{Pid: pid, parentSock: parent}
	if err := g.completeHandoff(); err != nil {
		unix.Kill(pid, unix.SIGKILL)
		parent.Close()
		return nil, err
	}
	return g, nil
}

// completeHandoff receives the guest's predicted listener fd number,
// duplicates it into the supervisor's own fd table via pidfd_getfd, and
// acknowledges so the guest can proceed to exec.
func (g *Guest) completeHandoff() error {
	pidfd, err := unix.PidfdOpen(g.Pid, 0)
	if err != nil {
		return fmt.Errorf("bootstrap: pidfd_open: %w", err)
	}
	g.pidfd = pidfd

	buf := make([]byte, predictMsgLen)
	n, _, err := g.parentSock.RecvMsg(buf)
	if err != nil {
		return fmt.Errorf("bootstrap: recv predicted fd: %w", err)
	}
	if n != predictMsgLen {
		return fmt.Errorf("bootstrap: short predicted-fd message (%d bytes)", n)
	}
	guestFd := int(binary.LittleEndian.Uint32(buf))

	// The guest reports its prediction before installing the filter, so
	// the fd may not exist yet: retry with short sleeps while it is EBADF.
	const getfdAttempts = 100
	var listenerFd int
	for attempt := 1; ; attempt++ {
		listenerFd, err = unix.PidfdGetfd(pidfd, guestFd, 0)
		if err != unix.EBADF || attempt == getfdAttempts {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("bootstrap: pidfd_getfd: %w", err)
	}
	g.Listener = notif.NewListener(listenerFd)

	if err := g.parentSock.SendMsg([]byte{ackByte}, unixsocket.Msg{}); err != nil {
		return fmt.Errorf("bootstrap: send ack: %w", err)
	}
	return nil
}

// Close releases bootstrap-owned resources that outlive the handoff
// (the listener itself is owned by the caller once Launch returns).
func (g *Guest) Close() error {
	g.parentSock.Close()
	return unix.Close(g.pidfd)
}
