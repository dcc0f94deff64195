//go:build linux
// +build linux

package membridge

import (
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

var pageSize = os.Getpagesize()

// vmRead and vmWrite are process_vm_readv/writev wrappers, adapted from
// the teacher's ptracer/context_helper_linux.go: one iovec on each side,
// a single vectored syscall per call. Unlike ptrace, this needs no
// ptrace-stop and works against a running thread.
func vmRead(pid int, addr uintptr, buf []byte) (int, error) {
	local := []unix.Iovec{iovec(&buf[0], len(buf))}
	remote := []unix.Iovec{iovec((*byte)(unsafe.Pointer(addr)), len(buf))}
	n, _, errno := processVM(unix.SYS_PROCESS_VM_READV, pid, local, remote)
	if errno != 0 {
		return int(n), errno
	}
	return int(n), nil
}

func vmWrite(pid int, addr uintptr, buf []byte) (int, error) {
	local := []unix.Iovec{iovec(&buf[0], len(buf))}
	remote := []unix.Iovec{iovec((*byte)(unsafe.Pointer(addr)), len(buf))}
	n, _, errno := processVM(unix.SYS_PROCESS_VM_WRITEV, pid, local, remote)
	if errno != 0 {
		return int(n), errno
	}
	return int(n), nil
}

func processVM(sysno uintptr, pid int, local, remote []unix.Iovec) (r1, r2 uintptr, err syscall.Errno) {
	return syscall.Syscall6(sysno, uintptr(pid),
		uintptr(unsafe.Pointer(&local[0])), uintptr(len(local)),
		uintptr(unsafe.Pointer(&remote[0])), uintptr(len(remote)), 0)
}

func iovec(base *byte, l int) unix.Iovec {
	return unix.Iovec{Base: base, Len: uint64(l)}
}

// localCopy and localCopyOut implement the test-mode path: addr is treated
// as a pointer already valid in the supervisor's own address space.
func localCopy(dst []byte, addr uintptr) {
	src := unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(dst))
	copy(dst, src)
}

func localCopyOut(addr uintptr, src []byte) {
	dst := unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(src))
	copy(dst, src)
}
