package handlers

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/bvisor-project/bvisor/errno"
	"github.com/bvisor-project/bvisor/filebackend"
	"github.com/bvisor-project/bvisor/notif"
	"github.com/bvisor-project/bvisor/pathrouter"
	"github.com/bvisor-project/bvisor/procmodel"
)

// resolvePath reads a path argument out of guest memory and routes it.
// Only an absolute path is accepted: there is no AT_FDCWD-relative
// resolution at this layer (spec.md §4.4/§4.8), since a file backend
// never keeps around a real cwd or a directory fd's host path to resolve
// a relative path against.
func resolvePath(env Env, tid int, dirfd int64, addr uint64) (string, pathrouter.Decision, error) {
	if int32(dirfd) != unix.AT_FDCWD {
		return "", pathrouter.Decision{}, errno.EBADF
	}
	buf := make([]byte, 4096)
	raw, err := env.Bridge().ReadString(tid, uintptr(addr), buf)
	if err != nil {
		return "", pathrouter.Decision{}, err
	}
	norm, err := pathrouter.Normalize(raw)
	if err != nil {
		return "", pathrouter.Decision{}, err
	}
	return norm, env.Router().Route(norm), nil
}

// Openat implements openat(2) (spec.md §4.8): route the path, then open
// the matching backend and install it as a new virtual FD.
func Openat(env Env, n *notif.Notification) notif.Reply {
	pid := int(n.Pid)
	path, decision, err := resolvePath(env, pid, int64(n.Arg0()), n.Arg1())
	if err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	if decision.Block {
		return notif.ReplyError(n, int32(errno.EACCES))
	}

	flags := int(n.Arg2())
	writable := flags&(unix.O_WRONLY|unix.O_RDWR) != 0
	var h filebackend.Handle
	switch decision.Backend {
	case filebackend.KindPassthrough:
		h, err = filebackend.OpenPassthrough(path)
	case filebackend.KindCow:
		h, err = filebackend.OpenCow(path, env.Overlay().CowDir())
	case filebackend.KindTmp:
		h, err = filebackend.CreateTmp(env.Overlay().TmpDir(), path, flags&unix.O_CREAT != 0)
	case filebackend.KindProc:
		content, rerr := renderProc(env, pid, path)
		if rerr != nil {
			return notif.ReplyError(n, int32(errToErrno(rerr)))
		}
		h = filebackend.NewProc(content)
		// Proc content is always synthetic; a guest that opens it O_RDWR
		// still never gets to actually mutate it.
		writable = false
	default:
		return notif.ReplyError(n, int32(errno.ENOSYS))
	}
	if err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}

	t, ok := env.Registry().Get(procmodel.AbsTid(pid))
	if !ok {
		h.Close()
		return notif.ReplyError(n, int32(errno.ESRCH))
	}
	vfd := env.Table(t.Tgid).Insert(h, writable)
	return notif.ReplySuccess(n, int64(vfd))
}

// Close implements close(2).
func Close(env Env, n *notif.Notification) notif.Reply {
	vfd := int(n.Arg0())
	if vfd == 0 || vfd == 1 || vfd == 2 {
		return notif.ReplyContinue(n)
	}
	tgid, ok := tgidOf(env, n.Pid)
	if !ok {
		return notif.ReplyError(n, int32(errno.ESRCH))
	}
	if err := env.Table(tgid).Remove(vfd); err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	return notif.ReplySuccess(n, 0)
}

// Read implements read(2), advancing the shared file offset by the
// number of bytes actually transferred.
func Read(env Env, n *notif.Notification) notif.Reply {
	vfd := int(n.Arg0())
	if vfd == 0 {
		return notif.ReplyContinue(n)
	}
	tgid, ok := tgidOf(env, n.Pid)
	if !ok {
		return notif.ReplyError(n, int32(errno.ESRCH))
	}
	table := env.Table(tgid)
	h, off, err := table.Get(vfd)
	if err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}

	count := int(n.Arg2())
	if count > staging {
		count = staging
	}
	buf := make([]byte, count)
	nread, err := h.ReadAt(buf, off)
	if err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	if nread > 0 {
		if err := env.Bridge().WriteSlice(int(n.Pid), uintptr(n.Arg1()), buf[:nread]); err != nil {
			return notif.ReplyError(n, int32(errToErrno(err)))
		}
		table.Advance(vfd, int64(nread))
	}
	return notif.ReplySuccess(n, int64(nread))
}

// Write implements write(2), symmetric to Read.
func Write(env Env, n *notif.Notification) notif.Reply {
	vfd := int(n.Arg0())
	if vfd == 1 || vfd == 2 {
		return notif.ReplyContinue(n)
	}
	tgid, ok := tgidOf(env, n.Pid)
	if !ok {
		return notif.ReplyError(n, int32(errno.ESRCH))
	}
	table := env.Table(tgid)
	h, off, err := table.GetWritable(vfd)
	if err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}

	count := int(n.Arg2())
	if count > staging {
		count = staging
	}
	buf := make([]byte, count)
	if err := env.Bridge().ReadSlice(int(n.Pid), uintptr(n.Arg1()), buf); err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	nwritten, err := h.WriteAt(buf, off)
	if err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	if nwritten > 0 {
		table.Advance(vfd, int64(nwritten))
	}
	return notif.ReplySuccess(n, int64(nwritten))
}

// guestIovec mirrors struct iovec's layout for membridge.Read/Write.
type guestIovec struct {
	Base uint64
	Len  uint64
}

// Readv implements readv(2) by walking the guest's iovec array and
// filling each segment in turn, capped in aggregate at the staging
// buffer size.
func Readv(env Env, n *notif.Notification) notif.Reply {
	return scatterGather(env, n, true)
}

// Writev implements writev(2), the gather side of Readv.
func Writev(env Env, n *notif.Notification) notif.Reply {
	return scatterGather(env, n, false)
}

func scatterGather(env Env, n *notif.Notification, reading bool) notif.Reply {
	vfd := int(n.Arg0())
	if reading && vfd == 0 {
		return notif.ReplyContinue(n)
	}
	if !reading && (vfd == 1 || vfd == 2) {
		return notif.ReplyContinue(n)
	}
	tgid, ok := tgidOf(env, n.Pid)
	if !ok {
		return notif.ReplyError(n, int32(errno.ESRCH))
	}
	table := env.Table(tgid)
	var h filebackend.Handle
	var off int64
	var err error
	if reading {
		h, off, err = table.Get(vfd)
	} else {
		h, off, err = table.GetWritable(vfd)
	}
	if err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}

	iovcnt := int(n.Arg2())
	if iovcnt < 0 || iovcnt > 1024 {
		return notif.ReplyError(n, int32(errno.EINVAL))
	}

	remaining := staging
	var total int64
	pid := int(n.Pid)
	for i := 0; i < iovcnt && remaining > 0; i++ {
		var iov guestIovec
		if err := env.Bridge().Read(pid, uintptr(n.Arg1())+uintptr(i*16), &iov); err != nil {
			return notif.ReplyError(n, int32(errToErrno(err)))
		}
		segLen := int(iov.Len)
		if segLen > remaining {
			segLen = remaining
		}
		if segLen == 0 {
			continue
		}
		buf := make([]byte, segLen)
		if reading {
			nread, err := h.ReadAt(buf, off+total)
			if err != nil {
				return notif.ReplyError(n, int32(errToErrno(err)))
			}
			if nread == 0 {
				break
			}
			if err := env.Bridge().WriteSlice(pid, uintptr(iov.Base), buf[:nread]); err != nil {
				return notif.ReplyError(n, int32(errToErrno(err)))
			}
			total += int64(nread)
			remaining -= nread
		} else {
			if err := env.Bridge().ReadSlice(pid, uintptr(iov.Base), buf); err != nil {
				return notif.ReplyError(n, int32(errToErrno(err)))
			}
			nwritten, err := h.WriteAt(buf, off+total)
			if err != nil {
				return notif.ReplyError(n, int32(errToErrno(err)))
			}
			total += int64(nwritten)
			remaining -= nwritten
			if nwritten < segLen {
				break
			}
		}
	}
	if total > 0 {
		table.Advance(vfd, total)
	}
	return notif.ReplySuccess(n, total)
}

// Fstat implements fstat(2) against an already-open virtual FD.
func Fstat(env Env, n *notif.Notification) notif.Reply {
	tgid, ok := tgidOf(env, n.Pid)
	if !ok {
		return notif.ReplyError(n, int32(errno.ESRCH))
	}
	h, _, err := env.Table(tgid).Get(int(n.Arg0()))
	if err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	st, err := h.Statx()
	if err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	if err := writeStat(env, int(n.Pid), uintptr(n.Arg1()), st); err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	return notif.ReplySuccess(n, 0)
}

// Fstatat implements newfstatat(2), routing the path the same way
// Openat does but never opening a handle for it.
func Fstatat(env Env, n *notif.Notification) notif.Reply {
	pid := int(n.Pid)
	path, decision, err := resolvePath(env, pid, int64(n.Arg0()), n.Arg1())
	if err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	if decision.Block {
		return notif.ReplyError(n, int32(errno.EPERM))
	}

	st, err := statPath(env, pid, path, decision.Backend)
	if err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	if err := writeStat(env, pid, uintptr(n.Arg2()), st); err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	return notif.ReplySuccess(n, 0)
}

// Faccessat implements faccessat(2): access is a pure permission probe,
// so a routed-but-blocked path is EACCES, matching the split spec.md
// draws between the open-family (EACCES) and the stat-family (EPERM).
func Faccessat(env Env, n *notif.Notification) notif.Reply {
	path, decision, err := resolvePath(env, int(n.Pid), int64(n.Arg0()), n.Arg1())
	if err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	if decision.Block {
		return notif.ReplyError(n, int32(errno.EACCES))
	}
	if _, err := statPath(env, int(n.Pid), path, decision.Backend); err != nil {
		return notif.ReplyError(n, int32(errToErrno(err)))
	}
	return notif.ReplySuccess(n, 0)
}

// statPath stats path the same way Openat's own backend would have
// opened it, so a stat family syscall never observes different content
// than a subsequent open would (spec.md §4.8's "overlay-resolved path"
// rule for fstat/fstatat/faccessat against Cow/Tmp-routed paths).
func statPath(env Env, pid int, path string, kind filebackend.Kind) (filebackend.Stat, error) {
	switch kind {
	case filebackend.KindProc:
		content, err := renderProc(env, pid, path)
		if err != nil {
			return filebackend.Stat{}, err
		}
		return filebackend.Stat{Mode: 0o444, Size: int64(len(content))}, nil
	case filebackend.KindCow:
		mirror := filebackend.CowMirrorPath(env.Overlay().CowDir(), path)
		fi, err := os.Stat(mirror)
		if os.IsNotExist(err) {
			fi, err = os.Stat(path)
		}
		if err != nil {
			return filebackend.Stat{}, translateStatErr(err)
		}
		return filebackend.Stat{Mode: uint32(fi.Mode()), Size: fi.Size(), IsDir: fi.IsDir()}, nil
	case filebackend.KindTmp:
		fi, err := os.Stat(filebackend.TmpMirrorPath(env.Overlay().TmpDir(), path))
		if err != nil {
			return filebackend.Stat{}, translateStatErr(err)
		}
		return filebackend.Stat{Mode: uint32(fi.Mode()), Size: fi.Size(), IsDir: fi.IsDir()}, nil
	default:
		fi, err := os.Stat(path)
		if err != nil {
			return filebackend.Stat{}, translateStatErr(err)
		}
		return filebackend.Stat{Mode: uint32(fi.Mode()), Size: fi.Size(), IsDir: fi.IsDir()}, nil
	}
}

func writeStat(env Env, pid int, addr uintptr, st filebackend.Stat) error {
	var raw unix.Stat_t
	raw.Mode = st.Mode
	raw.Size = st.Size
	if st.IsDir {
		raw.Mode |= unix.S_IFDIR
	} else {
		raw.Mode |= unix.S_IFREG
	}
	raw.Nlink = 1
	return env.Bridge().Write(pid, addr, &raw)
}

func tgidOf(env Env, pid uint32) (procmodel.AbsTgid, bool) {
	t, ok := env.Registry().Get(procmodel.AbsTid(pid))
	if !ok {
		return 0, false
	}
	return t.Tgid, true
}

func errToErrno(err error) errno.Errno {
	if e, ok := err.(errno.Errno); ok {
		if e == errno.EROFS {
			return errno.IO(err)
		}
		return e
	}
	if e, ok := errno.FromSyscall(err); ok {
		return e
	}
	return errno.EIO
}

func translateStatErr(err error) errno.Errno {
	if os.IsNotExist(err) {
		return errno.ENOENT
	}
	if e, ok := errno.FromSyscall(err); ok {
		return e
	}
	return errno.EIO
}
