package handlers

import (
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/bvisor-project/bvisor/errno"
	"github.com/bvisor-project/bvisor/filebackend"
	"github.com/bvisor-project/bvisor/notif"
)

// guestPathBuf builds a fixed 4096-byte buffer holding path NUL-terminated
// — resolvePath's ReadString always reads a full 4096-byte window in test
// mode, so a shorter backing array would let the read run past it.
func guestPathBuf(path string) *[4096]byte {
	var buf [4096]byte
	copy(buf[:], path)
	return &buf
}

// cowHostDir returns a scratch directory whose paths the router sends to
// the Cow backend. t.TempDir() lives under os.TempDir(), normally /tmp,
// whose paths the router sends to the Tmp backend instead.
func cowHostDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/var/tmp", "bvisor-cow-test-")
	if err != nil {
		t.Fatalf("create Cow-routed scratch dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// doOpenat drives Openat against path with the given open flags.
func doOpenat(t *testing.T, env *testEnv, path string, flags int) notif.Reply {
	t.Helper()
	pathBuf := guestPathBuf(path)
	addr := uint64(uintptr(unsafe.Pointer(&pathBuf[0])))
	n := notif.NewNotification(1, 1, 0, [6]uint64{uint64(unix.AT_FDCWD), addr, uint64(flags)})
	return Openat(env, n)
}

func TestOpenatReadOnlyOpenedFdRejectsWriteAsEIO(t *testing.T) {
	env := newTestEnv(t)
	dir := cowHostDir(t)
	hostPath := filepath.Join(dir, "readonly.txt")
	if err := os.WriteFile(hostPath, []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed host file: %v", err)
	}

	reply := doOpenat(t, env, hostPath, unix.O_RDONLY)
	if reply.How != notif.Emulated || reply.Error != 0 {
		t.Fatalf("Openat(O_RDONLY) = %+v, want success", reply)
	}
	vfd := reply.Val

	buf := []byte("mutated!")
	addr := uint64(uintptr(unsafe.Pointer(&buf[0])))
	wn := notif.NewNotification(2, 1, 0, [6]uint64{uint64(vfd), addr, uint64(len(buf))})
	wreply := Write(env, wn)

	if wreply.Error != int32(errno.EIO) {
		t.Fatalf("Write on a read-only-opened Cow fd = errno %d, want EIO (not raw EROFS %d)", wreply.Error, errno.EROFS)
	}

	content, err := os.ReadFile(hostPath)
	if err != nil {
		t.Fatalf("read host file: %v", err)
	}
	if string(content) != "hello" {
		t.Fatalf("host file was mutated despite a rejected write: %q", content)
	}
}

func TestOpenatWriteFlagAllowsCowPromotion(t *testing.T) {
	env := newTestEnv(t)
	dir := cowHostDir(t)
	hostPath := filepath.Join(dir, "writable.txt")
	if err := os.WriteFile(hostPath, []byte("original"), 0o644); err != nil {
		t.Fatalf("seed host file: %v", err)
	}

	reply := doOpenat(t, env, hostPath, unix.O_RDWR)
	if reply.How != notif.Emulated || reply.Error != 0 {
		t.Fatalf("Openat(O_RDWR) = %+v, want success", reply)
	}
	vfd := reply.Val

	buf := []byte("mutated!")
	addr := uint64(uintptr(unsafe.Pointer(&buf[0])))
	wn := notif.NewNotification(2, 1, 0, [6]uint64{uint64(vfd), addr, uint64(len(buf))})
	wreply := Write(env, wn)
	if wreply.Error != 0 {
		t.Fatalf("Write on an O_RDWR-opened Cow fd failed: errno %d", wreply.Error)
	}

	hostContent, err := os.ReadFile(hostPath)
	if err != nil {
		t.Fatalf("read host file: %v", err)
	}
	if string(hostContent) != "original" {
		t.Fatalf("host file was mutated: %q", hostContent)
	}

	mirror := filebackend.CowMirrorPath(env.Overlay().CowDir(), hostPath)
	mirrorContent, err := os.ReadFile(mirror)
	if err != nil {
		t.Fatalf("read overlay mirror: %v", err)
	}
	if string(mirrorContent) != "mutated!" {
		t.Fatalf("overlay mirror content = %q, want mutated!", mirrorContent)
	}
}

func doFstatat(t *testing.T, env *testEnv, path string) (notif.Reply, unix.Stat_t) {
	t.Helper()
	pathBuf := guestPathBuf(path)
	pathAddr := uint64(uintptr(unsafe.Pointer(&pathBuf[0])))
	var raw unix.Stat_t
	statAddr := uint64(uintptr(unsafe.Pointer(&raw)))
	n := notif.NewNotification(3, 1, 0, [6]uint64{uint64(unix.AT_FDCWD), pathAddr, statAddr})
	reply := Fstatat(env, n)
	return reply, raw
}

func TestFstatatOnMaterialisedCowFileSeesOverlayContent(t *testing.T) {
	env := newTestEnv(t)
	dir := cowHostDir(t)
	hostPath := filepath.Join(dir, "stat-me.txt")
	if err := os.WriteFile(hostPath, []byte("aa"), 0o644); err != nil {
		t.Fatalf("seed host file: %v", err)
	}

	openReply := doOpenat(t, env, hostPath, unix.O_RDWR)
	if openReply.Error != 0 {
		t.Fatalf("Openat: %+v", openReply)
	}
	vfd := openReply.Val
	buf := []byte("a much longer overlay-only body")
	addr := uint64(uintptr(unsafe.Pointer(&buf[0])))
	wn := notif.NewNotification(4, 1, 0, [6]uint64{uint64(vfd), addr, uint64(len(buf))})
	if wreply := Write(env, wn); wreply.Error != 0 {
		t.Fatalf("Write: %+v", wreply)
	}

	statReply, st := doFstatat(t, env, hostPath)
	if statReply.Error != 0 {
		t.Fatalf("Fstatat: %+v", statReply)
	}
	if st.Size != int64(len(buf)) {
		t.Fatalf("Fstatat size = %d, want %d (the overlay copy, not the 2-byte host file)", st.Size, len(buf))
	}
}

func TestFstatatOnTmpFileResolvesFlattenedMirror(t *testing.T) {
	env := newTestEnv(t)
	guestPath := "/tmp/scratch.txt"

	openReply := doOpenat(t, env, guestPath, unix.O_RDWR|unix.O_CREAT)
	if openReply.Error != 0 {
		t.Fatalf("Openat(/tmp/scratch.txt): %+v", openReply)
	}
	vfd := openReply.Val
	buf := []byte("tmp content")
	addr := uint64(uintptr(unsafe.Pointer(&buf[0])))
	wn := notif.NewNotification(5, 1, 0, [6]uint64{uint64(vfd), addr, uint64(len(buf))})
	if wreply := Write(env, wn); wreply.Error != 0 {
		t.Fatalf("Write: %+v", wreply)
	}

	statReply, _ := doFstatat(t, env, guestPath)
	if statReply.Error != 0 {
		t.Fatalf("Fstatat(/tmp/scratch.txt) = %+v, want success against the flattened overlay mirror", statReply)
	}
}
