// Package membridge implements spec.md §4.3: copying fixed-layout structs,
// byte ranges, and NUL-terminated strings between the supervisor's address
// space and a guest thread's, via process_vm_readv/writev in production or
// a local memcpy in test builds.
package membridge

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bvisor-project/bvisor/errno"
)

// Bridge is the cross-address-space memory accessor. The zero value talks
// to real guest processes; TestMode makes every address a supervisor-local
// pointer, per spec.md §4.3's test-mode carve-out.
type Bridge struct {
	TestMode bool
}

// New returns a Bridge. testMode selects the local-memcpy path used by
// handler unit tests that have no second process to read from.
func New(testMode bool) *Bridge {
	return &Bridge{TestMode: testMode}
}

// ReadSlice fills buf from the guest thread tid's memory at addr.
func (b *Bridge) ReadSlice(tid int, addr uintptr, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if b.TestMode {
		localCopy(buf, addr)
		return nil
	}
	n, err := vmRead(tid, addr, buf)
	if err != nil {
		return translate(err)
	}
	if n < len(buf) {
		return errno.EFAULT
	}
	return nil
}

// WriteSlice writes buf into the guest thread tid's memory at addr.
func (b *Bridge) WriteSlice(tid int, addr uintptr, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if b.TestMode {
		localCopyOut(addr, buf)
		return nil
	}
	n, err := vmWrite(tid, addr, buf)
	if err != nil {
		return translate(err)
	}
	if n < len(buf) {
		return errno.EFAULT
	}
	return nil
}

// Read decodes a fixed-layout little-endian struct from guest memory at
// addr into out, which must be a pointer.
func (b *Bridge) Read(tid int, addr uintptr, out any) error {
	size := binary.Size(out)
	if size < 0 {
		return fmt.Errorf("membridge: %T is not a fixed-size type", out)
	}
	buf := make([]byte, size)
	if err := b.ReadSlice(tid, addr, buf); err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, out)
}

// Write encodes value as a fixed-layout little-endian struct and writes it
// to guest memory at addr.
func (b *Bridge) Write(tid int, addr uintptr, value any) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, value); err != nil {
		return fmt.Errorf("membridge: encode %T: %w", value, err)
	}
	return b.WriteSlice(tid, addr, buf.Bytes())
}

// ReadString reads at most len(buf) bytes starting at addr and returns the
// prefix up to the first NUL. Per spec.md §4.3, a missing NUL within the
// buffer is ENAMETOOLONG, not truncation.
func (b *Bridge) ReadString(tid int, addr uintptr, buf []byte) (string, error) {
	if len(buf) == 0 {
		return "", errno.ENAMETOOLONG
	}
	n, err := b.readUntilNUL(tid, addr, buf)
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", errno.ENAMETOOLONG
	}
	return string(buf[:n]), nil
}

// readUntilNUL fills buf page-by-page (mirroring the teacher's vmReadStr
// chunking) and returns the index of the first NUL, or -1 if none was
// found within len(buf).
func (b *Bridge) readUntilNUL(tid int, addr uintptr, buf []byte) (int, error) {
	if b.TestMode {
		localCopy(buf, addr)
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			return i, nil
		}
		return -1, nil
	}

	total := 0
	next := pageSize - int(addr%uintptr(pageSize))
	if next == 0 {
		next = pageSize
	}
	for total < len(buf) {
		chunk := next
		if rest := len(buf) - total; rest < chunk {
			chunk = rest
		}
		n, err := vmRead(tid, addr+uintptr(total), buf[total:total+chunk])
		if err != nil {
			return 0, translate(err)
		}
		if n == 0 {
			break
		}
		if i := bytes.IndexByte(buf[total:total+n], 0); i >= 0 {
			return total + i, nil
		}
		total += n
		next = pageSize
	}
	return -1, nil
}

func translate(err error) error {
	if e, ok := errno.FromSyscall(err); ok {
		return e
	}
	return errno.EFAULT
}
