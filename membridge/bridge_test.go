package membridge

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/bvisor-project/bvisor/errno"
)

func TestReadWriteSliceRoundTripInTestMode(t *testing.T) {
	b := New(true)
	src := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	addr := uintptr(unsafe.Pointer(&src[0]))

	got := make([]byte, len(src))
	if err := b.ReadSlice(1, addr, got); err != nil {
		t.Fatalf("ReadSlice: %v", err)
	}
	if !bytes.Equal(got, src[:]) {
		t.Fatalf("ReadSlice copied %v, want %v", got, src)
	}

	if err := b.WriteSlice(1, addr, []byte{9, 9, 9, 9, 9, 9, 9, 9}); err != nil {
		t.Fatalf("WriteSlice: %v", err)
	}
	for i, v := range src {
		if v != 9 {
			t.Fatalf("src[%d] = %d after WriteSlice, want 9", i, v)
		}
	}
}

type fixedStruct struct {
	A uint32
	B uint32
}

func TestReadWriteFixedStruct(t *testing.T) {
	b := New(true)
	var dst fixedStruct
	src := fixedStruct{A: 42, B: 7}
	addr := uintptr(unsafe.Pointer(&src))

	if err := b.Read(1, addr, &dst); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if dst != src {
		t.Fatalf("Read = %+v, want %+v", dst, src)
	}

	var target fixedStruct
	targetAddr := uintptr(unsafe.Pointer(&target))
	if err := b.Write(1, targetAddr, &fixedStruct{A: 1, B: 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if target != (fixedStruct{A: 1, B: 2}) {
		t.Fatalf("target after Write = %+v, want {1 2}", target)
	}
}

func TestReadStringStopsAtNUL(t *testing.T) {
	b := New(true)
	backing := make([]byte, 64)
	copy(backing, "hello\x00garbage-after-nul")
	addr := uintptr(unsafe.Pointer(&backing[0]))

	got, err := b.ReadString(1, addr, make([]byte, len(backing)))
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if got != "hello" {
		t.Fatalf("ReadString = %q, want %q", got, "hello")
	}
}

func TestReadStringWithoutNULIsENAMETOOLONG(t *testing.T) {
	b := New(true)
	backing := make([]byte, 8)
	for i := range backing {
		backing[i] = 'x'
	}
	addr := uintptr(unsafe.Pointer(&backing[0]))

	if _, err := b.ReadString(1, addr, make([]byte, len(backing))); err != errno.ENAMETOOLONG {
		t.Fatalf("ReadString without a NUL = %v, want ENAMETOOLONG", err)
	}
}

func TestReadStringEmptyBufIsENAMETOOLONG(t *testing.T) {
	b := New(true)
	if _, err := b.ReadString(1, 0, nil); err != errno.ENAMETOOLONG {
		t.Fatalf("ReadString with an empty buf = %v, want ENAMETOOLONG", err)
	}
}
