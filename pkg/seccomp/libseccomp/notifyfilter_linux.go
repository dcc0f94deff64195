package libseccomp

import (
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/bvisor-project/bvisor/pkg/seccomp"
)

// BuildNotifyFilter assembles the BPF program every guest thread installs
// before its first traced instruction: an unconditional
// SECCOMP_RET_USER_NOTIF, so every syscall traps to the supervisor and
// the dispatcher's handler table — not the filter itself — decides what
// gets emulated versus passed through.
//
// libseccomp.Policy/ToSeccompAction (builder_linux.go) can't express this:
// go-seccomp-bpf's Action enum predates SECCOMP_RET_USER_NOTIF, so this
// builds the program directly with golang.org/x/net/bpf, the same
// package Builder.Build ultimately hands its own program to.
func BuildNotifyFilter() (seccomp.Filter, error) {
	program := []bpf.Instruction{
		bpf.RetConstant{Val: unix.SECCOMP_RET_USER_NOTIF},
	}
	return ExportBPF(program)
}
