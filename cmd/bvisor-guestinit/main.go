// Command bvisor-guestinit is never invoked directly by a user. It is a
// standalone wrapper around bootstrap.RunGuestInit, the guest's first code:
// install its seccomp filter and hand its listener fd back to the
// supervisor before exec'ing the real target (see package bootstrap for
// the full protocol). bootstrap.Launch itself re-execs the supervisor's
// own binary (cmd/bvisor) with bootstrap.GuestInitArg as argv[1], which
// reaches the same entry point; this command takes the same argv shape.
package main

import (
	"fmt"
	"os"

	"github.com/bvisor-project/bvisor/bootstrap"
)

func main() {
	if len(os.Args) < 3 || os.Args[1] != bootstrap.GuestInitArg {
		fmt.Fprintln(os.Stderr, "bvisor-guestinit: not meant to be run directly")
		os.Exit(1)
	}
	target := os.Args[2]
	argv := os.Args[2:]
	if err := bootstrap.RunGuestInit(target, argv, os.Environ()); err != nil {
		fmt.Fprintln(os.Stderr, "bvisor-guestinit:", err)
		os.Exit(1)
	}
}
