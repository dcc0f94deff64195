// Command bvisor supervises a single guest command under a
// seccomp-user-notification sandbox, exposing a copy-on-write view of
// the host filesystem, a private tmp, and a virtualised PID namespace.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/bvisor-project/bvisor/bootstrap"
	"github.com/bvisor-project/bvisor/membridge"
	"github.com/bvisor-project/bvisor/overlay"
	"github.com/bvisor-project/bvisor/pathrouter"
	"github.com/bvisor-project/bvisor/pkg/rlimit"
	"github.com/bvisor-project/bvisor/procmodel"
	"github.com/bvisor-project/bvisor/runner"
	"github.com/bvisor-project/bvisor/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) > 1 && os.Args[1] == bootstrap.GuestInitArg {
		// bootstrap.Launch re-execs this binary with GuestInitArg as
		// argv[1]: run the guest-side half of the listener handoff, which
		// ends by exec'ing the real target and so only returns on failure.
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "bvisor: guest init: no target command")
			return 1
		}
		if err := bootstrap.RunGuestInit(os.Args[2], os.Args[2:], os.Environ()); err != nil {
			fmt.Fprintln(os.Stderr, "bvisor: guest init:", err)
		}
		return 1
	}

	overlayDir := pflag.String("overlay-dir", "", "directory to create the private overlay under (default: system temp dir)")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logging")
	timeLimit := pflag.Uint64("time-limit", 0, "guest CPU time limit in seconds (0 = unlimited)")
	memoryLimit := pflag.Uint64("memory-limit", 0, "guest address space limit in bytes (0 = unlimited)")
	unsafeMode := pflag.Bool("unsafe", false, "accepted for compatibility; has no effect")
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: bvisor [flags] -- command [args...]")
		return 2
	}

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	_ = unsafeMode // parsed but not consulted anywhere

	root, err := overlay.New(*overlayDir)
	if err != nil {
		log.WithError(err).Error("create overlay root")
		return 1
	}
	defer root.Close()

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	state := supervisor.NewState(
		membridge.New(false),
		pathrouter.New(root.Base()),
		root,
		procmodel.New(),
		log,
	)

	g := &supervisor.GuestRunner{
		Config: bootstrap.Config{
			Args:   args,
			Env:    os.Environ(),
			Dir:    cwd,
			Limits: rlimit.RLimits{CPU: *timeLimit, AddressSpace: *memoryLimit},
		},
		State: state,
	}

	res := g.Run(context.Background())
	log.WithField("result", res.String()).Debug("guest finished")

	switch res.Status {
	case runner.StatusNormal:
		return 0
	case runner.StatusNonzeroExitStatus:
		return res.ExitStatus
	case runner.StatusSignalled:
		return 128 + res.ExitStatus
	default:
		log.WithField("error", res.Error).Error("supervisor failed")
		return 1
	}
}
