package freebsd

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// DupFd duplicates rawFd into a fresh descriptor the caller owns. It is
// used by the effect journal to capture a long-lived copy of a descriptor
// (e.g. a process descriptor returned by pdfork) so its lifetime is
// independent of whatever produced the original.
func (h *Host) DupFd(ctx context.Context, rawFd int) (int, error) {
	newFd, err := unix.Dup(rawFd)
	if err != nil {
		return 0, fmt.Errorf("dup fd %d: %w", rawFd, err)
	}
	return newFd, nil
}

func (h *Host) DupFdUndo(ctx context.Context, dupedFd int) error {
	if pid, err := unix.Pdgetpid(dupedFd); err == nil {
		_ = unix.Kill(pid, unix.SIGKILL)
	}
	return unix.Close(dupedFd)
}

// Pdfork forks a new process whose lifetime is tracked by a process
// descriptor instead of a pid, per pdfork(2). The returned fd is suitable
// for EVFILT_PROCDESC registration in a kqueue Reactor. daemonize sets
// PD_DAEMON, so closing the returned descriptor does not kill the child.
func Pdfork(daemonize bool) (pid int, procFd int, err error) {
	flags := 0
	if daemonize {
		flags |= unix.PD_DAEMON
	}
	pid, fd, err := unix.Pdfork(flags)
	if err != nil {
		return 0, -1, fmt.Errorf("pdfork: %w", err)
	}
	return pid, fd, nil
}

// Pdkill sends sig to the process referenced by procFd.
func Pdkill(procFd int, sig unix.Signal) error {
	if err := unix.Pdkill(procFd, int(sig)); err != nil {
		return fmt.Errorf("pdkill fd=%d: %w", procFd, err)
	}
	return nil
}

// Pdgetpid resolves procFd back to its pid, needed when logging or when
// calling APIs (e.g. zfs jail) that still take a jid/pid rather than a
// descriptor.
func Pdgetpid(procFd int) (int, error) {
	pid, err := unix.Pdgetpid(procFd)
	if err != nil {
		return 0, fmt.Errorf("pdgetpid fd=%d: %w", procFd, err)
	}
	return pid, nil
}
