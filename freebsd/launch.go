package freebsd

import (
	"context"
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/banksean/xcd/image"
)

// JailLauncher implements reactor.Launcher: it pdforks a process
// descriptor, attaches the child to the target jail, and execs the
// resolved command inside it. Grounded on
// container::process::spawn_process_forward's fork+attach+exec sequence,
// adapted to pdfork's process-descriptor tracking (see procdesc.go)
// instead of the original's bare pid.
type JailLauncher struct{}

func (JailLauncher) Launch(ctx context.Context, jid int, step image.Jexec) (pid int, procFd int, err error) {
	if len(step.Args) == 0 {
		return 0, 0, fmt.Errorf("freebsd: launch: empty argv")
	}
	path, err := exec.LookPath(step.Args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("freebsd: launch: resolve %q: %w", step.Args[0], err)
	}

	cpid, fd, err := unix.Pdfork(unix.PD_DAEMON)
	if err != nil {
		return 0, 0, fmt.Errorf("freebsd: pdfork: %w", err)
	}
	if cpid == 0 {
		// Child: attach to the target jail before replacing the image, so
		// the exec'd process inherits the jail's filesystem/network view.
		if _, _, errno := unix.Syscall(unix.SYS_JAIL_ATTACH, uintptr(jid), 0, 0); errno != 0 {
			unix.Exit(127)
		}
		if step.WorkDir != "" {
			_ = unix.Chdir(step.WorkDir)
		}
		_ = unix.Exec(path, step.Args, step.Env)
		unix.Exit(127)
	}
	return cpid, fd, nil
}
