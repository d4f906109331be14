package reactor

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/banksean/xcd/control"
	"github.com/banksean/xcd/freebsd"
	"github.com/banksean/xcd/image"
	"github.com/stretchr/testify/require"
)

func TestPhaseString(t *testing.T) {
	require.Equal(t, "created", Created.String())
	require.Equal(t, "main_running", MainRunning.String())
	require.Equal(t, "fault", Fault.String())
}

func TestProcessStatExitTracking(t *testing.T) {
	stat := ProcessStat{Exec: image.Jexec{Jid: 1}, StartedAt: time.Now()}
	require.False(t, stat.Exited())

	stat.SetExited(0)
	require.True(t, stat.Exited())
	require.Equal(t, 0, stat.ExitCode)
	require.False(t, stat.ExitedAt.IsZero())
}

// exitLauncher is a test Launcher: rather than attach to a jail, each step
// pdforks a child that exits with the code encoded in Args[0] (optionally
// after sleeping for Args[1] milliseconds), exercising the real
// EVFILT_PROCDESC path a production jail attach would also go through.
type exitLauncher struct{}

func (exitLauncher) Launch(ctx context.Context, jid int, step image.Jexec) (int, int, error) {
	code, _ := strconv.Atoi(step.Args[0])
	delay := 0
	if len(step.Args) > 1 {
		delay, _ = strconv.Atoi(step.Args[1])
	}
	pid, fd, err := freebsd.Pdfork(false)
	if err != nil {
		return 0, 0, err
	}
	if pid == 0 {
		if delay > 0 {
			time.Sleep(time.Duration(delay) * time.Millisecond)
		}
		unix.Exit(code)
	}
	return pid, fd, nil
}

func step(description string, required bool, exitCode int, delayMs int) Step {
	args := []string{strconv.Itoa(exitCode)}
	if delayMs > 0 {
		args = append(args, strconv.Itoa(delayMs))
	}
	return Step{Exec: image.Jexec{Args: args}, Required: required, Description: description}
}

func newTestReactor(t *testing.T, bp Blueprint) *Reactor {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "ctl.sock")
	r, err := New("test-"+t.Name(), socketPath, control.Table{}, bp)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func waitForPhase(t *testing.T, r *Reactor, want Phase, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.Phase() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("reactor stuck in phase %s, wanted %s", r.Phase(), want)
}

func TestReactorRunsInitMainDeinitInOrder(t *testing.T) {
	bp := Blueprint{
		Init:   []Step{step("init-0", true, 0, 0), step("init-1", true, 0, 0)},
		Main:   ptrStep(step("main", true, 0, 0)),
		Deinit: []Step{step("deinit-0", false, 0, 0)},
	}
	r := newTestReactor(t, bp)

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(context.Background(), exitLauncher{}) }()

	waitForPhase(t, r, Finished, 2*time.Second)
	require.NoError(t, <-errCh)

	require.True(t, r.Init[0].Exited())
	require.Equal(t, 0, r.Init[0].ExitCode)
	require.True(t, r.Init[1].Exited())
	require.True(t, r.Main.Exited())
	require.Equal(t, 0, r.Main.ExitCode)
	require.True(t, r.Deinit[0].Exited())
}

func TestReactorRequiredInitFailureFaultsAndRunsDeinit(t *testing.T) {
	bp := Blueprint{
		Init:   []Step{step("init-0", true, 7, 0)},
		Main:   ptrStep(step("main", true, 0, 0)),
		Deinit: []Step{step("deinit-0", false, 0, 0)},
	}
	r := newTestReactor(t, bp)

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(context.Background(), exitLauncher{}) }()

	waitForPhase(t, r, Finished, 2*time.Second)
	require.NoError(t, <-errCh)

	require.True(t, r.Init[0].Exited())
	require.Equal(t, 7, r.Init[0].ExitCode)
	// main must never have been spawned: a required init failure faults
	// straight past it into deinit.
	require.Zero(t, r.Main.Pid)
	require.True(t, r.Deinit[0].Exited())
}

func TestReactorNoCleanSkipsDeinitOnFault(t *testing.T) {
	bp := Blueprint{
		Init:    []Step{step("init-0", true, 1, 0)},
		Deinit:  []Step{step("deinit-0", false, 0, 0)},
		NoClean: true,
	}
	r := newTestReactor(t, bp)

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(context.Background(), exitLauncher{}) }()

	waitForPhase(t, r, Finished, 2*time.Second)
	require.NoError(t, <-errCh)

	require.True(t, r.Init[0].Exited())
	// no_clean short-circuits straight to Finished; deinit never runs.
	require.False(t, r.Deinit[0].Exited())
}

func TestReactorKillRunsDeinit(t *testing.T) {
	bp := Blueprint{
		Main:   ptrStep(step("main", true, 0, 5000)),
		Deinit: []Step{step("deinit-0", false, 0, 0)},
	}
	r := newTestReactor(t, bp)

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(context.Background(), exitLauncher{}) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.Phase() != MainRunning && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, MainRunning, r.Phase())

	require.NoError(t, r.Kill())

	waitForPhase(t, r, Finished, 2*time.Second)
	require.NoError(t, <-errCh)

	require.True(t, r.Main.Exited())
	require.True(t, r.Deinit[0].Exited())
}

func ptrStep(s Step) *Step { return &s }
