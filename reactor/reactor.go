// Package reactor drives a single container's process lifecycle through a
// per-container kqueue event loop, grounded on xc::container::process's
// ProcessStat/SpawnInfo bookkeeping and the control_stream/event-loop
// split in xc::container::runner. One Reactor owns one jail: it steps
// through the container's init/main/deinit sequence, answers the jail's
// control socket, and reacts to an externally triggered kill event, all on
// one kqueue (spec.md §4.4, §9 "the Reactor is intentionally a
// straight-line kqueue loop; do not hide it behind a task runtime").
package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/banksean/xcd/control"
	"github.com/banksean/xcd/freebsd"
	"github.com/banksean/xcd/image"
)

type Phase int

const (
	Created Phase = iota
	InitRunning
	MainRunning
	DeinitRunning
	Finished
	Killing
	Fault
)

func (p Phase) String() string {
	switch p {
	case Created:
		return "created"
	case InitRunning:
		return "init_running"
	case MainRunning:
		return "main_running"
	case DeinitRunning:
		return "deinit_running"
	case Finished:
		return "finished"
	case Killing:
		return "killing"
	case Fault:
		return "fault"
	default:
		return "unknown"
	}
}

// stepKind tags which of init/main/deinit a ProcessStat belongs to, so an
// EVFILT_PROCDESC exit event can be routed back to the right stepping rule
// without relying solely on the Reactor's current Phase (Killing overrides
// Phase but the underlying step kind still matters for bookkeeping).
type stepKind int

const (
	noStep stepKind = iota
	stepInit
	stepMain
	stepDeinit
)

// ProcessStat tracks one spawned process, grounded 1:1 on
// xc::container::process::ProcessStat. Required mirrors the originating
// image.Exec's Required flag: a non-ignorable init step that exits
// non-zero drives the Reactor into Fault instead of proceeding; the main
// step's exit always proceeds to deinit.
type ProcessStat struct {
	Exec        image.Jexec
	Description string
	Required    bool
	Pid         int
	ProcFd      int
	StartedAt   time.Time
	ExitedAt    time.Time
	ExitCode    int
	exited      bool
}

func (p *ProcessStat) Exited() bool { return p.exited }

func (p *ProcessStat) SetExited(code int) {
	p.ExitedAt = time.Now()
	p.ExitCode = code
	p.exited = true
}

// Step is one process the Reactor will launch at a specific lifecycle
// point, the input form of a ProcessStat before it has been spawned.
type Step struct {
	Exec        image.Jexec
	Required    bool
	Description string
}

// Blueprint is everything a Reactor needs to drive one container through
// its init/main/deinit sequence: the Go analogue of RunningContainer's
// init_proto/main_proto/deinit_proto plus the three _norun flags and the
// persist/no_clean policy governing what happens once Finished (spec.md
// §3 RunningContainer, §4.4).
type Blueprint struct {
	Jid    int
	Init   []Step
	Main   *Step
	Deinit []Step

	MainNoRun   bool
	InitNoRun   bool
	DeinitNoRun bool
	NoClean     bool
	Persist     bool
}

// Launcher spawns one resolved Jexec as a process descriptor the Reactor
// can track via EVFILT_PROCDESC, independent of how jail attachment and
// argv/envp construction actually happen on the host; freebsd.JailLauncher
// is the production implementation.
type Launcher interface {
	Launch(ctx context.Context, jid int, step image.Jexec) (pid int, procFd int, err error)
}

type connEntry struct {
	conn *net.UnixConn
	fd   int
	cc   *control.ConnectionContext
}

// Reactor supervises one container's init/main/deinit sequence and its
// control socket over a single kqueue.
type Reactor struct {
	mu sync.Mutex

	ContainerID string
	phase       Phase
	jid         int

	kq   *freebsd.Kqueue
	kill uint64 // EVFILT_USER ident used as the kill switch

	Init      []ProcessStat
	initIdx   int
	Main      *ProcessStat
	Deinit    []ProcessStat
	deinitIdx int

	runningKind stepKind
	runningStat *ProcessStat

	mainNoRun, initNoRun, deinitNoRun bool
	NoClean, Persist                  bool

	socketPath string
	listener   *net.UnixListener
	table      control.Table
	conns      map[int]*connEntry
}

// New builds a Reactor from a Blueprint. It arms the kqueue and the kill
// switch but does not spawn anything or open the control socket; call Run
// to drive the container through its lifecycle.
func New(containerID, socketPath string, table control.Table, bp Blueprint) (*Reactor, error) {
	kq, err := freebsd.NewKqueue()
	if err != nil {
		return nil, fmt.Errorf("reactor %s: %w", containerID, err)
	}
	const killIdent = 2 // spec.md §4.4: "EVFILT_USER signal with ident=2 as the external kill trigger"
	if err := kq.ArmUserEvent(killIdent); err != nil {
		return nil, fmt.Errorf("reactor %s: arm kill switch: %w", containerID, err)
	}

	r := &Reactor{
		ContainerID: containerID,
		phase:       Created,
		jid:         bp.Jid,
		kq:          kq,
		kill:        killIdent,
		socketPath:  socketPath,
		table:       table,
		conns:       map[int]*connEntry{},
		mainNoRun:   bp.MainNoRun,
		initNoRun:   bp.InitNoRun,
		deinitNoRun: bp.DeinitNoRun,
		NoClean:     bp.NoClean,
		Persist:     bp.Persist,
	}

	r.Init = make([]ProcessStat, len(bp.Init))
	for i, step := range bp.Init {
		r.Init[i] = ProcessStat{Exec: step.Exec, Description: step.Description, Required: step.Required}
	}
	if bp.Main != nil {
		r.Main = &ProcessStat{Exec: bp.Main.Exec, Description: bp.Main.Description, Required: bp.Main.Required}
	}
	r.Deinit = make([]ProcessStat, len(bp.Deinit))
	for i, step := range bp.Deinit {
		r.Deinit[i] = ProcessStat{Exec: step.Exec, Description: step.Description, Required: step.Required}
	}

	return r, nil
}

func (r *Reactor) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Reactor) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
}

// Kill triggers the reactor's kill switch: the running loop observes it on
// its next kevent wait, signals whichever process is currently running,
// and proceeds straight to DeinitRunning once that process exits (spec.md
// §4.4 "Any state + USER_SIGNAL → Killing → DeinitRunning(0) → Finished").
func (r *Reactor) Kill() error {
	r.setPhase(Killing)
	return r.kq.TriggerUserEvent(r.kill)
}

// Run opens the container's control socket and drives it through
// Created → (Init) → (Main) → (Deinit) → Finished, multiplexing process
// exits, control-socket accept/read readiness, and the kill switch on the
// single kqueue this Reactor owns. It returns once Finished.
func (r *Reactor) Run(ctx context.Context, launcher Launcher) error {
	addr, err := net.ResolveUnixAddr("unix", r.socketPath)
	if err != nil {
		return fmt.Errorf("reactor %s: resolve socket path: %w", r.ContainerID, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("reactor %s: listen: %w", r.ContainerID, err)
	}
	r.listener = ln
	defer ln.Close()

	lnFd, err := rawFd(ln)
	if err != nil {
		return fmt.Errorf("reactor %s: listener fd: %w", r.ContainerID, err)
	}
	if err := r.kq.WatchRead(lnFd, 0); err != nil {
		return fmt.Errorf("reactor %s: watch listener: %w", r.ContainerID, err)
	}

	if err := r.startInit(ctx, launcher); err != nil {
		return err
	}

	buf := make([]unix.Kevent_t, 16)
	for r.Phase() != Finished {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		events, err := r.kq.Wait(0, buf)
		if err != nil {
			return fmt.Errorf("reactor %s: kevent wait: %w", r.ContainerID, err)
		}
		for _, ev := range events {
			switch {
			case ev.Filter == unix.EVFILT_USER:
				if err := r.handleKill(); err != nil {
					slog.ErrorContext(ctx, "reactor: kill signal delivery failed", "container", r.ContainerID, "err", err)
				}
			case ev.Filter == unix.EVFILT_PROCDESC:
				if err := r.onProcExit(ctx, launcher, int(ev.Ident), ev.Data); err != nil {
					return err
				}
			case ev.Filter == unix.EVFILT_READ && int(ev.Ident) == lnFd:
				if err := r.acceptConn(); err != nil {
					slog.DebugContext(ctx, "reactor: accept failed", "container", r.ContainerID, "err", err)
				}
			case ev.Filter == unix.EVFILT_READ:
				r.handleConnReadable(ctx, int(ev.Ident))
			}
		}
	}
	return nil
}

// rawFd extracts the underlying file descriptor of a net.UnixListener or
// net.UnixConn without duplicating it, so it can be registered on this
// Reactor's own kqueue alongside the fds freebsd.Kqueue already watches.
func rawFd(c syscall.Conn) (int, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	if cerr := raw.Control(func(f uintptr) { fd = int(f) }); cerr != nil {
		return 0, cerr
	}
	return fd, nil
}

func (r *Reactor) acceptConn() error {
	conn, err := r.listener.AcceptUnix()
	if err != nil {
		return err
	}
	cred, err := control.PeerCredential(conn)
	if err != nil {
		conn.Close()
		return nil
	}
	fd, err := rawFd(conn)
	if err != nil {
		conn.Close()
		return nil
	}
	r.conns[fd] = &connEntry{conn: conn, fd: fd, cc: &control.ConnectionContext{Credential: cred}}
	return r.kq.WatchRead(fd, 0)
}

// handleConnReadable answers exactly one request on the connection that
// became readable, then leaves it armed for the next kevent: a slow or
// idle client never ties up this loop, matching the single control-socket
// request-at-a-time contract every other connection type in this engine
// follows.
func (r *Reactor) handleConnReadable(ctx context.Context, fd int) {
	entry, ok := r.conns[fd]
	if !ok {
		return
	}
	if err := control.HandleOne(ctx, entry.conn, entry.cc, r.table); err != nil {
		entry.cc.NotifyClose()
		entry.conn.Close()
		_ = r.kq.Unwatch(fd, unix.EVFILT_READ)
		delete(r.conns, fd)
	}
}

func (r *Reactor) handleKill() error {
	r.mu.Lock()
	stat := r.runningStat
	r.mu.Unlock()
	if stat == nil || stat.Exited() {
		return nil
	}
	return freebsd.Pdkill(stat.ProcFd, unix.SIGKILL)
}

func (r *Reactor) startInit(ctx context.Context, launcher Launcher) error {
	if r.initNoRun || len(r.Init) == 0 {
		return r.startMain(ctx, launcher)
	}
	r.setPhase(InitRunning)
	r.initIdx = 0
	return r.spawnInit(ctx, launcher, 0)
}

func (r *Reactor) spawnInit(ctx context.Context, launcher Launcher, idx int) error {
	stat := &r.Init[idx]
	pid, procFd, err := launcher.Launch(ctx, r.jid, stat.Exec)
	if err != nil {
		slog.ErrorContext(ctx, "reactor: init step failed to spawn", "container", r.ContainerID, "step", idx, "err", err)
		return r.fault(ctx, launcher)
	}
	stat.Pid = pid
	stat.ProcFd = procFd
	stat.StartedAt = time.Now()
	r.mu.Lock()
	r.runningKind = stepInit
	r.runningStat = stat
	r.mu.Unlock()
	return r.kq.WatchProcDesc(procFd, 0)
}

func (r *Reactor) startMain(ctx context.Context, launcher Launcher) error {
	if r.mainNoRun || r.Main == nil {
		return r.startDeinit(ctx, launcher)
	}
	pid, procFd, err := launcher.Launch(ctx, r.jid, r.Main.Exec)
	if err != nil {
		slog.ErrorContext(ctx, "reactor: main failed to spawn", "container", r.ContainerID, "err", err)
		return r.fault(ctx, launcher)
	}
	r.Main.Pid = pid
	r.Main.ProcFd = procFd
	r.Main.StartedAt = time.Now()
	r.mu.Lock()
	r.phase = MainRunning
	r.runningKind = stepMain
	r.runningStat = r.Main
	r.mu.Unlock()
	return r.kq.WatchProcDesc(procFd, 0)
}

func (r *Reactor) startDeinit(ctx context.Context, launcher Launcher) error {
	if r.deinitNoRun || len(r.Deinit) == 0 {
		r.setPhase(Finished)
		return nil
	}
	r.setPhase(DeinitRunning)
	r.deinitIdx = 0
	return r.spawnDeinit(ctx, launcher, 0)
}

func (r *Reactor) spawnDeinit(ctx context.Context, launcher Launcher, idx int) error {
	stat := &r.Deinit[idx]
	pid, procFd, err := launcher.Launch(ctx, r.jid, stat.Exec)
	if err != nil {
		// deinit steps run best-effort, matching the journal's own
		// unwind policy: one failing step must not strand the rest.
		slog.ErrorContext(ctx, "reactor: deinit step failed to spawn", "container", r.ContainerID, "step", idx, "err", err)
		r.deinitIdx++
		if r.deinitIdx >= len(r.Deinit) {
			r.setPhase(Finished)
			return nil
		}
		return r.spawnDeinit(ctx, launcher, r.deinitIdx)
	}
	stat.Pid = pid
	stat.ProcFd = procFd
	stat.StartedAt = time.Now()
	r.mu.Lock()
	r.runningKind = stepDeinit
	r.runningStat = stat
	r.mu.Unlock()
	return r.kq.WatchProcDesc(procFd, 0)
}

// fault transitions to Fault and, unless NoClean is set, still runs deinit
// (spec.md §4.4 "Any process spawn error → Fault → DeinitRunning(0) unless
// no_clean"). NoClean short-circuits straight to Finished, leaving
// resources unreleased for post-mortem inspection.
func (r *Reactor) fault(ctx context.Context, launcher Launcher) error {
	r.setPhase(Fault)
	if r.NoClean {
		r.setPhase(Finished)
		return nil
	}
	return r.startDeinit(ctx, launcher)
}

func (r *Reactor) onProcExit(ctx context.Context, launcher Launcher, procFd int, rawStatus int64) error {
	r.mu.Lock()
	stat := r.runningStat
	kind := r.runningKind
	phase := r.phase
	r.mu.Unlock()
	if stat == nil || stat.ProcFd != procFd {
		return nil // stale or unrelated event
	}

	ws := unix.WaitStatus(rawStatus)
	stat.SetExited(ws.ExitStatus())
	_ = r.kq.Unwatch(procFd, unix.EVFILT_PROCDESC)

	if phase == Killing {
		return r.startDeinit(ctx, launcher)
	}

	switch kind {
	case stepInit:
		if stat.ExitCode != 0 && stat.Required {
			return r.fault(ctx, launcher)
		}
		r.initIdx++
		if r.initIdx >= len(r.Init) {
			return r.startMain(ctx, launcher)
		}
		return r.spawnInit(ctx, launcher, r.initIdx)
	case stepMain:
		return r.startDeinit(ctx, launcher)
	case stepDeinit:
		r.deinitIdx++
		if r.deinitIdx >= len(r.Deinit) {
			r.setPhase(Finished)
			return nil
		}
		return r.spawnDeinit(ctx, launcher, r.deinitIdx)
	}
	return nil
}

func (r *Reactor) Close() error {
	for fd, entry := range r.conns {
		entry.conn.Close()
		delete(r.conns, fd)
	}
	if r.listener != nil {
		r.listener.Close()
	}
	return r.kq.Close()
}
