package freebsd

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Kqueue wraps a kqueue(2) descriptor with the small set of registration
// helpers the reactor package uses: watching a process
// descriptor for exit, a socket for read-readiness, and a user event used
// as an externally-triggerable wakeup (the jail engine uses this as the
// "kill" signal into an otherwise blocking reactor loop).
type Kqueue struct {
	fd int
}

func NewKqueue() (*Kqueue, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	return &Kqueue{fd: fd}, nil
}

func (k *Kqueue) Close() error { return unix.Close(k.fd) }

func (k *Kqueue) register(kev unix.Kevent_t) error {
	_, err := unix.Kevent(k.fd, []unix.Kevent_t{kev}, nil, nil)
	return err
}

// WatchProcDesc arms EVFILT_PROCDESC on procFd so Wait reports an event
// (with NOTE_EXIT set in Fflags) when the underlying process exits.
func (k *Kqueue) WatchProcDesc(procFd int, udata int) error {
	return k.register(unix.Kevent_t{
		Ident:  uint64(procFd),
		Filter: unix.EVFILT_PROCDESC,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
		Fflags: unix.NOTE_EXIT,
		Udata:  nil,
		Data:   int64(udata),
	})
}

// WatchRead arms EVFILT_READ on fd (a control-socket or pty master fd).
func (k *Kqueue) WatchRead(fd int, udata int) error {
	return k.register(unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
		Data:   int64(udata),
	})
}

func (k *Kqueue) Unwatch(fd int, filter int16) error {
	return k.register(unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  unix.EV_DELETE,
	})
}

// ArmUserEvent registers a software-triggered EVFILT_USER identified by
// ident, used as the reactor's kill switch: Trigger can be called from any
// goroutine to wake a blocked Wait without involving a real fd.
func (k *Kqueue) ArmUserEvent(ident uint64) error {
	return k.register(unix.Kevent_t{
		Ident:  ident,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	})
}

func (k *Kqueue) TriggerUserEvent(ident uint64) error {
	return k.register(unix.Kevent_t{
		Ident:  ident,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	})
}

// Wait blocks until at least one event is ready or timeout elapses (zero
// means block forever), returning the ready events.
func (k *Kqueue) Wait(timeout time.Duration, buf []unix.Kevent_t) ([]unix.Kevent_t, error) {
	var ts *unix.Timespec
	if timeout > 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	n, err := unix.Kevent(k.fd, nil, buf, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("kevent wait: %w", err)
	}
	return buf[:n], nil
}
