package control

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Credential is the SO_PEERCRED/LOCAL_PEERCRED-derived identity of the
// process on the other end of a control socket, used by xcdserver's auth
// layer to decide whether a request is permitted.
type Credential struct {
	PID int32
	UID uint32
	GID uint32
}

// PeerCredential reads the connecting process's credentials off a Unix
// domain socket via LOCAL_PEERCRED (SO_PEERCRED's FreeBSD name).
func PeerCredential(conn *net.UnixConn) (Credential, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return Credential{}, fmt.Errorf("control: syscall conn: %w", err)
	}
	var cred Credential
	var sysErr error
	err = raw.Control(func(fd uintptr) {
		xucred, err := unix.GetsockoptXucred(int(fd), unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
		if err != nil {
			sysErr = err
			return
		}
		cred.UID = xucred.Uid
		if len(xucred.Groups) > 0 {
			cred.GID = xucred.Groups[0]
		}
		cred.PID = int32(xucred.Pid)
	})
	if err != nil {
		return Credential{}, fmt.Errorf("control: peer credential: %w", err)
	}
	if sysErr != nil {
		return Credential{}, fmt.Errorf("control: peer credential: %w", sysErr)
	}
	return cred, nil
}

// Handler answers one decoded Request, returning the value to encode back
// (errno 0) or an error (encoded as a non-zero errno with the error's
// message as Value).
type Handler func(ctx context.Context, cc *ConnectionContext, value []byte) (interface{}, error)

// ConnectionContext accompanies every request dispatched on a connection,
// mirroring the original ConnectionContext: a running request counter, the
// peer's credentials captured once at accept time, and a slot for
// handler-defined user data (e.g. a jailfile build's JailContext).
type ConnectionContext struct {
	ReqCount   int
	Credential Credential
	UserData   interface{}

	OnClose []func()
}

func (cc *ConnectionContext) NotifyClose() {
	for _, fn := range cc.OnClose {
		fn()
	}
}

// Table dispatches requests by method name to a Handler.
type Table map[string]Handler

// Serve accepts and answers requests on conn until it is closed or the
// context is cancelled, one packet in, one packet out, sequentially -
// matching the original single-threaded-per-connection control stream.
func Serve(ctx context.Context, conn *net.UnixConn, table Table) error {
	cred, err := PeerCredential(conn)
	if err != nil {
		return err
	}
	cc := &ConnectionContext{Credential: cred}
	defer cc.NotifyClose()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := HandleOne(ctx, conn, cc, table); err != nil {
			return err
		}
	}
}

// HandleOne reads, dispatches, and answers exactly one request on conn.
// Serve calls it in a loop for its own connections; a kqueue-driven caller
// (reactor.Reactor.Run) calls it once per EVFILT_READ event instead of
// running its own accept/read loop, so both paths share one codec and
// dispatch implementation.
func HandleOne(ctx context.Context, conn *net.UnixConn, cc *ConnectionContext, table Table) error {
	pkt, err := ReadPacket(conn)
	if err != nil {
		return err
	}
	cc.ReqCount++

	req, err := DecodeRequest(pkt.Data)
	if err != nil {
		return err
	}

	handler, ok := table[req.Method]
	if !ok {
		resp, _ := EncodeResponse(1, fmt.Sprintf("unknown method %q", req.Method))
		return WritePacket(conn, resp, nil)
	}

	result, err := handler(ctx, cc, req.Value)
	if err != nil {
		resp, _ := EncodeResponse(1, err.Error())
		return WritePacket(conn, resp, nil)
	}
	resp, err := EncodeResponse(0, result)
	if err != nil {
		return err
	}
	return WritePacket(conn, resp, nil)
}
