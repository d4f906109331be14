package ptyfwd

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// dialUnixPair returns both ends of a connected Unix socket: srv is the
// accepted side broadcastLocked writes into, cli is the side a test reads
// from (or deliberately leaves unread, to force a slow-client timeout).
func dialUnixPair(t *testing.T) (srv, cli *net.UnixConn) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fwd.sock")
	addr, err := net.ResolveUnixAddr("unix", path)
	require.NoError(t, err)
	ln, err := net.ListenUnix("unix", addr)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	acceptedCh := make(chan *net.UnixConn, 1)
	go func() {
		c, err := ln.AcceptUnix()
		if err == nil {
			acceptedCh <- c
		}
	}()

	cli, err = net.DialUnix("unix", nil, addr)
	require.NoError(t, err)
	t.Cleanup(func() { cli.Close() })

	srv = <-acceptedCh
	t.Cleanup(func() { srv.Close() })
	return srv, cli
}

func TestBroadcastLockedRetainsSlowClientOnTimeout(t *testing.T) {
	srv, _ := dialUnixPair(t)

	f := NewForwarder(nil, nil)
	f.ring = NewRingBuffer(RingCapacity)
	c := &client{conn: srv, offset: 0}
	f.clients = []*client{c}

	// Larger than any default unix socket send/receive buffer and never
	// read by the peer, so the write cannot fully complete within the
	// broadcast deadline.
	chunk := make([]byte, 16<<20)
	f.ring.Append(chunk)

	f.mu.Lock()
	f.broadcastLocked(chunk)
	f.mu.Unlock()

	require.Len(t, f.clients, 1, "a timed-out write must not drop the client")
	require.Same(t, c, f.clients[0])
	require.Less(t, c.offset, len(chunk), "a partial/zero write must not be counted as fully delivered")
}

func TestBroadcastLockedDropsClientOnRealError(t *testing.T) {
	srv, cli := dialUnixPair(t)
	cli.Close()

	f := NewForwarder(nil, nil)
	f.ring = NewRingBuffer(RingCapacity)
	c := &client{conn: srv, offset: 0}
	f.clients = []*client{c}

	chunk := []byte("hello")
	f.ring.Append(chunk)

	// Give the peer close time to propagate before writing.
	time.Sleep(20 * time.Millisecond)

	f.mu.Lock()
	f.broadcastLocked(chunk)
	f.mu.Unlock()

	require.Empty(t, f.clients, "a genuine connection error must drop the client")
}
