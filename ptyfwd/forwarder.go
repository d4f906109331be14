package ptyfwd

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
)

func deadlineNow() time.Time { return time.Now().Add(50 * time.Millisecond) }

const detachEscape = "\x10q" // ^P q

// client is one attached viewer of the pty's output, carrying its own
// read offset into the shared RingBuffer so a slow client and a fast one
// can each catch up independently.
type client struct {
	conn   *net.UnixConn
	offset int
}

// Forwarder multiplexes a single pty master onto any number of attach
// clients connected via a Unix socket, grounded on
// pty_process::kqueue_forwarder::PtyForwarder. Unlike the original's
// direct kqueue-driven read/write loop, this uses the creack/pty wrapper
// already used elsewhere in this codebase for raw pty handling, with a
// goroutine per I/O direction guarded by a mutex over shared client state
// - structurally equivalent, idiomatic for Go rather than a hand-rolled
// single-threaded reactor.
type Forwarder struct {
	mu      sync.Mutex
	master  *os.File
	ring    *RingBuffer
	clients []*client
	log     io.Writer
}

func NewForwarder(master *os.File, log io.Writer) *Forwarder {
	return &Forwarder{master: master, ring: NewRingBuffer(RingCapacity), log: log}
}

// StartCommand allocates a pty and starts cmd attached to its slave,
// returning a Forwarder bound to the master end.
func StartCommand(cmd *exec.Cmd, log io.Writer) (*Forwarder, *os.File, error) {
	master, err := pty.Start(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("ptyfwd: start command under pty: %w", err)
	}
	return NewForwarder(master, log), master, nil
}

// PumpPty copies pty output into the ring buffer and fans it out to every
// attached client, until the pty closes (EOF, i.e. the child exited).
func (f *Forwarder) PumpPty() error {
	buf := make([]byte, 4096)
	for {
		n, err := f.master.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if f.log != nil {
				f.log.Write(chunk)
			}
			f.mu.Lock()
			f.ring.Append(chunk)
			f.broadcastLocked(chunk)
			f.mu.Unlock()
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("ptyfwd: read pty: %w", err)
		}
	}
}

// broadcastLocked writes each client's pending backlog (everything since
// its own offset, not just chunk) nonblockingly. A full send buffer is not
// a client fault: the write times out or accepts a partial write, the
// client's offset advances by whatever was accepted (possibly zero), and
// the rest is retried on the next broadcast (the next chunk of pty output)
// rather than disconnecting it. Only a genuine conn error (peer closed)
// drops a client.
func (f *Forwarder) broadcastLocked(chunk []byte) {
	live := f.clients[:0]
	for _, c := range f.clients {
		pending, err := f.ring.ReadSince(c.offset)
		if err != nil {
			// c.offset is ahead of what the ring has recorded; resync to
			// whatever the ring still holds instead of dropping the client.
			pending, _ = f.ring.ReadSince(0)
			c.offset = f.ring.Len() - len(pending)
		}
		if len(pending) == 0 {
			live = append(live, c)
			continue
		}

		c.conn.SetWriteDeadline(deadlineNow())
		n, werr := c.conn.Write(pending)
		c.offset += n
		if werr != nil && !isTimeout(werr) {
			slog.Debug("ptyfwd: dropping closed client", "err", werr)
			c.conn.Close()
			continue
		}
		live = append(live, c)
	}
	f.clients = live
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// Attach registers conn as a new viewer, replaying scrollback from
// offset zero before joining the live broadcast.
func (f *Forwarder) Attach(conn *net.UnixConn) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	backlog, err := f.ring.ReadSince(0)
	if err != nil {
		return fmt.Errorf("ptyfwd: replay scrollback: %w", err)
	}
	if len(backlog) > 0 {
		if _, err := conn.Write(backlog); err != nil {
			return fmt.Errorf("ptyfwd: write scrollback: %w", err)
		}
	}
	f.clients = append(f.clients, &client{conn: conn, offset: f.ring.Len()})
	return nil
}

// PumpClientInput copies input from conn into the pty master, watching
// for the detach escape sequence (^P q) so an attached terminal can leave
// without killing the underlying process.
func (f *Forwarder) PumpClientInput(conn *net.UnixConn) error {
	buf := make([]byte, 512)
	var pending byte
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := buf[:n]
			for i, b := range data {
				if pending == '\x10' && b == 'q' {
					if _, werr := f.master.Write(data[:i]); werr != nil {
						return fmt.Errorf("ptyfwd: write pty: %w", werr)
					}
					return nil // detach, leave the process running
				}
				pending = b
			}
			if _, werr := f.master.Write(data); werr != nil {
				return fmt.Errorf("ptyfwd: write pty: %w", werr)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("ptyfwd: read client: %w", err)
		}
	}
}
