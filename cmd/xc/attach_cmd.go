package main

import (
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/term"
)

// AttachCmd connects directly to a running container's pty-forwarder
// socket (one per container, reported by "xc ps" as its attach path) and
// streams the local terminal's stdin/stdout through it, putting the local
// terminal into raw mode for the duration the way an interactive ssh or
// docker attach session does.
type AttachCmd struct {
	SocketPath string `arg:"" help:"path to the container's pty-forwarder socket"`
}

func (c *AttachCmd) Run(cctx *Context) error {
	addr, err := net.ResolveUnixAddr("unix", c.SocketPath)
	if err != nil {
		return fmt.Errorf("xc attach: %w", err)
	}
	conn, err := net.DialUnix("unix", nil, addr)
	if err != nil {
		return fmt.Errorf("xc attach: %w", err)
	}
	defer conn.Close()

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("xc attach: enter raw mode: %w", err)
		}
		defer term.Restore(fd, oldState)
	}

	errCh := make(chan error, 2)
	go func() {
		_, err := io.Copy(os.Stdout, conn)
		errCh <- err
	}()
	go func() {
		_, err := io.Copy(conn, os.Stdin)
		errCh <- err
	}()
	return <-errCh
}
