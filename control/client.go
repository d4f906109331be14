package control

import (
	"encoding/json"
	"fmt"
	"net"
)

func decodeString(raw []byte, out *string) error  { return json.Unmarshal(raw, out) }
func decodeValue(raw []byte, out interface{}) error { return json.Unmarshal(raw, out) }

// Client is a thin synchronous wrapper over one control-socket connection,
// the xc CLI's counterpart to Serve: one request out, one response in, no
// pipelining, matching the server's own one-at-a-time dispatch loop.
type Client struct {
	conn *net.UnixConn
}

// Dial connects to xcd's control socket at path.
func Dial(path string) (*Client, error) {
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("control: resolve %s: %w", path, err)
	}
	conn, err := net.DialUnix("unix", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("control: dial %s: %w", path, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Conn exposes the underlying connection for callers that need to attach a
// ptyfwd forwarder client alongside request/response traffic. ("xc attach"
// does not use it; it dials the container's pty socket directly.)
func (c *Client) Conn() *net.UnixConn { return c.conn }

// Call sends method(value) and decodes the reply into out. A non-zero
// server errno is returned as an error whose message is "control: "
// followed by the server's Response.Value string.
func (c *Client) Call(method string, value, out interface{}) error {
	payload, err := EncodeRequest(method, value)
	if err != nil {
		return err
	}
	if err := WritePacket(c.conn, payload, nil); err != nil {
		return err
	}
	pkt, err := ReadPacket(c.conn)
	if err != nil {
		return err
	}
	resp, err := DecodeResponse(pkt.Data)
	if err != nil {
		return err
	}
	if resp.Errno != 0 {
		var msg string
		if uerr := decodeString(resp.Value, &msg); uerr != nil {
			msg = string(resp.Value)
		}
		return fmt.Errorf("control: %s", msg)
	}
	if out == nil {
		return nil
	}
	return decodeValue(resp.Value, out)
}
