// Package control implements the wire protocol spoken over xcd's Unix
// domain control socket, grounded on ipc::packet::codec and
// xc::container::runner::control_stream::ControlStream: a 16-byte header
// (payload length, fd count, both big-endian u64), a JSON payload, and up
// to 64 file descriptors passed alongside it via SCM_RIGHTS.
package control

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
)

const maxFds = 64
const headerLen = 16

// Packet is a framed unit on the wire: a JSON payload plus any file
// descriptors travelling alongside it (referenced from the JSON body via
// the __fd_ref placeholder convention, see FdRef).
type Packet struct {
	Data []byte
	Fds  []int
}

// Request is the envelope a client sends: a method name plus an arbitrary
// JSON value, dispatched by the method table in xcdserver.
type Request struct {
	Method string          `json:"method"`
	Value  json.RawMessage `json:"value"`
}

// Response is the envelope a server replies with: errno 0 on success, with
// Value carrying the result, or non-zero with Value carrying an error
// description.
type Response struct {
	Errno int             `json:"errno"`
	Value json.RawMessage `json:"value"`
}

// FdRef is the placeholder object a request embeds in place of
// a raw fd number; the real descriptor travels out-of-band via SCM_RIGHTS
// and position in Packet.Fds.
type FdRef struct {
	Ref int `json:"__fd_ref"`
}

// WritePacket frames data and fds onto conn: a plain net.Conn cannot carry
// ancillary data, so conn is a *net.UnixConn. With no fds the payload is a
// plain Write; otherwise it goes out via WriteMsgUnix with SCM_RIGHTS.
func WritePacket(conn *net.UnixConn, data []byte, fds []int) error {
	if len(fds) > maxFds {
		return fmt.Errorf("control: cannot send %d fds, max is %d", len(fds), maxFds)
	}
	if len(data) == 0 {
		return fmt.Errorf("control: refusing to send an empty payload")
	}

	header := make([]byte, headerLen)
	binary.BigEndian.PutUint64(header[0:8], uint64(len(data)))
	binary.BigEndian.PutUint64(header[8:16], uint64(len(fds)))

	if _, err := conn.Write(header); err != nil {
		return fmt.Errorf("control: write header: %w", err)
	}

	if len(fds) == 0 {
		_, err := conn.Write(data)
		if err != nil {
			return fmt.Errorf("control: write payload: %w", err)
		}
		return nil
	}

	oob := unixRights(fds)
	if _, _, err := conn.WriteMsgUnix(data, oob, nil); err != nil {
		return fmt.Errorf("control: write payload with rights: %w", err)
	}
	return nil
}

// ReadPacket blocks until a complete frame has arrived on conn.
func ReadPacket(conn *net.UnixConn) (Packet, error) {
	header := make([]byte, headerLen)
	if _, err := readFull(conn, header); err != nil {
		return Packet{}, fmt.Errorf("control: read header: %w", err)
	}
	expectedLen := binary.BigEndian.Uint64(header[0:8])
	fdCount := binary.BigEndian.Uint64(header[8:16])
	if fdCount > maxFds {
		return Packet{}, fmt.Errorf("control: peer claims %d fds, max is %d", fdCount, maxFds)
	}

	buf := make([]byte, expectedLen)
	oob := make([]byte, unixRightsSize(int(fdCount)))

	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return Packet{}, fmt.Errorf("control: read payload: %w", err)
	}
	for uint64(n) < expectedLen {
		more := make([]byte, expectedLen-uint64(n))
		m, err := conn.Read(more)
		if err != nil {
			return Packet{}, fmt.Errorf("control: read payload continuation: %w", err)
		}
		copy(buf[n:], more[:m])
		n += m
	}

	fds, err := parseUnixRights(oob[:oobn])
	if err != nil {
		return Packet{}, err
	}
	return Packet{Data: buf[:n], Fds: fds}, nil
}

func readFull(conn *net.UnixConn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// EncodeRequest marshals method and value into a Request payload.
func EncodeRequest(method string, value interface{}) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("control: encode request value: %w", err)
	}
	return json.Marshal(Request{Method: method, Value: raw})
}

func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("control: decode request: %w", err)
	}
	return req, nil
}

func EncodeResponse(errno int, value interface{}) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("control: encode response value: %w", err)
	}
	return json.Marshal(Response{Errno: errno, Value: raw})
}

func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("control: decode response: %w", err)
	}
	return resp, nil
}

// equalBytes compares round-tripped payloads without pulling in
// reflect.DeepEqual semantics for json.RawMessage; nothing calls it.
func equalBytes(a, b []byte) bool { return bytes.Equal(a, b) }
