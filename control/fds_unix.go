package control

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func unixRights(fds []int) []byte {
	return unix.UnixRights(fds...)
}

func unixRightsSize(n int) int {
	if n == 0 {
		return 0
	}
	return unix.CmsgSpace(n * 4)
}

func parseUnixRights(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("control: parse control message: %w", err)
	}
	var fds []int
	for _, m := range msgs {
		got, err := unix.ParseUnixRights(&m)
		if err != nil {
			return nil, fmt.Errorf("control: parse unix rights: %w", err)
		}
		fds = append(fds, got...)
	}
	return fds, nil
}
