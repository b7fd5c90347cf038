//go:build !linux

package internal

import (
	"fmt"
	"net"
)

// listen falls back to the runtime's listener; the backlog is left to the OS.
func listen(address string, _ int) (net.Listener, error) {
	hostAddr, err := net.ResolveTCPAddr("tcp4", address)
	if err != nil {
		return nil, fmt.Errorf("error resolving address %s", err.Error())
	}

	socket, err := net.ListenTCP("tcp4", hostAddr)
	if err != nil {
		return nil, fmt.Errorf("error listening on socket: %s", err.Error())
	}
	return socket, nil
}
