//go:build linux

package internal

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listen opens an IPv4 TCP socket with SO_REUSEADDR and SO_REUSEPORT set and a
// pending connection queue of backlog entries.
func listen(address string, backlog int) (net.Listener, error) {
	addr, err := net.ResolveTCPAddr("tcp4", address)
	if err != nil {
		return nil, fmt.Errorf("error resolving address %s", err.Error())
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("error creating socket: %w", err)
	}

	sockaddr := &unix.SockaddrInet4{Port: addr.Port}
	if ip := addr.IP.To4(); ip != nil {
		copy(sockaddr.Addr[:], ip)
	}

	if err := configureSocket(fd, sockaddr, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	// FileListener dups the descriptor, so the original is closed either way.
	f := os.NewFile(uintptr(fd), "admission-listener")
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("error wrapping socket: %w", err)
	}
	return ln, nil
}

func configureSocket(fd int, sockaddr *unix.SockaddrInet4, backlog int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("error setting SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		return fmt.Errorf("error setting SO_REUSEPORT: %w", err)
	}
	if err := unix.Bind(fd, sockaddr); err != nil {
		return fmt.Errorf("error binding to port %d: %w", sockaddr.Port, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fmt.Errorf("error listening on socket: %w", err)
	}
	return nil
}
