//go:build linux

package core

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func redirectStandardStreams(f *os.File) error {
	defer f.Close()

	for _, fd := range []int{unix.Stdout, unix.Stderr} {
		if err := unix.Dup3(int(f.Fd()), fd, 0); err != nil {
			return fmt.Errorf("redirecting fd %d: %w", fd, err)
		}
	}
	return nil
}
