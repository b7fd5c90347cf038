//go:build !linux

package core

import "os"

// Without dup3 only Go-level writers are redirected; the file stays open for the
// life of the process.
func redirectStandardStreams(f *os.File) error {
	os.Stdout = f
	os.Stderr = f
	return nil
}
