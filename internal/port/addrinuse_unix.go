//go:build unix

package port

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isAddrInUse reports whether err is the kernel's "address already in use"
// bind failure.
func isAddrInUse(err error) bool {
	return errors.Is(err, unix.EADDRINUSE)
}
