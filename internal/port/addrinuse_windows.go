//go:build windows

package port

import (
	"errors"

	"golang.org/x/sys/windows"
)

// isAddrInUse reports whether err is Winsock's "address already in use"
// bind failure.
func isAddrInUse(err error) bool {
	return errors.Is(err, windows.WSAEADDRINUSE)
}
