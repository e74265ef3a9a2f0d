//go:build !unix && !windows

package port

// isAddrInUse always reports false on platforms without a socket errno
// table; every bind failure there surfaces as StatusFailed.
func isAddrInUse(err error) bool {
	return false
}
