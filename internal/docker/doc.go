// Package docker discovers host ports claimed by Docker containers.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Listing the host ports published by running and stopped containers,
//     so the port search can skip them
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
