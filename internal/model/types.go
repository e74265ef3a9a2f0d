// Package model defines the value types shared between the portfind CLI,
// its configuration layer and the port scanner.
package model

import (
	"fmt"
	"strings"
)

// Network is the socket type a port is probed for.
type Network string

const (
	// NetworkTCP probes stream sockets on both address families.
	NetworkTCP Network = "tcp"
	// NetworkTCP4 probes IPv4 stream sockets only.
	NetworkTCP4 Network = "tcp4"
	// NetworkTCP6 probes IPv6 stream sockets only.
	NetworkTCP6 Network = "tcp6"
	// NetworkUDP probes datagram sockets on both address families.
	NetworkUDP Network = "udp"
	// NetworkUDP4 probes IPv4 datagram sockets only.
	NetworkUDP4 Network = "udp4"
	// NetworkUDP6 probes IPv6 datagram sockets only.
	NetworkUDP6 Network = "udp6"
)

// String returns the string representation of Network.
func (n Network) String() string {
	return string(n)
}

// IsValid checks whether the Network value is one of the supported networks.
func (n Network) IsValid() bool {
	switch n {
	case NetworkTCP, NetworkTCP4, NetworkTCP6, NetworkUDP, NetworkUDP4, NetworkUDP6:
		return true
	default:
		return false
	}
}

// Protocol returns "tcp" or "udp" without the address family suffix.
// Docker reports published ports with this bare protocol name.
func (n Network) Protocol() string {
	return strings.TrimRight(string(n), "46")
}

// ParseNetwork converts a string to a Network.
// Returns an error if the string does not match any supported network.
func ParseNetwork(s string) (Network, error) {
	network := Network(strings.ToLower(strings.TrimSpace(s)))
	if !network.IsValid() {
		return "", fmt.Errorf("invalid network: %q (valid: tcp, tcp4, tcp6, udp, udp4, udp6)", s)
	}
	return network, nil
}

// PortResult is the machine-readable output of a successful search.
type PortResult struct {
	Port    int     `json:"port"`
	Network Network `json:"network"`
	Host    string  `json:"host,omitempty"`
}

// ProbeReport is the machine-readable result of probing a single port.
type ProbeReport struct {
	Port   int    `json:"port"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ExitCode defines the process exit codes of the portfind CLI.
// Scripts can rely on them to tell bad input from a busy range.
type ExitCode int

const (
	// ExitSuccess indicates a port was found.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidInput indicates malformed flags, configuration or
	// request values. Nothing was probed.
	ExitInvalidInput ExitCode = 2

	// ExitDockerNotRunning indicates --exclude-docker was requested but
	// the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitPortRangeExhausted indicates every attempt of the retry budget
	// found no available port.
	ExitPortRangeExhausted ExitCode = 4

	// ExitProbeFailed indicates a strict search stopped on a probe error.
	ExitProbeFailed ExitCode = 5
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
