package port

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

const (
	// MinPort and MaxPort bound the valid TCP/UDP port number domain.
	MinPort = 0
	MaxPort = 65535
)

var (
	// ErrInvalidPort is wrapped by a failed Outcome when the probed port
	// lies outside [MinPort, MaxPort].
	ErrInvalidPort = errors.New("invalid port")

	// ErrUnsupportedNetwork is wrapped by a failed Outcome when the prober
	// is configured with a network it cannot listen on.
	ErrUnsupportedNetwork = errors.New("unsupported network")
)

// Status classifies the result of a single port probe.
type Status int

const (
	// StatusUnknown is the zero value. An Outcome that was never filled in
	// carries it, and the scanner treats it like an occupied port.
	StatusUnknown Status = iota

	// StatusAvailable means the bind succeeded and was released.
	StatusAvailable

	// StatusOccupied means the bind failed with "address already in use".
	StatusOccupied

	// StatusFailed means the bind failed for any other reason.
	StatusFailed
)

// String returns the lowercase name used in CLI output and logs.
func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusOccupied:
		return "occupied"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of probing one port. Err is only set when Status
// is StatusFailed.
type Outcome struct {
	Port   int
	Status Status
	Err    error
}

// Available reports an available port.
func Available(port int) Outcome {
	return Outcome{Port: port, Status: StatusAvailable}
}

// Occupied reports a port that is already bound by someone else.
func Occupied(port int) Outcome {
	return Outcome{Port: port, Status: StatusOccupied}
}

// Failed reports a probe that could not decide, carrying the cause.
func Failed(port int, cause error) Outcome {
	return Outcome{Port: port, Status: StatusFailed, Err: cause}
}

// Prober tests whether a single port can be bound right now.
//
// Implementations must never panic or return an error past their boundary:
// every failure is expressed as an Outcome.
type Prober interface {
	Probe(ctx context.Context, port int) Outcome
}

// ProberFunc adapts an ordinary function to the Prober interface.
type ProberFunc func(ctx context.Context, port int) Outcome

// Probe calls f(ctx, port).
func (f ProberFunc) Probe(ctx context.Context, port int) Outcome {
	return f(ctx, port)
}

// NetProber probes ports by binding a transient listener on the local host
// and releasing it immediately.
//
// Network selects the socket type ("tcp", "tcp4", "tcp6", "udp", "udp4",
// "udp6") and defaults to "tcp". Host is the interface address to bind; an
// empty Host binds the wildcard address, which is where most servers and
// Docker publish their ports.
type NetProber struct {
	Network string
	Host    string
}

// NewNetProber returns a NetProber for the given network on the wildcard
// address.
func NewNetProber(network string) *NetProber {
	return &NetProber{Network: network}
}

// Probe binds host:port, closes the socket and classifies the result.
//
// Asking the OS for the socket is the only reliable check: parsing
// /proc/net/* or shelling out to `ss` or `lsof` misses ports held in other
// network namespaces and may need elevated permissions. The bind happens on
// the wildcard address unless Host is set, because Docker and most servers
// publish on 0.0.0.0 and a loopback-only bind would report those ports as
// free.
//
// Only "address already in use" counts as StatusOccupied. Anything else
// (EACCES on privileged ports, an address that is not local, a cancelled
// ctx) is StatusFailed with the bind error attached, so the caller can
// tell a busy port from one it was never allowed to test.
func (p *NetProber) Probe(ctx context.Context, port int) Outcome {
	// The OS would reject these too, but with a platform-specific error.
	if port < MinPort || port > MaxPort {
		return Failed(port, fmt.Errorf("%w: %d (must be between %d and %d)", ErrInvalidPort, port, MinPort, MaxPort))
	}

	network := p.Network
	if network == "" {
		network = "tcp"
	}
	addr := net.JoinHostPort(p.Host, strconv.Itoa(port))

	// ListenConfig rather than net.Listen so that ctx reaches the resolver
	// when Host is a name instead of a literal address.
	var lc net.ListenConfig
	var err error
	switch network {
	case "tcp", "tcp4", "tcp6":
		// The listener is closed on return: the probe only has to know the
		// bind worked, and holding it would make the port look busy to the
		// caller who is about to use it.
		var ln net.Listener
		ln, err = lc.Listen(ctx, network, addr)
		if err == nil {
			defer func() { _ = ln.Close() }()
		}
	case "udp", "udp4", "udp6":
		// UDP is connectionless, so the bind goes through ListenPacket.
		var conn net.PacketConn
		conn, err = lc.ListenPacket(ctx, network, addr)
		if err == nil {
			defer func() { _ = conn.Close() }()
		}
	default:
		return Failed(port, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network))
	}

	switch {
	case err == nil:
		return Available(port)
	case isAddrInUse(err):
		return Occupied(port)
	default:
		return Failed(port, err)
	}
}
