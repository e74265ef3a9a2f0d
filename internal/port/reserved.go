package port

import "context"

// reservedProber reports a fixed set of ports as occupied and delegates
// everything else.
type reservedProber struct {
	next     Prober
	reserved map[int]struct{}
}

// Reserved wraps p so that the given ports are reported as StatusOccupied
// without being probed. This covers ports that are claimed elsewhere but not
// bound on the host, e.g. Docker ports forwarded without a userland proxy.
func Reserved(p Prober, ports ...int) Prober {
	if len(ports) == 0 {
		return p
	}

	set := make(map[int]struct{}, len(ports))
	for _, port := range ports {
		set[port] = struct{}{}
	}
	return &reservedProber{next: p, reserved: set}
}

func (r *reservedProber) Probe(ctx context.Context, port int) Outcome {
	if _, ok := r.reserved[port]; ok {
		return Occupied(port)
	}
	return r.next.Probe(ctx, port)
}
