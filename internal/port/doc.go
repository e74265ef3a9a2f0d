// Package port finds a free listening port in a numeric range.
//
// A Prober decides whether one port can be bound right now; NetProber does
// it by binding a transient socket and closing it at once. A Scanner fans a
// probe out to every port of the range, waits for all of them and picks the
// lowest available port. When none is free it retries the whole range after
// a fixed delay, up to a retry budget:
//
//	port, err := port.FindAvailablePort(ctx, port.Request{
//		StartPort: 4000,
//		EndPort:   4500,
//		Retries:   5,
//		Delay:     time.Second,
//	})
//
// Nothing is reserved. The returned port was free when probed and may be
// taken by another process before the caller binds it.
package port
