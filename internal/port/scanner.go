package port

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/shinji-kodama/portfind/internal/logger"
)

const (
	// DefaultStartPort, DefaultEndPort, DefaultRetries and DefaultDelay are
	// the request values used when the caller supplies none.
	DefaultStartPort = 4000
	DefaultEndPort   = 4500
	DefaultRetries   = 5
	DefaultDelay     = time.Second

	// DefaultConcurrency caps the number of probes in flight during one
	// attempt.
	DefaultConcurrency = 256
)

// errNoPortInAttempt marks an attempt that finished without an available
// port. It never leaves this package.
var errNoPortInAttempt = errors.New("no available port in attempt")

// Request describes one search for a free port in [StartPort, EndPort].
type Request struct {
	StartPort int
	EndPort   int

	// Retries is the total number of attempts, including the first one.
	Retries int

	// Delay is the pause between two consecutive attempts.
	Delay time.Duration
}

// DefaultRequest returns a Request scanning 4000-4500 up to five times, one
// second apart.
func DefaultRequest() Request {
	return Request{
		StartPort: DefaultStartPort,
		EndPort:   DefaultEndPort,
		Retries:   DefaultRetries,
		Delay:     DefaultDelay,
	}
}

// Validate checks the request invariants and returns a *ValidationError
// naming the first offending field.
func (r Request) Validate() error {
	switch {
	case r.StartPort < MinPort || r.StartPort > MaxPort:
		return &ValidationError{Field: "startPort", Reason: fmt.Sprintf("%d is outside %d-%d", r.StartPort, MinPort, MaxPort)}
	case r.EndPort < MinPort || r.EndPort > MaxPort:
		return &ValidationError{Field: "endPort", Reason: fmt.Sprintf("%d is outside %d-%d", r.EndPort, MinPort, MaxPort)}
	case r.StartPort > r.EndPort:
		return &ValidationError{Field: "startPort", Reason: fmt.Sprintf("%d is greater than endPort %d", r.StartPort, r.EndPort)}
	case r.Retries < 1:
		return &ValidationError{Field: "retries", Reason: fmt.Sprintf("%d allows no attempt (must be at least 1)", r.Retries)}
	case r.Delay < 0:
		return &ValidationError{Field: "delay", Reason: fmt.Sprintf("%s is negative", r.Delay)}
	}
	return nil
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithProber replaces the default TCP NetProber.
func WithProber(p Prober) Option {
	return func(s *Scanner) {
		s.prober = p
	}
}

// WithLogger sets the sink for retry warnings and probe failure details.
func WithLogger(l logger.Logger) Option {
	return func(s *Scanner) {
		s.log = l
	}
}

// WithTimer replaces the timer used to wait between attempts.
func WithTimer(t backoff.Timer) Option {
	return func(s *Scanner) {
		s.timer = t
	}
}

// WithConcurrency caps the probes in flight per attempt. Values below one
// select DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n < 1 {
			n = DefaultConcurrency
		}
		s.concurrency = n
	}
}

// WithStrictProbes makes a failed probe below the lowest available port
// abort the search with a *ProbeFailure instead of being skipped.
func WithStrictProbes() Option {
	return func(s *Scanner) {
		s.strict = true
	}
}

// Scanner searches a port range for the lowest port that can be bound,
// retrying whole attempts when none is free.
//
// A Scanner holds no per-search state and may be shared between goroutines
// as long as its Prober and Timer may be too.
type Scanner struct {
	prober      Prober
	log         logger.Logger
	timer       backoff.Timer
	concurrency int
	strict      bool
}

// NewScanner creates a Scanner. Without options it probes TCP on the
// wildcard address and logs through the process-wide logger.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		prober:      NewNetProber("tcp"),
		log:         logger.New(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindAvailablePort is shorthand for NewScanner(opts...).FindAvailablePort.
func FindAvailablePort(ctx context.Context, req Request, opts ...Option) (int, error) {
	return NewScanner(opts...).FindAvailablePort(ctx, req)
}

// FindAvailablePort returns the lowest port in [req.StartPort, req.EndPort]
// that could be bound during an attempt.
//
// Every attempt probes the whole range concurrently and only decides once
// all probes have finished, so the result does not depend on completion
// order. When an attempt finds nothing, a warning is logged and the scanner
// waits req.Delay before the next one. After req.Retries empty attempts it
// returns a *PortRangeExhausted. Invalid requests fail with a
// *ValidationError before anything is probed.
//
// The port is not reserved: another process may bind it before the caller
// does.
func (s *Scanner) FindAvailablePort(ctx context.Context, req Request) (int, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	var (
		found    int
		attempt  int
		failures int
	)

	operation := func() error {
		attempt++

		outcomes, err := s.scanAttempt(ctx, req)
		if err != nil {
			return backoff.Permanent(err)
		}

		port, failed, err := s.choose(req, outcomes)
		if err != nil {
			return backoff.Permanent(err)
		}
		if port < 0 {
			failures = failed
			return errNoPortInAttempt
		}

		found = port
		return nil
	}

	notify := func(_ error, wait time.Duration) {
		s.log.Warn().
			Int("start", req.StartPort).
			Int("end", req.EndPort).
			Int("attempt", attempt).
			Int("retries", req.Retries).
			Dur("delay", wait).
			Msgf("no available port in range %d-%d, retrying in %s (%d/%d)",
				req.StartPort, req.EndPort, wait, attempt, req.Retries)
	}

	err := backoff.RetryNotifyWithTimer(operation, backoff.WithContext(s.backOff(req), ctx), notify, s.timer)
	switch {
	case err == nil:
		return found, nil
	case errors.Is(err, errNoPortInAttempt):
		return 0, &PortRangeExhausted{
			StartPort:     req.StartPort,
			EndPort:       req.EndPort,
			Retries:       req.Retries,
			ProbeFailures: failures,
		}
	default:
		return 0, err
	}
}

// ProbeAll probes every port concurrently and returns the outcomes in the
// order of ports, regardless of which probe finished first. It returns
// ctx.Err() if ctx is cancelled before all probes complete.
//
// Each goroutine writes only to its own slot of the result slice, so no
// lock is needed and the caller can read the outcome for ports[i] at index
// i. The Port of every outcome is overwritten with the port that was asked
// for, so a Prober that reports another port cannot move the result out of
// the requested set.
//
// At most s.concurrency probes run at once. A full 65536-port range would
// otherwise open that many sockets together and hit the file descriptor
// limit, which shows up as spurious StatusFailed outcomes.
func (s *Scanner) ProbeAll(ctx context.Context, ports []int) ([]Outcome, error) {
	outcomes := make([]Outcome, len(ports))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, port := range ports {
		// g.Go blocks while the limit is reached; stop queueing once the
		// search is cancelled.
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o := s.prober.Probe(gctx, port)
			o.Port = port
			outcomes[i] = o
			return nil
		})
	}

	// Wait is the barrier that makes the choice independent of completion
	// order: nothing is decided until every probe has answered.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// backOff spaces attempts req.Delay apart and stops after req.Retries
// attempts in total.
func (s *Scanner) backOff(req Request) backoff.BackOff {
	if req.Retries <= 1 {
		// A single attempt never waits.
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(req.Delay), uint64(req.Retries-1))
}

// scanAttempt runs one full pass over the request range.
func (s *Scanner) scanAttempt(ctx context.Context, req Request) ([]Outcome, error) {
	ports := make([]int, 0, req.EndPort-req.StartPort+1)
	for p := req.StartPort; p <= req.EndPort; p++ {
		ports = append(ports, p)
	}
	return s.ProbeAll(ctx, ports)
}

// choose walks the outcomes of one attempt in ascending port order and
// returns the first available port, or -1 and the number of failed probes
// when there is none. The port is derived from the outcome's position in
// the range, never from what the Prober reported.
func (s *Scanner) choose(req Request, outcomes []Outcome) (int, int, error) {
	failed := 0
	for i, o := range outcomes {
		port := req.StartPort + i
		switch o.Status {
		case StatusAvailable:
			return port, failed, nil
		case StatusFailed:
			failed++
			s.log.Debug().Err(o.Err).Int("port", port).Msg("port probe failed")
			if s.strict {
				return -1, failed, &ProbeFailure{Port: port, Cause: o.Err}
			}
		case StatusOccupied:
		default:
			s.log.Debug().Int("port", port).Stringer("status", o.Status).Msg("port probe returned no status")
		}
	}
	return -1, failed, nil
}
