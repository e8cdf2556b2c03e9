// Package breaker protects calls to downstream dependencies. State is kept in
// process memory per dependency name; a restart closes every circuit again.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
	"github.com/dhandebaz/sangathan-sub001/internal/metrics"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

type Config struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold int
	// ResetTimeout is how long the circuit stays open before a probe.
	ResetTimeout time.Duration
	// CallTimeout bounds every call made through the breaker. Zero disables it.
	CallTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Threshold:    5,
		ResetTimeout: 60 * time.Second,
		CallTimeout:  15 * time.Second,
	}
}

// Breaker is safe for concurrent use.
type Breaker struct {
	name   string
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	// probe identifies the admitted half-open call; probeStarted is when it
	// was let through.
	probe        uint64
	probeStarted time.Time
}

func New(name string, cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	b := &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	metrics.BreakerState.WithLabelValues(name).Set(float64(Closed))
	return b
}

// WithClock replaces the time source. Used by tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

func (b *Breaker) Name() string { return b.name }

// Execute runs fn unless the circuit is open. Any error returned by fn counts
// as a failure. A rejected call returns an apperr.KindUnavailable error and fn
// is not invoked.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, ok := b.allow()
	if !ok {
		metrics.BreakerRejections.WithLabelValues(b.name).Inc()
		return apperr.Newf(apperr.KindUnavailable, "%s is temporarily unavailable", b.name)
	}

	callCtx := ctx
	if b.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
	}

	err := safeCall(callCtx, fn)
	b.record(probe, err)
	return err
}

func safeCall(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in protected call: %v", r)
		}
	}()
	return fn(ctx)
}

// allow returns a non-zero probe id when the call is the half-open probe.
func (b *Breaker) allow() (probe uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return 0, true
	case Open:
		if b.now().Sub(b.lastFailure) > b.cfg.ResetTimeout {
			b.transition(HalfOpen)
			return b.startProbe(), true
		}
		return 0, false
	case HalfOpen:
		// A single probe is in flight; everyone else waits for its verdict.
		// A probe that has not answered within ResetTimeout is abandoned and
		// the next caller probes instead.
		if b.now().Sub(b.probeStarted) > b.cfg.ResetTimeout {
			b.logger.Warn("circuit breaker probe abandoned", "dependency", b.name)
			return b.startProbe(), true
		}
		return 0, false
	}
	return 0, false
}

// startProbe must be called with mu held.
func (b *Breaker) startProbe() uint64 {
	b.probe++
	b.probeStarted = b.now()
	return b.probe
}

func (b *Breaker) record(probe uint64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// An abandoned probe answering late is an ordinary call.
	isProbe := probe != 0 && probe == b.probe && b.state == HalfOpen

	if err == nil {
		switch {
		case isProbe:
			b.failures = 0
			b.transition(Closed)
		case b.state == Closed:
			b.failures = 0
		}
		// A late success from a call admitted before the circuit opened does
		// not close it; only the probe can.
		return
	}

	b.failures++
	b.lastFailure = b.now()
	switch {
	case isProbe:
		b.transition(Open)
	case b.state == Closed && b.failures >= b.cfg.Threshold:
		b.transition(Open)
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(to))
	b.logger.Warn("circuit breaker state change",
		"dependency", b.name,
		"from", from.String(),
		"to", to.String(),
		"failures", b.failures,
	)
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the circuit, e.g. after an operator confirms recovery.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.transition(Closed)
}

// Call is Execute for functions that return a value.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := b.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Registry hands out one breaker per dependency name.
type Registry struct {
	cfg      Config
	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = New(name, r.cfg)
		r.breakers[name] = b
	}
	return b
}

func (r *Registry) Execute(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return r.Get(name).Execute(ctx, fn)
}

// Snapshot reports the state of every known breaker.
func (r *Registry) Snapshot() map[string]State {
	r.mu.Lock()
	names := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		names = append(names, b)
	}
	r.mu.Unlock()

	out := make(map[string]State, len(names))
	for _, b := range names {
		out[b.name] = b.State()
	}
	return out
}
