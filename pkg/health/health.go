// Package health serves liveness and readiness probes.
//
// Each probe runs on its own ticker. A probe turns unhealthy only after
// failAfter consecutive failures and recovers after recoverAfter consecutive
// successes, so one slow ping does not pull the pod out of rotation.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// CheckFunc reports nil when the checked component is usable.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a probe contributes to.
type Kind uint8

const (
	Liveness Kind = iota
	Readiness
)

func (k Kind) String() string {
	if k == Readiness {
		return "readiness"
	}
	return "liveness"
}

// Option tunes a probe.
type Option func(*probe)

// WithTimeout bounds a single check run. Default is one second.
func WithTimeout(d time.Duration) Option {
	return func(p *probe) { p.timeout = d }
}

// WithThresholds sets how many consecutive failures mark the probe
// unhealthy and how many consecutive successes recover it.
func WithThresholds(failAfter, recoverAfter int) Option {
	return func(p *probe) {
		p.failAfter = max(failAfter, 1)
		p.recoverAfter = max(recoverAfter, 1)
	}
}

// probe owns its counters; run is only called from the probe's ticker
// goroutine. healthy and lastErr are read concurrently by the endpoints.
type probe struct {
	name         string
	kind         Kind
	check        CheckFunc
	timeout      time.Duration
	failAfter    int
	recoverAfter int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func (p *probe) err() error {
	if e := p.lastErr.Load(); e != nil {
		return *e
	}
	return nil
}

// run executes the check once. It reports whether the health flag flipped.
func (p *probe) run(ctx context.Context) (flipped bool) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)

	was := p.healthy.Load()
	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= p.failAfter {
			p.healthy.Store(false)
		}
	} else {
		p.fails = 0
		p.oks++
		if p.oks >= p.recoverAfter {
			p.healthy.Store(true)
		}
	}
	return was != p.healthy.Load()
}

// Health aggregates probes for the /livez and /readyz endpoints.
type Health struct {
	lg    *zap.Logger
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
}

// New returns a Health that is not ready until SetReady(true).
func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg}
}

// Add registers a probe. Probes start healthy.
func (h *Health) Add(kind Kind, name string, check CheckFunc, opts ...Option) {
	p := &probe{
		name:         name,
		kind:         kind,
		check:        check,
		timeout:      time.Second,
		failAfter:    3,
		recoverAfter: 1,
	}
	for _, o := range opts {
		o(p)
	}
	p.healthy.Store(true)

	h.mu.Lock()
	h.probes = append(h.probes, p)
	h.mu.Unlock()
}

// Start runs every registered probe immediately and then every interval
// until ctx is done or Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := append([]*probe(nil), h.probes...)
	h.mu.Unlock()

	for _, p := range probes {
		go h.loop(ctx, p, interval)
	}
}

func (h *Health) loop(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if p.run(ctx) {
			h.report(p)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *Health) report(p *probe) {
	fields := []zap.Field{zap.String("probe", p.name), zap.Stringer("kind", p.kind)}
	if p.healthy.Load() {
		h.lg.Info("Probe recovered", fields...)
		return
	}
	h.lg.Warn("Probe unhealthy", append(fields, zap.Error(p.err()))...)
}

// Stop halts the probe goroutines. It is idempotent.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate, closed during startup and
// while draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and all readiness probes pass.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(kind Kind) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := map[string]string{}
	for _, p := range h.probes {
		if p.kind != kind || p.healthy.Load() {
			continue
		}
		msg := "check is unhealthy"
		if err := p.err(); err != nil {
			msg = err.Error()
		}
		out[p.name] = msg
	}
	return out
}

// passing names the healthy checks of kind.
func (h *Health) passing(kind Kind) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var names []string
	for _, p := range h.probes {
		if p.kind == kind && p.healthy.Load() {
			names = append(names, p.name)
		}
	}
	return names
}

// verbose reports whether the caller asked for every check, as in
// /readyz?verbose.
func verbose(r *http.Request) bool {
	return r != nil && r.URL.Query().Has("verbose")
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	var passing []string
	if verbose(r) {
		passing = h.passing(Liveness)
	}
	writeReport(w, h.failures(Liveness), passing)
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	var passing []string
	if verbose(r) {
		passing = h.passing(Readiness)
	}
	writeReport(w, failures, passing)
}

// writeReport writes {"status":"ok"} or {"status":"unhealthy","checks":{...}}.
// Passing checks are listed as "ok" only when given.
func writeReport(w http.ResponseWriter, failures map[string]string, passing []string) {
	status := http.StatusOK
	checks := make(map[string]string, len(failures)+len(passing))
	for _, name := range passing {
		checks[name] = "ok"
	}
	for name, msg := range failures {
		checks[name] = msg
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("status")
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")
	}
	if len(checks) > 0 {
		e.FieldStart("checks")
		e.ObjStart()
		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			e.FieldStart(name)
			e.Str(checks[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
