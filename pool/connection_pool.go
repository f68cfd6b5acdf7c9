// Package pool binds the master and replica roles of a query.Connection to
// live endpoints.
//
// Main features:
//
// - Lazy binding: a role is resolved on first use and stays bound until the
// pool is closed. A closed pool resolves again on the next use.
//
// - Dead-server cache: endpoints that failed to open are skipped for a
// configured interval. When every endpoint is skipped or fails, a second
// pass ignores the cache.
//
// - Replica routing with an optional per-call fallback to master.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	query "github.com/ice-blockchain/go-tarantool-query"
)

var (
	ErrClosed            = errors.New("pool is closed")
	ErrIncorrectResponse = errors.New("incorrect response format")
	ErrIncorrectStatus   = errors.New("incorrect instance status: status should be `running`")
	ErrReadOnlyMaster    = errors.New("master endpoint is read-only")
)

// Opts provides additional options (configurable via NewWithOpts).
type Opts struct {
	// Opener opens endpoints. NetOpener{} is used when nil.
	Opener Opener
	// StatusCache stores dead marks. A MemoryStatusCache is used when nil.
	StatusCache StatusCache
	// Logger receives pool events. Nil drops them.
	Logger query.Logger
	// Registerer registers the pool metrics. Nil skips registration.
	Registerer prometheus.Registerer
}

type poolMetrics struct {
	failures  *prometheus.CounterVec
	binds     *prometheus.CounterVec
	skips     *prometheus.CounterVec
	exhausted *prometheus.CounterVec
}

func newPoolMetrics(reg prometheus.Registerer) *poolMetrics {
	factory := promauto.With(reg)
	return &poolMetrics{
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tarantool_query",
			Subsystem: "pool",
			Name:      "endpoint_failures_total",
			Help:      "Failed attempts to open an endpoint.",
		}, []string{"role", "endpoint"}),
		binds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tarantool_query",
			Subsystem: "pool",
			Name:      "binds_total",
			Help:      "Roles bound to an endpoint.",
		}, []string{"role", "endpoint"}),
		skips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tarantool_query",
			Subsystem: "pool",
			Name:      "dead_skips_total",
			Help:      "Endpoints skipped because they are marked dead.",
		}, []string{"role"}),
		exhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tarantool_query",
			Subsystem: "pool",
			Name:      "exhausted_total",
			Help:      "Resolutions that found no reachable endpoint.",
		}, []string{"role"}),
	}
}

type slot struct {
	state    State
	endpoint string
	handle   query.Handle
	// round is the running resolution, nil unless state is Resolving.
	round *round
}

// round is a single resolution of a slot. Callers that arrive while it runs
// share its outcome.
type round struct {
	// done is closed when the resolution finishes.
	done chan struct{}
	// err is the failure shared with the waiters. It stays nil when the
	// resolving caller gave up on its own context or the pool was closed
	// meanwhile, so waiters resolve again.
	err error
}

// Pool is a query.Router over a master/replica set. It is safe for
// concurrent use.
type Pool struct {
	cfg      Config
	masters  []Endpoint
	replicas []Endpoint

	opener  Opener
	cache   StatusCache
	logger  query.Logger
	metrics *poolMetrics

	mutex sync.Mutex
	slots [2]slot
	// masterOnly counts running UseMaster calls.
	masterOnly atomic.Int32
	// generation is bumped by Close. A resolution that started before
	// Close does not bind.
	generation uint64
}

var _ query.Router = (*Pool)(nil)

// New creates a pool with default options.
func New(cfg Config) (*Pool, error) {
	return NewWithOpts(cfg, Opts{})
}

// NewWithOpts creates a pool. No endpoint is opened until a role is
// requested.
func NewWithOpts(cfg Config, opts Opts) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	masters, err := cfg.Endpoints(MasterRole)
	if err != nil {
		return nil, err
	}
	replicas, err := cfg.Endpoints(ReplicaRole)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		cfg:      cfg,
		masters:  masters,
		replicas: replicas,
		opener:   opts.Opener,
		cache:    opts.StatusCache,
		logger:   opts.Logger,
		metrics:  newPoolMetrics(opts.Registerer),
	}
	if p.opener == nil {
		p.opener = NetOpener{}
	}
	if p.cache == nil {
		p.cache = NewMemoryStatusCache(0)
	}
	if p.logger == nil {
		p.logger = query.NopLogger()
	}
	return p, nil
}

// Master returns the handle bound to the master role.
func (p *Pool) Master(ctx context.Context) (query.Handle, error) {
	return p.bind(ctx, MasterRole)
}

// Replica returns the handle bound to the replica role. When replicas are
// disabled, not configured or unreachable, the master handle is returned
// if fallbackToMaster is set and query.ErrNoReplica otherwise.
func (p *Pool) Replica(ctx context.Context, fallbackToMaster bool) (query.Handle, error) {
	if !p.replicasActive() {
		if fallbackToMaster {
			return p.Master(ctx)
		}
		return nil, query.ErrNoReplica
	}

	handle, err := p.bind(ctx, ReplicaRole)
	if err == nil {
		return handle, nil
	}
	if !fallbackToMaster || errors.Is(err, ErrClosed) {
		return nil, fmt.Errorf("%w: %w", query.ErrNoReplica, err)
	}
	p.logger.Report(ReplicaFallbackEvent{
		BaseEvent: query.NewBaseEvent(component),
		Error:     err,
	})
	return p.Master(ctx)
}

// UseMaster runs fn with replica routing disabled. The previous routing is
// restored when fn returns or panics. Calls may be nested and concurrent.
func (p *Pool) UseMaster(fn func() error) error {
	p.masterOnly.Add(1)
	defer p.masterOnly.Add(-1)
	return fn()
}

// ReplicasActive reports whether read-only requests are routed to replicas
// at the moment.
func (p *Pool) ReplicasActive() bool {
	return p.replicasActive()
}

func (p *Pool) replicasActive() bool {
	return p.cfg.EnableReplicas && len(p.replicas) > 0 && p.masterOnly.Load() == 0
}

// Bound returns the endpoint address the role is bound to.
func (p *Pool) Bound(role Role) (string, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	s := &p.slots[role]
	if s.state != Bound {
		return "", false
	}
	return s.endpoint, true
}

// State returns the state of the role slot.
func (p *Pool) State(role Role) State {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.slots[role].state
}

// Close closes the bound handles and returns both roles to Unresolved.
// The next Master or Replica call resolves the role again. Resolutions
// running during Close fail with ErrClosed.
func (p *Pool) Close() error {
	p.mutex.Lock()
	p.generation++
	var handles []query.Handle
	for i := range p.slots {
		s := &p.slots[i]
		if s.state == Bound {
			handles = append(handles, s.handle)
			s.state = Unresolved
			s.handle = nil
			s.endpoint = ""
		}
	}
	p.mutex.Unlock()

	var merr *multierror.Error
	for _, h := range handles {
		if err := h.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

func (p *Pool) bind(ctx context.Context, role Role) (query.Handle, error) {
	for {
		p.mutex.Lock()
		s := &p.slots[role]
		switch s.state {
		case Bound:
			handle := s.handle
			p.mutex.Unlock()
			return handle, nil
		case Resolving:
			r := s.round
			p.mutex.Unlock()
			select {
			case <-r.done:
				if r.err != nil {
					return nil, r.err
				}
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		r := &round{done: make(chan struct{})}
		s.state = Resolving
		s.round = r
		generation := p.generation
		p.mutex.Unlock()

		handle, endpoint, err := p.openFromPoolSequentially(ctx, role)

		p.mutex.Lock()
		s.round = nil
		if err != nil {
			s.state = Unresolved
			if ctx.Err() == nil {
				r.err = err
			}
			close(r.done)
			p.mutex.Unlock()
			return nil, err
		}
		if p.generation != generation {
			s.state = Unresolved
			close(r.done)
			p.mutex.Unlock()
			handle.Close()
			return nil, ErrClosed
		}
		s.state = Bound
		s.handle = handle
		s.endpoint = endpoint
		close(r.done)
		p.mutex.Unlock()
		return handle, nil
	}
}

func (p *Pool) endpoints(role Role) []Endpoint {
	if role == MasterRole {
		return p.masters
	}
	return p.replicas
}

// openFromPoolSequentially opens the first reachable endpoint of role. The
// first pass skips endpoints marked dead; if it binds nothing, a second pass
// tries every endpoint in configured order ignoring the marks.
func (p *Pool) openFromPoolSequentially(ctx context.Context, role Role) (query.Handle, string, error) {
	configured := p.endpoints(role)
	order := configured
	if role == MasterRole && p.cfg.ShuffleMasters {
		order = make([]Endpoint, len(configured))
		copy(order, configured)
		rand.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	var merr *multierror.Error
	passes := [][]Endpoint{order, configured}
	for pass, endpoints := range passes {
		honorCache := pass == 0
		for _, endpoint := range endpoints {
			if err := ctx.Err(); err != nil {
				merr = multierror.Append(merr, err)
				return nil, "", p.exhausted(role, merr)
			}
			if honorCache && p.isDead(ctx, role, endpoint) {
				continue
			}

			handle, err := p.open(ctx, role, endpoint)
			if err != nil {
				merr = multierror.Append(merr, &query.TransportError{Endpoint: endpoint.Address, Err: err})
				p.metrics.failures.WithLabelValues(role.String(), endpoint.Address).Inc()
				p.logger.Report(EndpointFailedEvent{
					BaseEvent: query.NewBaseEvent(component),
					Role:      role,
					Endpoint:  endpoint.Address,
					Pass:      pass + 1,
					Error:     err,
				})
				if err := p.cache.MarkDead(ctx, endpoint.Address, p.cfg.retryInterval()); err != nil {
					p.cacheError(endpoint, err)
				}
				continue
			}

			if err := p.cache.MarkAlive(ctx, endpoint.Address); err != nil {
				p.cacheError(endpoint, err)
			}
			p.metrics.binds.WithLabelValues(role.String(), endpoint.Address).Inc()
			p.logger.Report(EndpointBoundEvent{
				BaseEvent: query.NewBaseEvent(component),
				Role:      role,
				Endpoint:  endpoint.Address,
			})
			return handle, endpoint.Address, nil
		}
	}
	return nil, "", p.exhausted(role, merr)
}

func (p *Pool) isDead(ctx context.Context, role Role, endpoint Endpoint) bool {
	dead, err := p.cache.IsDead(ctx, endpoint.Address)
	if err != nil {
		p.cacheError(endpoint, err)
		return false
	}
	if dead {
		p.metrics.skips.WithLabelValues(role.String()).Inc()
	}
	return dead
}

func (p *Pool) open(ctx context.Context, role Role, endpoint Endpoint) (query.Handle, error) {
	handle, err := p.opener.Open(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if !p.cfg.VerifyRole {
		return handle, nil
	}
	if err := verifyRole(ctx, handle, role); err != nil {
		handle.Close()
		return nil, err
	}
	return handle, nil
}

func (p *Pool) exhausted(role Role, merr *multierror.Error) error {
	err := fmt.Errorf("%w for %s role: %w", query.ErrNoServerAvailable, role, merr.ErrorOrNil())
	if merr.ErrorOrNil() == nil {
		err = fmt.Errorf("%w for %s role", query.ErrNoServerAvailable, role)
	}
	p.metrics.exhausted.WithLabelValues(role.String()).Inc()
	p.logger.Report(PoolExhaustedEvent{
		BaseEvent: query.NewBaseEvent(component),
		Role:      role,
		Error:     err,
	})
	return err
}

func (p *Pool) cacheError(endpoint Endpoint, err error) {
	p.logger.Report(StatusCacheErrorEvent{
		BaseEvent: query.NewBaseEvent(component),
		Endpoint:  endpoint.Address,
		Error:     err,
	})
}

// verifyRole checks the instance is running and, for the master role, that
// it accepts writes.
func verifyRole(ctx context.Context, handle query.Handle, role Role) error {
	data, err := handle.Do(ctx, &query.Call{Function: "box.info"})
	if err != nil {
		return err
	}
	if len(data) < 1 {
		return ErrIncorrectResponse
	}

	status, ok := mapValue(data[0], "status")
	if !ok {
		return ErrIncorrectResponse
	}
	if status != "running" {
		return ErrIncorrectStatus
	}
	ro, ok := mapValue(data[0], "ro")
	if !ok {
		return ErrIncorrectResponse
	}
	if role == MasterRole && ro == true {
		return ErrReadOnlyMaster
	}
	return nil
}

func mapValue(v interface{}, key string) (interface{}, bool) {
	switch m := v.(type) {
	case map[interface{}]interface{}:
		value, ok := m[key]
		return value, ok
	case map[string]interface{}:
		value, ok := m[key]
		return value, ok
	default:
		return nil, false
	}
}
