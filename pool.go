package transport

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// AddressPolicy tunes the pool's eagerness to keep warm connections open
// for one Address (spec §3 "AddressState").
type AddressPolicy struct {
	MinConcurrentCalls int
	BackoffMS          int
	BackoffJitterMS    int
}

type addressState struct {
	address Address
	policy  AddressPolicy
}

// ConnectionPool is the process-wide set of live connections (spec
// §4.1). Iteration over connections walks a snapshot copied under the
// pool's read lock; it is not lock-free. Mutation of any one
// connection's fields requires that connection's own lock.
type ConnectionPool struct {
	log hclog.Logger

	mu          sync.RWMutex
	connections []*Connection
	addressPolicies map[string]*addressState

	maxIdle     int
	keepAlive   time.Duration
	clock       Clock
	tasks       *taskRunner
	planner     *RoutePlanner

	stop chan struct{}
	once sync.Once
}

func NewConnectionPool(maxIdle int, keepAlive time.Duration, clock Clock, planner *RoutePlanner, log hclog.Logger) *ConnectionPool {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	p := &ConnectionPool{
		log:             log.Named("pool"),
		addressPolicies: make(map[string]*addressState),
		maxIdle:         maxIdle,
		keepAlive:       keepAlive,
		clock:           clock,
		tasks:           newTaskRunner(),
		planner:         planner,
		stop:            make(chan struct{}),
	}
	return p
}

// acquire scans for a pool-compatible, eligible, healthy connection
// (spec §4.1 `acquire`).
func (p *ConnectionPool) acquire(address Address, requireMultiplexed, extensive bool, user *Call) *Connection {
	p.mu.RLock()
	candidates := append([]*Connection(nil), p.connections...)
	p.mu.RUnlock()

	for _, c := range candidates {
		if !c.isEligible(address) {
			continue
		}
		if requireMultiplexed && !c.isMultiplexed() {
			continue
		}
		if !c.acquire(user) {
			continue
		}
		if !c.isHealthy(extensive) {
			c.release(user)
			p.flagUnhealthy(c)
			continue
		}
		return c
	}
	return nil
}

func (p *ConnectionPool) flagUnhealthy(c *Connection) {
	c.mu.Lock()
	c.noNewExchanges = true
	c.mu.Unlock()
}

// put inserts a freshly-connected Connection (spec §4.1 `put`). Caller
// must already hold no external lock on c; put schedules the closer.
func (p *ConnectionPool) put(c *Connection) {
	p.mu.Lock()
	p.connections = append(p.connections, c)
	p.mu.Unlock()
	p.scheduleCloser(c.route.Address)
}

// becameIdle implements §4.1 `became_idle`.
func (p *ConnectionPool) becameIdle(c *Connection) bool {
	c.mu.Lock()
	shouldClose := c.noNewExchanges || p.maxIdle == 0
	c.mu.Unlock()
	if shouldClose {
		p.remove(c)
		p.scheduleOpener(c.route.Address)
		return true
	}
	p.scheduleCloser(c.route.Address)
	p.scheduleOpener(c.route.Address)
	return false
}

func (p *ConnectionPool) remove(c *Connection) {
	p.mu.Lock()
	for i, cc := range p.connections {
		if cc == c {
			p.connections = append(p.connections[:i], p.connections[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	c.close()
}

// evictAll closes every connection with no outstanding allocations
// (spec §4.1 `evict_all`).
func (p *ConnectionPool) evictAll() {
	p.mu.RLock()
	candidates := append([]*Connection(nil), p.connections...)
	p.mu.RUnlock()
	for _, c := range candidates {
		if c.allocationCount() == 0 {
			p.remove(c)
		}
	}
	p.mu.RLock()
	addrs := make([]Address, 0, len(p.addressPolicies))
	for _, s := range p.addressPolicies {
		addrs = append(addrs, s.address)
	}
	p.mu.RUnlock()
	for _, a := range addrs {
		p.scheduleOpener(a)
	}
}

// setPolicy installs policy for address, rescheduling the opener or
// closer as needed (spec §4.1 `set_policy`).
func (p *ConnectionPool) setPolicy(address Address, policy AddressPolicy) {
	p.mu.Lock()
	existing, ok := p.addressPolicies[address.key()]
	capacityNow := p.capacityForLocked(address)
	p.addressPolicies[address.key()] = &addressState{address: address, policy: policy}
	p.mu.Unlock()

	if !ok || policy.MinConcurrentCalls > capacityNow {
		p.scheduleOpener(address)
	} else {
		p.scheduleCloser(address)
	}
	_ = existing
}

func (p *ConnectionPool) capacityForLocked(address Address) int {
	total := 0
	for _, c := range p.connections {
		if c.route.Address.Equal(address) {
			total += c.allocationLimit
		}
	}
	return total
}

// closeConnections is the periodic closer task (spec §4.1
// `close_connections`): close the oldest OLD connection if any, else the
// oldest evictable connection past max_idle, else report the next wake
// as the soonest an idle connection will cross keep_alive (spec §8
// invariant 1: `K-(t-t0)` while `t-t0<K`), or -1 if there is nothing to
// ever wake for.
func (p *ConnectionPool) closeConnections() time.Duration {
	now := p.clock.Now()

	p.mu.RLock()
	conns := append([]*Connection(nil), p.connections...)
	policies := make(map[string]AddressPolicy, len(p.addressPolicies))
	for key, s := range p.addressPolicies {
		policies[key] = s.policy
	}
	p.mu.RUnlock()

	if len(conns) == 0 {
		return -1
	}

	type idleConn struct {
		c         *Connection
		idleSince time.Time
	}
	var oldest *idleConn
	var oldestEvictable *idleConn
	evictableCount := 0
	minRemaining := p.keepAlive

	for _, c := range conns {
		idleSince, idle := c.isIdle()
		if !idle {
			continue
		}
		elapsed := now.Sub(idleSince)
		if elapsed >= p.keepAlive {
			if oldest == nil || idleSince.Before(oldest.idleSince) {
				oldest = &idleConn{c, idleSince}
			}
		} else if remaining := p.keepAlive - elapsed; remaining < minRemaining {
			minRemaining = remaining
		}
		if p.isEvictable(c, policies) {
			evictableCount++
			if oldestEvictable == nil || idleSince.Before(oldestEvictable.idleSince) {
				oldestEvictable = &idleConn{c, idleSince}
			}
		}
	}

	if oldest != nil {
		p.remove(oldest.c)
		return 0
	}
	if oldestEvictable != nil && evictableCount > p.maxIdle {
		p.remove(oldestEvictable.c)
		return 0
	}
	return minRemaining
}

// isEvictable reports whether c can be closed without violating any
// address's min_concurrent_calls policy (spec §4.1).
func (p *ConnectionPool) isEvictable(c *Connection, policies map[string]AddressPolicy) bool {
	policy, ok := policies[c.route.Address.key()]
	if !ok {
		return true
	}
	withoutThis := p.capacityForAddressExcluding(c, c.route.Address)
	return withoutThis >= policy.MinConcurrentCalls
}

func (p *ConnectionPool) capacityForAddressExcluding(exclude *Connection, address Address) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := 0
	for _, c := range p.connections {
		if c == exclude {
			continue
		}
		if c.route.Address.Equal(address) {
			total += c.allocationLimit
		}
	}
	return total
}

// scheduleCloser enqueues one pass of closeConnections on address's
// queue, re-arming itself after the returned wake delay so an idle
// connection that receives no further put/became_idle/set_policy call
// still gets swept (spec §4.1 `close_connections` is periodic). A
// negative wake means there was nothing to ever close; don't re-arm.
func (p *ConnectionPool) scheduleCloser(address Address) {
	p.tasks.enqueue(address, func(ctx context.Context) error {
		wake := p.closeConnections()
		if wake < 0 {
			return nil
		}
		if wake > 0 {
			p.log.Debug("closer idle", "address", address.Host, "next_wake", wake)
		}
		time.AfterFunc(wake, func() { p.scheduleCloser(address) })
		return nil
	})
}

// scheduleOpener enqueues openConnections for address on its queue
// (spec §4.1 `open_connections`).
func (p *ConnectionPool) scheduleOpener(address Address) {
	p.mu.RLock()
	state, ok := p.addressPolicies[address.key()]
	p.mu.RUnlock()
	if !ok {
		return
	}
	policy := state.policy
	p.tasks.enqueue(address, func(ctx context.Context) error {
		p.openConnections(ctx, address, policy)
		return nil
	})
}

func (p *ConnectionPool) openConnections(ctx context.Context, address Address, policy AddressPolicy) {
	if p.capacityForLocked2(address) >= policy.MinConcurrentCalls {
		return
	}
	if p.planner == nil {
		return
	}
	user := NewCall(ctx, NoopEventListener{})
	selector, err := p.planner.NewSelector(ctx, address)
	if err != nil {
		p.log.Warn("opener failed to build route selector", "address", address.Host, "error", err)
		return
	}
	plan, err := p.planner.plan(ctx, address, nil, false, false, selector, user)
	if err == nil {
		_, err = stepPlan(ctx, plan, address.Host)
	}
	if err != nil {
		backoff := time.Duration(policy.BackoffMS)*time.Millisecond + jitter(policy.BackoffJitterMS)
		p.log.Warn("opener failed", "address", address.Host, "error", err, "backoff", backoff)
		time.AfterFunc(backoff, func() { p.scheduleOpener(address) })
		return
	}
	p.put(plan.handleSuccess())
	p.scheduleOpener(address)
}

func (p *ConnectionPool) capacityForLocked2(address Address) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.capacityForLocked(address)
}

func jitter(maxMS int) time.Duration {
	if maxMS <= 0 {
		return 0
	}
	n := rand.IntN(2*maxMS+1) - maxMS
	return time.Duration(n) * time.Millisecond
}

func (p *ConnectionPool) openConnectionsCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.connections)
}

func (p *ConnectionPool) closeAllConnections() {
	p.mu.Lock()
	conns := p.connections
	p.connections = nil
	p.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
	p.once.Do(func() { close(p.stop) })
}
