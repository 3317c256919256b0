package transport

import (
	"context"

	"github.com/hashicorp/go-multierror"
)

// ExchangeFinder produces a usable Connection for a Call, retrying
// across routes on failure (spec §4.3).
type ExchangeFinder interface {
	Find(ctx context.Context, address Address, requireMultiplexed, extensive bool, call *Call) (*Connection, error)
}

// SequentialFinder tries one Plan at a time, in the order the planner
// proposes them, accumulating failures as suppressed errors on the
// first one (spec §4.3 "Sequential finder").
type SequentialFinder struct {
	planner *RoutePlanner
}

func NewSequentialFinder(planner *RoutePlanner) *SequentialFinder {
	return &SequentialFinder{planner: planner}
}

func (f *SequentialFinder) Find(ctx context.Context, address Address, requireMultiplexed, extensive bool, call *Call) (*Connection, error) {
	selector, err := f.planner.NewSelector(ctx, address)
	if err != nil {
		return nil, err
	}

	var firstErr error
	var deferred []*Plan
	var lastFailed *Connection

	for {
		if call.Canceled() {
			return nil, CanceledError{}
		}

		var plan *Plan
		if len(deferred) > 0 {
			plan = deferred[0]
			deferred = deferred[1:]
		} else {
			// The call's own connection (spec §4.2 step 1), if it's no
			// longer healthy, is the "failed connection" hasNext judges
			// against; plan() itself skips it once unhealthy, so it
			// never surfaces as a usable PlanReuse below.
			existing := call.Connection()
			if existing != nil && !existing.isHealthy(extensive) {
				lastFailed = existing
				existing = nil
			}
			p, err := f.planner.plan(ctx, address, existing, requireMultiplexed, extensive, selector, call)
			if err != nil {
				return nil, accumulate(firstErr, err)
			}
			plan = p
		}
		call.trackPlan(plan)

		result, err := stepPlan(ctx, plan, address.Host)
		if err != nil {
			firstErr = accumulate(firstErr, err)
			if !f.planner.hasNext(lastFailed) {
				return nil, firstErr
			}
			continue
		}
		if result.NextPlan != nil {
			deferred = append([]*Plan{result.NextPlan}, deferred...)
			continue
		}
		if result.Failure != nil {
			firstErr = accumulate(firstErr, result.Failure)
			if !f.planner.hasNext(lastFailed) {
				return nil, firstErr
			}
			continue
		}
		conn := plan.handleSuccess()
		call.SetConnection(conn)
		return conn, nil
	}
}

// stepPlan drives a plan to completion: ready plans (reuse) return
// immediately; connect plans run TCP then TLS.
func stepPlan(ctx context.Context, plan *Plan, serverName string) (ConnectResult, error) {
	if plan.isReady() {
		return ConnectResult{Success: true}, nil
	}
	res := plan.connectTCP(ctx)
	if res.Failure != nil {
		return res, res.Failure
	}
	if res.NextPlan != nil {
		return res, nil
	}
	res = plan.connectTLS(ctx, serverName)
	if res.Failure != nil {
		return res, res.Failure
	}
	return res, nil
}

func accumulate(first, next error) error {
	if first == nil {
		return next
	}
	return multierror.Append(first, next)
}
