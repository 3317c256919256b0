package transport

import (
	"context"
	"sync"
	"time"
)

const fastFallbackStagger = 250 * time.Millisecond

// FastFallbackFinder races multiple Plans' TCP connects in parallel,
// staggered by fastFallbackStagger, committing to whichever finishes
// its TCP handshake first and cancelling the rest (spec §4.3
// "Fast-fallback finder").
type FastFallbackFinder struct {
	planner *RoutePlanner
}

func NewFastFallbackFinder(planner *RoutePlanner) *FastFallbackFinder {
	return &FastFallbackFinder{planner: planner}
}

type raceOutcome struct {
	plan   *Plan
	result ConnectResult
	err    error
}

// Find implements the happy-eyeballs contract from spec §4.3: one plan
// started every fastFallbackStagger, never sooner even if an earlier
// attempt has already failed; the first plan whose TCP connect (or
// pool-hit reuse) completes wins and proceeds to TLS alone; the rest
// are cancelled and never start TLS.
func (f *FastFallbackFinder) Find(ctx context.Context, address Address, requireMultiplexed, extensive bool, call *Call) (*Connection, error) {
	selector, err := f.planner.NewSelector(ctx, address)
	if err != nil {
		return nil, err
	}

	outcomes := make(chan raceOutcome, 8)
	var wg sync.WaitGroup
	var pending []*Plan
	var nextRouteToTry *Plan
	inFlight := 0
	exhausted := false

	// The call's own connection (spec §4.2 step 1) is only meaningful
	// for the very first plan; plan() itself skips it once it's no
	// longer healthy, so passing it on every startOne call is safe.
	existing := call.Connection()
	if existing != nil && !existing.isHealthy(extensive) {
		existing = nil
	}

	// startOne starts one more race attempt, if any route remains.
	// Route-enumeration failures are reported inline (it runs on the
	// main goroutine) rather than over outcomes, since a concurrent
	// send there would race the wg-driven channel close below.
	startOne := func() error {
		var p *Plan
		if nextRouteToTry != nil {
			p = nextRouteToTry
			nextRouteToTry = nil
		} else {
			plan, err := f.planner.plan(ctx, address, existing, requireMultiplexed, extensive, selector, call)
			if err != nil {
				exhausted = true
				return err
			}
			p = plan
		}
		call.trackPlan(p)
		pending = append(pending, p)
		inFlight++
		wg.Add(1)
		go func(plan *Plan) {
			defer wg.Done()
			if plan.isReady() {
				outcomes <- raceOutcome{plan: plan, result: ConnectResult{Success: true}}
				return
			}
			res := plan.connectTCP(ctx)
			outcomes <- raceOutcome{plan: plan, result: res, err: res.Failure}
		}(p)
		return nil
	}

	// Find holds one count itself so outcomes stays open between
	// attempts, when no dial is in flight but more may still start.
	wg.Add(1)
	defer wg.Done()
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var firstErr error
	var winner *Plan

	if err := startOne(); err != nil {
		firstErr = accumulate(firstErr, err)
	}
	ticker := time.NewTicker(fastFallbackStagger)
	defer ticker.Stop()

	for winner == nil {
		// A new plan starts only on the ticker's own cadence, never
		// eagerly just because inFlight dropped to 0 — an in-flight
		// attempt failing fast must not shrink the 250ms stagger
		// (spec §8 invariant 10).
		if inFlight == 0 && exhausted {
			return nil, firstErr
		}
		select {
		case <-ticker.C:
			if !exhausted {
				if err := startOne(); err != nil {
					firstErr = accumulate(firstErr, err)
				}
			}
		case oc, ok := <-outcomes:
			if !ok {
				if firstErr == nil {
					firstErr = &NetworkError{Op: "connect", Cause: context.Canceled}
				}
				return nil, firstErr
			}
			inFlight--
			if oc.err != nil {
				firstErr = accumulate(firstErr, oc.err)
				if oc.plan != nil {
					oc.plan.close()
				}
				continue
			}
			if oc.result.NextPlan != nil {
				// A tunnel-auth follow-up: stash it, this in-flight
				// attempt is done but not a winner yet.
				nextRouteToTry = oc.result.NextPlan
				continue
			}
			winner = oc.plan
		}
	}

	// Cancel every other in-flight/pending plan: they lose the race and
	// must never start TLS (spec §4.3).
	for _, p := range pending {
		if p != winner {
			p.cancel()
		}
	}

	res := winner.connectTLS(ctx, address.Host)
	if res.Failure != nil {
		if nextRouteToTry != nil {
			return f.continueAfterTLSFailure(ctx, address, call, nextRouteToTry, accumulate(firstErr, res.Failure))
		}
		return nil, accumulate(firstErr, res.Failure)
	}
	if res.NextPlan != nil {
		return f.continueAfterTLSFailure(ctx, address, call, res.NextPlan, firstErr)
	}
	conn := winner.handleSuccess()
	call.SetConnection(conn)
	return conn, nil
}

// continueAfterTLSFailure drives a stashed next_plan (a TLS fallback or
// a tunnel-auth retry) sequentially to completion. TCP attempts that
// lost the race were cancelled when the winner was chosen; they are not
// stashed and are not retried here.
func (f *FastFallbackFinder) continueAfterTLSFailure(ctx context.Context, address Address, call *Call, next *Plan, accumulated error) (*Connection, error) {
	call.trackPlan(next)
	result, err := stepPlan(ctx, next, address.Host)
	if err != nil {
		return nil, accumulate(accumulated, err)
	}
	if result.NextPlan != nil {
		return f.continueAfterTLSFailure(ctx, address, call, result.NextPlan, accumulated)
	}
	conn := next.handleSuccess()
	call.SetConnection(conn)
	return conn, nil
}
