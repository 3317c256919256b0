package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallCancelIsIdempotentAndCancelsTrackedPlans(t *testing.T) {
	call := NewCall(context.Background(), nil)
	assert.False(t, call.Canceled())

	p1 := &Plan{Kind: PlanConnect}
	p2 := &Plan{Kind: PlanConnect}
	call.trackPlan(p1)
	call.trackPlan(p2)

	call.Cancel()
	assert.True(t, call.Canceled())
	assert.True(t, p1.isCanceled())
	assert.True(t, p2.isCanceled())

	// Idempotent: a second Cancel must not panic or double-toggle state.
	call.Cancel()
	assert.True(t, call.Canceled())
}

func TestCallWeakHandleResolvesWhileLive(t *testing.T) {
	call := NewCall(context.Background(), nil)
	h := call.weakHandle()
	assert.Same(t, call, h.Value())
}
