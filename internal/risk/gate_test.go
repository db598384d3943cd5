package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateBlocksAtPositionBoundary(t *testing.T) {
	g := NewGate(DefaultLimits())

	v := g.Evaluate(Context{ActivePositions: 3}, 2, 2)
	assert.False(t, v.Allowed, "equality at the limit blocks")
	assert.Contains(t, v.Reason, "持仓数已达上限")

	v = g.Evaluate(Context{ActivePositions: 2}, 2, 2)
	assert.True(t, v.Allowed)
}

func TestGateBlocksAtLossBoundary(t *testing.T) {
	g := NewGate(DefaultLimits())

	v := g.Evaluate(Context{ConsecutiveLosses: 3}, 2, 2)
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "连续亏损")

	v = g.Evaluate(Context{ConsecutiveLosses: 2}, 2, 2)
	assert.True(t, v.Allowed)
}

func TestGateBlocksWhenBothRiskRewardScoresLow(t *testing.T) {
	g := NewGate(DefaultLimits())

	v := g.Evaluate(Context{}, 1, 1)
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "盈亏比")

	// One side at 2 clears the 1.5 minimum.
	assert.True(t, g.Evaluate(Context{}, 2, 0).Allowed)
	assert.True(t, g.Evaluate(Context{}, 0, 2).Allowed)
}

func TestGateChecksShortCircuitInOrder(t *testing.T) {
	g := NewGate(DefaultLimits())

	// All three conditions trip; the position limit answers first.
	v := g.Evaluate(Context{ActivePositions: 5, ConsecutiveLosses: 5}, 0, 0)
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "持仓数")
}

func TestNewGateFillsZeroLimitsWithDefaults(t *testing.T) {
	g := NewGate(Limits{})
	assert.Equal(t, DefaultLimits(), g.limits)

	g = NewGate(Limits{MaxConcurrentPositions: 10})
	assert.Equal(t, 10, g.limits.MaxConcurrentPositions)
	assert.Equal(t, 3, g.limits.ConsecutiveLossThreshold)
}
