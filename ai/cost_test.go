package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeCost(t *testing.T) {
	usage := Usage{
		InputTokens:      1_000_000,
		OutputTokens:      500_000,
		CacheReadTokens:   200_000,
		CacheWriteTokens:  100_000,
	}
	rates := Cost{Input: 3, Output: 15, CacheRead: 0.3, CacheWrite: 3.75}

	c := ComputeCost(usage, rates)

	assert.InDelta(t, 3.0, c.Input, 1e-9)
	assert.InDelta(t, 7.5, c.Output, 1e-9)
	assert.InDelta(t, 0.06, c.CacheRead, 1e-9)
	assert.InDelta(t, 0.375, c.CacheWrite, 1e-9)
	assert.InDelta(t, 3.0+7.5+0.06+0.375, c.Total, 1e-9)
}

func TestComputeCost_ZeroUsage(t *testing.T) {
	c := ComputeCost(Usage{}, Cost{Input: 3, Output: 15})
	assert.Equal(t, Cost{}, c)
}

func TestFinalizeUsage(t *testing.T) {
	usage := Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	model := Model{Cost: Cost{Input: 2, Output: 8}}

	FinalizeUsage(&usage, model)

	assert.InDelta(t, 10.0, usage.Cost.Total, 1e-9)
}
