package luckydraw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForcedLossPolicy_PlanBatch(t *testing.T) {
	policy := NewForcedLossPolicy("thanks", 3)

	t.Run("fresh account gets the full window", func(t *testing.T) {
		plan := policy.PlanBatch(Account{ID: "u1"}, Multi(5), seqRand(0.5))
		assert.Equal(t, []string{"thanks", "thanks", "thanks", "", ""}, plan)
	})

	t.Run("window spans batches", func(t *testing.T) {
		plan := policy.PlanBatch(Account{ID: "u1", TotalDraws: 2}, Multi(5), seqRand(0.5))
		assert.Equal(t, []string{"thanks", "", "", "", ""}, plan)
	})

	t.Run("window exhausted", func(t *testing.T) {
		plan := policy.PlanBatch(Account{ID: "u1", TotalDraws: 3}, Multi(5), seqRand(0.5))
		assert.Equal(t, []string{"", "", "", "", ""}, plan)
	})

	t.Run("single draw inside the window", func(t *testing.T) {
		plan := policy.PlanBatch(Account{ID: "u1"}, Single(), seqRand(0.5))
		assert.Equal(t, []string{"thanks"}, plan)
	})

	t.Run("unconfigured policy forces nothing", func(t *testing.T) {
		empty := NewForcedLossPolicy("", 0)
		plan := empty.PlanBatch(Account{ID: "u1"}, Multi(3), seqRand(0.5))
		assert.Equal(t, []string{"", "", ""}, plan)
	})
}

func TestBatchQuotaPolicy_PlanBatch(t *testing.T) {
	t.Run("single draws are never affected", func(t *testing.T) {
		policy := NewBatchQuotaPolicy("thanks", 2)
		plan := policy.PlanBatch(Account{ID: "u1"}, Single(), seqRand(0.0))
		assert.Equal(t, []string{""}, plan)
	})

	t.Run("forces the minimum at random positions", func(t *testing.T) {
		policy := NewBatchQuotaPolicy("thanks", 2)
		// Partial shuffle: 0.1 over 5 candidates picks index 0, then 0.5
		// over the remaining 4 picks index 3
		plan := policy.PlanBatch(Account{ID: "u1"}, Multi(5), seqRand(0.1, 0.5))
		assert.Equal(t, []string{"thanks", "", "", "thanks", ""}, plan)
	})

	t.Run("degenerate random source still terminates", func(t *testing.T) {
		policy := NewBatchQuotaPolicy("thanks", 2)
		// A source stuck at one value must still yield distinct positions
		plan := policy.PlanBatch(Account{ID: "u1"}, Multi(5), seqRand(0.0))
		assert.Equal(t, []string{"thanks", "thanks", "", "", ""}, plan)
	})

	t.Run("minimum clamped to batch size", func(t *testing.T) {
		policy := NewBatchQuotaPolicy("thanks", 10)
		plan := policy.PlanBatch(Account{ID: "u1"}, Multi(3), seqRand(0.0, 0.4, 0.8))
		assert.Equal(t, []string{"thanks", "thanks", "thanks"}, plan)
	})

	t.Run("quota holds for any random sequence", func(t *testing.T) {
		policy := NewBatchQuotaPolicy("thanks", 2)
		rng := SecureRand()

		for i := 0; i < 50; i++ {
			plan := policy.PlanBatch(Account{ID: "u1"}, Multi(5), rng)
			require.Len(t, plan, 5)

			forced := 0
			for _, prizeID := range plan {
				if prizeID != "" {
					assert.Equal(t, "thanks", prizeID)
					forced++
				}
			}
			assert.Equal(t, 2, forced)
		}
	})

	t.Run("unconfigured policy forces nothing", func(t *testing.T) {
		policy := NewBatchQuotaPolicy("", 0)
		plan := policy.PlanBatch(Account{ID: "u1"}, Multi(5), seqRand(0.5))
		assert.Equal(t, []string{"", "", "", "", ""}, plan)
	})
}

func TestChainPolicies(t *testing.T) {
	t.Run("first policy to force a slot wins", func(t *testing.T) {
		first := PolicyFunc(func(account Account, kind DrawKind, rng RandFunc) []string {
			return []string{"a", "", ""}
		})
		second := PolicyFunc(func(account Account, kind DrawKind, rng RandFunc) []string {
			return []string{"b", "b", ""}
		})

		chained := ChainPolicies(first, second)
		plan := chained.PlanBatch(Account{ID: "u1"}, Multi(3), seqRand(0.5))
		assert.Equal(t, []string{"a", "b", ""}, plan)
	})

	t.Run("nil policies are skipped", func(t *testing.T) {
		only := PolicyFunc(func(account Account, kind DrawKind, rng RandFunc) []string {
			return []string{"a"}
		})

		chained := ChainPolicies(nil, only, nil)
		plan := chained.PlanBatch(Account{ID: "u1"}, Single(), seqRand(0.5))
		assert.Equal(t, []string{"a"}, plan)
	})

	t.Run("short plans from a policy are tolerated", func(t *testing.T) {
		short := PolicyFunc(func(account Account, kind DrawKind, rng RandFunc) []string {
			return []string{"a"}
		})

		chained := ChainPolicies(short)
		plan := chained.PlanBatch(Account{ID: "u1"}, Multi(3), seqRand(0.5))
		assert.Equal(t, []string{"a", "", ""}, plan)
	})
}

func TestPolicyFunc_Adapter(t *testing.T) {
	var captured DrawKind
	policy := PolicyFunc(func(account Account, kind DrawKind, rng RandFunc) []string {
		captured = kind
		return make([]string, kind.Count)
	})

	plan := policy.PlanBatch(Account{ID: "u1"}, Multi(4), seqRand(0.5))
	assert.Len(t, plan, 4)
	assert.Equal(t, 4, captured.Count)
}
