package luckydraw

// OutcomePolicy can force specific draw slots to a fixed prize entry before
// random selection runs. Policies are configuration-level overrides injected
// by the caller; the selector itself stays policy-free.
//
// PlanBatch is consulted once per draw request, before any charge or stock
// mutation. It returns one prize ID per slot; an empty string leaves the slot
// to random selection. The session validates every forced ID against the pool
// and its stock before charging, so a plan naming an exhausted entry aborts
// the whole batch cleanly.
type OutcomePolicy interface {
	PlanBatch(account Account, kind DrawKind, rng RandFunc) []string
}

// PolicyFunc adapts a plain function to the OutcomePolicy interface
type PolicyFunc func(account Account, kind DrawKind, rng RandFunc) []string

// PlanBatch implements OutcomePolicy
func (f PolicyFunc) PlanBatch(account Account, kind DrawKind, rng RandFunc) []string {
	return f(account, kind, rng)
}

// ForcedLossPolicy forces an account's earliest draws to a fixed losing entry.
// The rolling counter is the account's persisted total draw count, so the
// window survives restarts and spans batches: with FirstDraws = 3, an account
// that has completed 2 draws gets one more forced slot before random
// selection takes over.
type ForcedLossPolicy struct {
	EntryID    string // the losing entry every forced slot resolves to
	FirstDraws int    // how many of the account's first draws are forced
}

// NewForcedLossPolicy creates a forced-loss policy
func NewForcedLossPolicy(entryID string, firstDraws int) *ForcedLossPolicy {
	return &ForcedLossPolicy{EntryID: entryID, FirstDraws: firstDraws}
}

// PlanBatch implements OutcomePolicy
func (p *ForcedLossPolicy) PlanBatch(account Account, kind DrawKind, rng RandFunc) []string {
	plan := make([]string, kind.Count)
	if p.EntryID == "" || p.FirstDraws <= 0 {
		return plan
	}

	for slot := 0; slot < kind.Count; slot++ {
		if account.TotalDraws+slot < p.FirstDraws {
			plan[slot] = p.EntryID
		}
	}
	return plan
}

// BatchQuotaPolicy guarantees that at least MinForced slots of a multi-draw
// batch resolve to a fixed entry, at positions chosen by the injected rng.
// Single draws are never affected.
type BatchQuotaPolicy struct {
	EntryID   string // the entry forced into the chosen slots
	MinForced int    // minimum number of forced slots per batch
}

// NewBatchQuotaPolicy creates a batch quota policy
func NewBatchQuotaPolicy(entryID string, minForced int) *BatchQuotaPolicy {
	return &BatchQuotaPolicy{EntryID: entryID, MinForced: minForced}
}

// PlanBatch implements OutcomePolicy
func (p *BatchQuotaPolicy) PlanBatch(account Account, kind DrawKind, rng RandFunc) []string {
	plan := make([]string, kind.Count)
	if p.EntryID == "" || p.MinForced <= 0 || kind.Count <= 1 {
		return plan
	}

	forced := p.MinForced
	if forced > kind.Count {
		forced = kind.Count
	}

	// Pick distinct random positions with a partial shuffle. One rng call per
	// forced slot, so even a degenerate random source terminates.
	positions := make([]int, kind.Count)
	for i := range positions {
		positions[i] = i
	}
	for i := 0; i < forced; i++ {
		j := i + int(rng()*float64(kind.Count-i))
		if j >= kind.Count {
			j = kind.Count - 1
		}
		positions[i], positions[j] = positions[j], positions[i]
		plan[positions[i]] = p.EntryID
	}
	return plan
}

// ChainPolicies combines policies; the first policy to force a slot wins
func ChainPolicies(policies ...OutcomePolicy) OutcomePolicy {
	return PolicyFunc(func(account Account, kind DrawKind, rng RandFunc) []string {
		plan := make([]string, kind.Count)
		for _, policy := range policies {
			if policy == nil {
				continue
			}
			next := policy.PlanBatch(account, kind, rng)
			for i := 0; i < kind.Count && i < len(next); i++ {
				if plan[i] == "" {
					plan[i] = next[i]
				}
			}
		}
		return plan
	})
}
