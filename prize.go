package luckydraw

// PrizeEntry represents one awardable prize in a pool
type PrizeEntry struct {
	ID          string  `json:"id"`          // Prize ID
	Name        string  `json:"name"`        // Prize name
	Probability float64 `json:"probability"` // Winning probability (0-1)
	Cost        int64   `json:"cost"`        // Per-draw cost in minor currency units
	Stock       int     `json:"stock"`       // Remaining inventory, StockUnlimited for no depletion
}

// Validate validates the prize entry data
func (p *PrizeEntry) Validate() error {
	if p.ID == "" {
		return ErrInvalidEntryID
	}
	if p.Name == "" {
		return ErrInvalidEntryName
	}
	if p.Probability < 0 || p.Probability > 1 {
		return ErrInvalidProbability
	}
	if p.Cost < 0 {
		return ErrNegativeCost
	}
	if p.Stock < StockUnlimited {
		return ErrInvalidStock
	}
	return nil
}

// Unlimited reports whether the entry is exempt from stock depletion
func (p *PrizeEntry) Unlimited() bool {
	return p.Stock == StockUnlimited
}

// PrizePool is an immutable, ordered collection of prize entries.
// A pool is snapshotted once at the start of a draw session so concurrent
// admin edits never affect an in-flight batch. Entry order matters: the last
// active entry absorbs residual probability mass (pools are allowed to sum
// to less than 1, with a low-value filler prize placed last by convention).
type PrizePool struct {
	entries []PrizeEntry
}

// NewPrizePool validates the entries and builds an immutable pool.
// Total probability may be below 1 (the residual maps to the last entry) but
// must not exceed 1 beyond ProbabilityTolerance. Pricing is taken from the
// first entry only; Cost values on the other entries are not consulted.
func NewPrizePool(entries []PrizeEntry) (*PrizePool, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyPool
	}

	seen := make(map[string]struct{}, len(entries))
	var totalProbability float64
	for i := range entries {
		if err := entries[i].Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[entries[i].ID]; dup {
			return nil, ErrInvalidPool.WithDetails("duplicate prize ID: %s", entries[i].ID)
		}
		seen[entries[i].ID] = struct{}{}
		totalProbability += entries[i].Probability
	}

	if totalProbability > 1.0+ProbabilityTolerance {
		return nil, ErrInvalidProbability.WithDetails("total probability exceeds 1.0")
	}

	snapshot := make([]PrizeEntry, len(entries))
	copy(snapshot, entries)
	return &PrizePool{entries: snapshot}, nil
}

// Entries returns a copy of all entries in configured order
func (p *PrizePool) Entries() []PrizeEntry {
	out := make([]PrizeEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Len returns the number of entries in the pool
func (p *PrizePool) Len() int {
	return len(p.entries)
}

// Entry looks up an entry by prize ID
func (p *PrizePool) Entry(prizeID string) (PrizeEntry, bool) {
	for i := range p.entries {
		if p.entries[i].ID == prizeID {
			return p.entries[i], true
		}
	}
	return PrizeEntry{}, false
}

// TotalProbability returns the configured probability mass of the pool
func (p *PrizePool) TotalProbability() float64 {
	var total float64
	for i := range p.entries {
		total += p.entries[i].Probability
	}
	return total
}

// PerDrawCost returns the cost of one draw against this pool.
// Pricing is uniform across a pool: the first entry's cost is authoritative.
func (p *PrizePool) PerDrawCost() int64 {
	return p.entries[0].Cost
}
