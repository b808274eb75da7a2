package luckydraw

// WeightedSelector implements probability-based prize selection over the
// active entries of a pool via a cumulative-probability scan.
//
// Probabilities are taken as configured, without normalization: when the
// active entries sum to less than 1 the residual mass falls to the last
// active entry. This mirrors the promotional pools this engine is built for,
// where a low-value filler prize sits last and absorbs the remainder.
type WeightedSelector struct{}

// NewWeightedSelector creates a new weighted selector
func NewWeightedSelector() *WeightedSelector {
	return &WeightedSelector{}
}

// CumulativeProbabilities calculates the running probability sums for the
// given entries, in order
func (s *WeightedSelector) CumulativeProbabilities(entries []PrizeEntry) ([]float64, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyPool
	}

	cumulative := make([]float64, len(entries))
	var running float64
	for i := range entries {
		if entries[i].Probability < 0 || entries[i].Probability > 1 {
			return nil, ErrInvalidProbability
		}
		running += entries[i].Probability
		cumulative[i] = running
	}

	return cumulative, nil
}

// Pick selects the first entry whose cumulative probability strictly exceeds r.
// If the scan exhausts without a match (total probability below 1, or r landing
// in the residual mass), the last entry is returned as the fallback.
//
// For a fixed (entries, r) pair the result is always the same entry; no
// epsilon handling is applied to the float64 comparisons.
func (s *WeightedSelector) Pick(entries []PrizeEntry, r float64) (PrizeEntry, error) {
	cumulative, err := s.CumulativeProbabilities(entries)
	if err != nil {
		return PrizeEntry{}, err
	}

	for i := range cumulative {
		if r < cumulative[i] {
			return entries[i], nil
		}
	}

	// Residual probability mass defaults to the last entry
	return entries[len(entries)-1], nil
}

// PickWith draws one random value from rng and selects with it
func (s *WeightedSelector) PickWith(entries []PrizeEntry, rng RandFunc) (PrizeEntry, error) {
	if rng == nil {
		return PrizeEntry{}, ErrInvalidParameters
	}
	return s.Pick(entries, rng())
}

// Fallback returns the entry that absorbs residual probability mass
func (s *WeightedSelector) Fallback(entries []PrizeEntry) (PrizeEntry, error) {
	if len(entries) == 0 {
		return PrizeEntry{}, ErrEmptyPool
	}
	return entries[len(entries)-1], nil
}
