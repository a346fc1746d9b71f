package tokens

import (
	"colloquy/pkg/models"
)

// Cache-discount economics: creating a cache entry is billed above the
// base input rate, reading one well below it.
const (
	cacheCreationMultiplier = 1.25
	cacheReadMultiplier     = 0.1
)

// CacheImpact summarizes what caching cost versus what it saved, in
// token-equivalent units.
type CacheImpact struct {
	PotentialCost     float64 `json:"potential_cost"`
	ActualCost        float64 `json:"actual_cost"`
	SavingsTotal      float64 `json:"savings_total"`
	SavingsPercentage float64 `json:"savings_percentage"`
}

// Analysis is the aggregate view over one ledger partition.
type Analysis struct {
	Type    models.InteractionType `json:"type"`
	Records int                    `json:"records"`
	Total   models.TokenUsage      `json:"total"`
	// Differential is the token-equivalent cost that caching avoided:
	// cost without caching minus actual cost.
	Differential float64                           `json:"differential"`
	Cache        CacheImpact                       `json:"cache"`
	ByRole       map[models.Role]models.TokenUsage `json:"by_role"`
}

// AnalyzeUsage produces totals, differential usage, cache impact and a
// per-role breakdown in a single pass over the partition.
func (l *Ledger) AnalyzeUsage(typ models.InteractionType) (Analysis, error) {
	recs, err := l.ListRecords(typ)
	if err != nil {
		return Analysis{}, err
	}
	a := Analysis{Type: typ, ByRole: map[models.Role]models.TokenUsage{}}
	for _, rec := range recs {
		a.Records++
		a.Total.Add(rec.Usage)
		ru := a.ByRole[rec.Role]
		ru.Add(rec.Usage)
		a.ByRole[rec.Role] = ru
	}
	u := a.Total
	potential := float64(u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens)
	actual := float64(u.InputTokens) +
		cacheCreationMultiplier*float64(u.CacheCreationInputTokens) +
		cacheReadMultiplier*float64(u.CacheReadInputTokens)
	a.Cache.PotentialCost = potential
	a.Cache.ActualCost = actual
	a.Cache.SavingsTotal = potential - actual
	if potential > 0 {
		a.Cache.SavingsPercentage = (potential - actual) / potential * 100
	}
	a.Differential = a.Cache.SavingsTotal
	return a, nil
}

// Combine merges two analyses field-wise. Savings percentage is averaged
// rather than summed; everything else accumulates.
func Combine(a, b Analysis) Analysis {
	out := Analysis{Type: a.Type, ByRole: map[models.Role]models.TokenUsage{}}
	out.Records = a.Records + b.Records
	out.Total = a.Total
	out.Total.Add(b.Total)
	out.Differential = a.Differential + b.Differential
	out.Cache.PotentialCost = a.Cache.PotentialCost + b.Cache.PotentialCost
	out.Cache.ActualCost = a.Cache.ActualCost + b.Cache.ActualCost
	out.Cache.SavingsTotal = a.Cache.SavingsTotal + b.Cache.SavingsTotal
	out.Cache.SavingsPercentage = (a.Cache.SavingsPercentage + b.Cache.SavingsPercentage) / 2
	for r, u := range a.ByRole {
		out.ByRole[r] = u
	}
	for r, u := range b.ByRole {
		cu := out.ByRole[r]
		cu.Add(u)
		out.ByRole[r] = cu
	}
	return out
}
