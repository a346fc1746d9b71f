package persist

import (
	"encoding/json"
	"sort"

	"colloquy/pkg/models"
	"colloquy/pkg/store"
)

// ListQuery filters the denormalized project index. Since/Until bound
// UpdatedTS (unix nanoseconds, zero means unbounded); Provider and
// Model filter on the summary's denormalized model configuration.
type ListQuery struct {
	Page     int
	Limit    int
	Since    int64
	Until    int64
	Provider string
	Model    string
	// IncludeDeleted includes tombstoned entries awaiting removal.
	IncludeDeleted bool
}

// List pages over a project's index entries without opening any
// interaction bodies. It returns the page plus the total match count,
// newest first.
func (e *Engine) List(project string, q ListQuery) ([]models.InteractionSummary, int, error) {
	raw, err := store.ListSummaries(project)
	if err != nil {
		return nil, 0, &Error{Op: OpRead, Interaction: project, Err: err}
	}
	var all []models.InteractionSummary
	for _, s := range raw {
		var sum models.InteractionSummary
		if err := json.Unmarshal([]byte(s), &sum); err != nil {
			continue
		}
		if sum.Deleted && !q.IncludeDeleted {
			continue
		}
		if q.Since != 0 && sum.UpdatedTS < q.Since {
			continue
		}
		if q.Until != 0 && sum.UpdatedTS > q.Until {
			continue
		}
		if q.Provider != "" && sum.Provider != q.Provider {
			continue
		}
		if q.Model != "" && sum.Model != q.Model {
			continue
		}
		all = append(all, sum)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedTS > all[j].UpdatedTS })

	total := len(all)
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= total {
		return []models.InteractionSummary{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}
