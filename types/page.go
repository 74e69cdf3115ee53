package types

// PageRequest selects a window of a paginated list
type PageRequest struct {
	Skip  int `json:"skip"`
	First int `json:"first"`
}

// Page is one window of a paginated list.
// IsExact is false when TotalCount is only a lower bound, which happens on
// the subgraph once its fetch ceiling is reached.
type Page[T any] struct {
	Items      []T  `json:"items"`
	TotalCount int  `json:"totalCount"`
	IsExact    bool `json:"isExact"`
}

// SlicePage cuts a window out of a fully materialized list
func SlicePage[T any](all []T, req PageRequest, exact bool) Page[T] {
	start := max(req.Skip, 0)
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if req.First > 0 && start+req.First < end {
		end = start + req.First
	}
	items := make([]T, end-start)
	copy(items, all[start:end])
	return Page[T]{Items: items, TotalCount: len(all), IsExact: exact}
}
