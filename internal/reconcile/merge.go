package reconcile

import "github.com/dokzlo13/bookd/internal/model"

// Merge builds the displayed list. Fetched entries are de-duplicated by id,
// keeping the first occurrence. The optimistic booking is prepended only when
// the server does not know its id yet; once it does, the server copy wins.
func Merge(optimistic *model.Booking, fetched []model.Booking) []model.Booking {
	out := make([]model.Booking, 0, len(fetched)+1)
	seen := make(map[string]struct{}, len(fetched))

	for _, b := range fetched {
		if b.ID != "" {
			if _, dup := seen[b.ID]; dup {
				continue
			}
			seen[b.ID] = struct{}{}
		}
		out = append(out, b)
	}

	if optimistic == nil {
		return out
	}
	if _, known := seen[optimistic.ID]; known && optimistic.ID != "" {
		return out
	}
	return append([]model.Booking{*optimistic}, out...)
}
