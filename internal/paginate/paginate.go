// Package paginate slices fully materialized, already-ordered result sets
// into pages. It never re-sorts; ordering is the caller's responsibility.
package paginate

// DefaultLimit is applied when the caller passes a non-positive limit.
const DefaultLimit = 20

// Normalize clamps a page request to valid values: pages start at 1 and a
// non-positive limit falls back to DefaultLimit. Callers that echo page and
// limit back to clients use this so the echoed values match the slicing.
func Normalize(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	return page, limit
}

// Slice returns the requested page of items plus the total count of the
// input. Both values derive from the same materialized slice, so total and
// data can never disagree. Page numbers start at 1; an offset past the end
// yields an empty page with the true total.
func Slice[T any](items []T, page, limit int) ([]T, int) {
	page, limit = Normalize(page, limit)

	total := len(items)
	offset := (page - 1) * limit
	if offset >= total {
		return nil, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return items[offset:end], total
}
