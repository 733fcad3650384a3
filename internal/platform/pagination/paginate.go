package pagination

// ItemsPerPage is the page size used by category listings.
const ItemsPerPage = 20

// Page is a single window over a list along with the total page count.
type Page[T any] struct {
	Items      []T
	TotalPages int
}

// Paginate returns the 1-indexed page of list. Out-of-range pages yield an
// empty slice rather than an error; callers clamp beforehand when needed.
func Paginate[T any](list []T, pageSize, page int) Page[T] {
	if pageSize <= 0 {
		return Page[T]{Items: []T{}}
	}
	totalPages := len(list) / pageSize
	if len(list)%pageSize != 0 {
		totalPages++
	}

	// Range check before multiplying so huge pages cannot overflow start.
	if page < 1 || page > totalPages {
		return Page[T]{Items: []T{}, TotalPages: totalPages}
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, len(list))

	items := make([]T, end-start)
	copy(items, list[start:end])
	return Page[T]{Items: items, TotalPages: totalPages}
}

// Clamp limits page to [1, totalPages]. An empty list still reports page 1.
func Clamp(page, totalPages int) int {
	if totalPages < 1 {
		return 1
	}
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}
