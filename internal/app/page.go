package app

const (
	DefaultPageSize = 10
	maxPageSize     = 100
	visiblePages    = 5
)

// Page is one slice of a sorted list plus the numbers a pager shows.
type Page[T any] struct {
	Items        []T   `json:"items"`
	TotalItems   int   `json:"totalItems"`
	TotalPages   int   `json:"totalPages"`
	CurrentPage  int   `json:"currentPage"`
	PageSize     int   `json:"pageSize"`
	StartItem    int   `json:"startItem"`
	EndItem      int   `json:"endItem"`
	VisiblePages []int `json:"visiblePages"`
}

// NewPage slices items for page (1-based). Out of range pages are clamped.
func NewPage[T any](items []T, page, pageSize int) Page[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	total := len(items)
	totalPages := (total + pageSize - 1) / pageSize
	lastPage := max(1, totalPages)
	page = min(max(page, 1), lastPage)

	start := (page - 1) * pageSize
	end := min(start+pageSize, total)

	p := Page[T]{
		Items:        append([]T{}, items[start:end]...),
		TotalItems:   total,
		TotalPages:   totalPages,
		CurrentPage:  page,
		PageSize:     pageSize,
		EndItem:      end,
		VisiblePages: pageWindow(page, lastPage, visiblePages),
	}
	if total > 0 {
		p.StartItem = start + 1
	}
	return p
}

// pageWindow centers up to size page numbers on current, shifting at the edges.
func pageWindow(current, totalPages, size int) []int {
	half := size / 2
	start := max(1, current-half)
	end := min(totalPages, start+size-1)
	if end-start+1 < size {
		start = max(1, end-size+1)
	}
	pages := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}
	return pages
}
