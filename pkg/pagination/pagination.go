package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultSize = 10
	MaxSize     = 100
)

// Params holds zero-based page parameters extracted from a request.
type Params struct {
	Page int
	Size int
}

// FromContext reads ?page and ?size, clamping to sane bounds.
func FromContext(c *gin.Context) Params {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	return Normalize(page, size)
}

func Normalize(page, size int) Params {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	return Params{Page: page, Size: size}
}

func (p Params) Offset() int {
	return p.Page * p.Size
}

// Page is one slice of a sorted result set plus the totals of the whole set.
type Page[T any] struct {
	Content       []T  `json:"content"`
	Page          int  `json:"page"`
	Size          int  `json:"size"`
	TotalElements int  `json:"total_elements"`
	TotalPages    int  `json:"total_pages"`
	First         bool `json:"first"`
	Last          bool `json:"last"`
}

func NewPage[T any](content []T, p Params, total int) Page[T] {
	if content == nil {
		content = []T{}
	}
	totalPages := 0
	if p.Size > 0 {
		totalPages = (total + p.Size - 1) / p.Size
	}
	return Page[T]{
		Content:       content,
		Page:          p.Page,
		Size:          p.Size,
		TotalElements: total,
		TotalPages:    totalPages,
		First:         p.Page == 0,
		Last:          p.Page >= totalPages-1,
	}
}

// FilterPage narrows an already fetched page and re-derives its totals from
// what survived, so callers never see the upstream count for a filtered view.
// The page index is kept; the filtered view is always the last page.
func FilterPage[T any](page Page[T], keep func(T) bool) Page[T] {
	kept := make([]T, 0, len(page.Content))
	for _, item := range page.Content {
		if keep(item) {
			kept = append(kept, item)
		}
	}
	size := page.Size
	if size <= 0 {
		size = DefaultSize
	}
	filtered := NewPage(kept, Params{Page: page.Page, Size: size}, len(kept))
	filtered.Last = true
	return filtered
}
