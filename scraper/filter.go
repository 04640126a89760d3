package scraper

import (
	"fmt"
	"strings"

	"regent-tracker/config"
	"regent-tracker/models"
)

// Filter is a set of optional predicates over a Listing. An empty list or a
// zero bound leaves that predicate inactive. An active predicate on a field
// that was not recovered fails unless AllowUnknown is set.
type Filter struct {
	Towers       []int
	MaxSize      int
	Rooms        []int
	MinPrice     int64
	MaxPrice     int64
	AllowUnknown bool
}

// NewFilter builds a Filter from the configured target criteria.
func NewFilter(c config.FilterConfig) Filter {
	return Filter{
		Towers:       append([]int(nil), c.Towers...),
		MaxSize:      c.MaxSize,
		Rooms:        append([]int(nil), c.Rooms...),
		MinPrice:     c.MinPrice,
		MaxPrice:     c.MaxPrice,
		AllowUnknown: c.AllowUnknown,
	}
}

// Match reports whether every active predicate holds on l.
// Size is compared strictly: MaxSize 600 means under 600 sq ft.
func (f Filter) Match(l models.Listing) bool {
	if len(f.Towers) > 0 {
		if l.Tower == models.TowerUnknown {
			if !f.AllowUnknown {
				return false
			}
		} else if !containsInt(f.Towers, l.Tower) {
			return false
		}
	}
	if f.MaxSize > 0 {
		if l.Size == 0 {
			if !f.AllowUnknown {
				return false
			}
		} else if l.Size >= f.MaxSize {
			return false
		}
	}
	if len(f.Rooms) > 0 {
		if l.Rooms == 0 {
			if !f.AllowUnknown {
				return false
			}
		} else if !containsInt(f.Rooms, l.Rooms) {
			return false
		}
	}
	if f.MinPrice > 0 && l.Price < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && l.Price > f.MaxPrice {
		return false
	}
	return true
}

// Active reports whether any predicate is set.
func (f Filter) Active() bool {
	return len(f.Towers) > 0 || f.MaxSize > 0 || len(f.Rooms) > 0 || f.MinPrice > 0 || f.MaxPrice > 0
}

// Describe renders the active predicates for humans, one per line.
func (f Filter) Describe() []string {
	if !f.Active() {
		return []string{"不設篩選 No filter, every listing is kept"}
	}
	var lines []string
	if len(f.Towers) > 0 {
		lines = append(lines, "座數 Towers: "+joinInts(f.Towers))
	}
	if len(f.Rooms) > 0 {
		lines = append(lines, "房數 Rooms: "+joinInts(f.Rooms))
	}
	if f.MaxSize > 0 {
		lines = append(lines, fmt.Sprintf("面積 Size: <%d sq.ft.", f.MaxSize))
	}
	if f.MinPrice > 0 {
		lines = append(lines, fmt.Sprintf("最低價 Min price: $%d", f.MinPrice))
	}
	if f.MaxPrice > 0 {
		lines = append(lines, fmt.Sprintf("最高價 Max price: $%d", f.MaxPrice))
	}
	if f.AllowUnknown {
		lines = append(lines, "未知資料照收 Unknown fields accepted")
	}
	return lines
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}
