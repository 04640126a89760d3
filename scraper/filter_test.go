package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"regent-tracker/config"
	"regent-tracker/models"
)

func TestFilterMatch(t *testing.T) {
	known := models.Listing{Tower: 9, Size: 450, Rooms: 2, Price: 6_000_000}
	unknownSize := models.Listing{Tower: 9, Rooms: 2, Price: 6_000_000}

	tests := []struct {
		name    string
		filter  Filter
		listing models.Listing
		want    bool
	}{
		{"empty filter accepts all", Filter{}, unknownSize, true},
		{"tower allowed", Filter{Towers: []int{8, 9}}, known, true},
		{"tower rejected", Filter{Towers: []int{8, 10}}, known, false},
		{"unknown tower rejected", Filter{Towers: []int{9}}, models.Listing{Price: 1}, false},
		{"unknown tower allowed when lenient", Filter{Towers: []int{9}, AllowUnknown: true}, models.Listing{Price: 1}, true},
		{"size under limit", Filter{MaxSize: 600}, known, true},
		{"size at limit rejected", Filter{MaxSize: 450}, known, false},
		{"unknown size rejected", Filter{MaxSize: 600}, unknownSize, false},
		{"unknown size allowed when lenient", Filter{MaxSize: 600, AllowUnknown: true}, unknownSize, true},
		{"rooms allowed", Filter{Rooms: []int{1, 2}}, known, true},
		{"rooms rejected", Filter{Rooms: []int{3}}, known, false},
		{"min price", Filter{MinPrice: 6_000_001}, known, false},
		{"max price", Filter{MaxPrice: 5_999_999}, known, false},
		{"price within range", Filter{MinPrice: 5_000_000, MaxPrice: 7_000_000}, known, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.listing))
		})
	}
}

func TestNewFilterCopiesConfig(t *testing.T) {
	cfg := config.FilterConfig{Towers: []int{9}, MaxSize: 600, Rooms: []int{1}}
	f := NewFilter(cfg)
	cfg.Towers[0] = 10

	assert.Equal(t, []int{9}, f.Towers)
	assert.True(t, f.Active())
	assert.False(t, Filter{}.Active())
}

func TestFilterDescribe(t *testing.T) {
	lines := Filter{Towers: []int{8, 9}, Rooms: []int{1, 2}, MaxSize: 600}.Describe()
	assert.Equal(t, []string{
		"座數 Towers: 8, 9",
		"房數 Rooms: 1, 2",
		"面積 Size: <600 sq.ft.",
	}, lines)

	assert.Equal(t, []string{"不設篩選 No filter, every listing is kept"}, Filter{AllowUnknown: true}.Describe())
}
