package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"regent-tracker/models"
	"regent-tracker/utils"
)

// InsightService aggregates listings into a run summary and prints it.
type InsightService struct {
	logger *utils.Logger
	out    io.Writer
	color  bool
}

func NewInsightService(logger *utils.Logger, out io.Writer, color bool) *InsightService {
	return &InsightService{logger: logger, out: out, color: color}
}

// Generate computes aggregate figures over listings. newCount is carried
// through unchanged.
func (s *InsightService) Generate(listings []models.Listing, newCount int) *models.Summary {
	sum := &models.Summary{
		NewListings:      newCount,
		ListingsBySource: make(map[string]int),
		ListingsByTower:  make(map[int]int),
	}
	if len(listings) == 0 {
		return sum
	}
	sum.TotalListings = len(listings)

	var total int64
	for i := range listings {
		l := &listings[i]
		sum.ListingsBySource[l.Source]++
		if l.Tower != models.TowerUnknown {
			sum.ListingsByTower[l.Tower]++
		}

		total += l.Price
		if sum.Cheapest == nil || l.Price < sum.Cheapest.Price {
			sum.Cheapest = l
			sum.MinPrice = l.Price
		}
		if l.Price > sum.MaxPrice {
			sum.MaxPrice = l.Price
		}
		if l.PricePerArea > 0 && (sum.BestPricePerArea == nil || l.PricePerArea < sum.BestPricePerArea.PricePerArea) {
			sum.BestPricePerArea = l
		}
	}
	sum.AveragePrice = total / int64(len(listings))

	s.logger.Debug("summary generated", "component", "insights", "listings", sum.TotalListings)
	return sum
}

// Print writes the end-of-run report.
func (s *InsightService) Print(r *models.RunReport, sum *models.Summary) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)
	p := func(format string, args ...any) { fmt.Fprintf(s.out, format, args...) }

	p("\n%s\n", s.paint("1;35", sep))
	p("%s\n", s.paint("1;35", "  天鑽放盤追蹤器 The Regent Listing Tracker"))
	p("%s\n\n", s.paint("1;35", sep))

	p("%s\n", s.paint("1;33", "  Run"))
	p("  %s\n", thin)
	p("  Run ID           : %s\n", r.RunID)
	p("  Started          : %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	p("  Duration         : %s\n", r.FinishedAt.Sub(r.StartedAt).Round(100*time.Millisecond))
	if r.ColdStart {
		p("  History          : %s\n", s.paint("1;31", "none (cold start, every listing counts as new)"))
	}
	p("\n")

	p("%s\n", s.paint("1;33", "  Sources"))
	p("  %s\n", thin)
	for _, src := range r.Sources {
		if src.Status == models.SourceUnavailable {
			p("  %-12s %s\n", src.Source, s.paint("1;31", "unavailable ("+src.Reason+")"))
			continue
		}
		p("  %-12s %d listings  (anchors %d, skipped %d, filtered %d, dup %d)\n",
			src.Source, src.Listings, src.Anchors, src.Skipped, src.Filtered, src.Duplicates)
	}
	p("\n")

	p("%s\n", s.paint("1;33", "  Results"))
	p("  %s\n", thin)
	p("  Extracted this run : %s\n", s.paint("1", fmt.Sprint(r.Extracted)))
	p("  New listings       : %s\n", s.paint("1;32", fmt.Sprint(len(r.New))))
	p("  Seen again         : %d\n", r.SeenAgain)
	p("  Store size         : %d → %d\n", r.StoreBefore, r.StoreAfter)
	p("  Notification       : %s", r.Notify)
	if r.NotifyReason != "" {
		p(" (%s)", r.NotifyReason)
	}
	p("\n\n")

	if sum.TotalListings > 0 {
		p("%s\n", s.paint("1;33", "  Price Statistics (all tracked listings)"))
		p("  %s\n", thin)
		p("  Average price : %s\n", s.paint("1;32", FormatHKD(sum.AveragePrice)))
		p("  Minimum price : %s\n", s.paint("1;32", FormatHKD(sum.MinPrice)))
		p("  Maximum price : %s\n", s.paint("1;32", FormatHKD(sum.MaxPrice)))
		if b := sum.BestPricePerArea; b != nil {
			p("  Best $/ft     : %s  %s\n", s.paint("1;32", FormatHKD(b.PricePerArea)), LocationEn(*b))
		}
		p("\n")

		p("%s\n", s.paint("1;33", "  Listings by Tower"))
		p("  %s\n", thin)
		towers := make([]int, 0, len(sum.ListingsByTower))
		for t := range sum.ListingsByTower {
			towers = append(towers, t)
		}
		sort.Ints(towers)
		for _, t := range towers {
			n := sum.ListingsByTower[t]
			p("  Tower %-3d %s (%d)\n", t, strings.Repeat("█", min(n, 40)), n)
		}
	}

	p("\n%s\n\n", s.paint("1;35", sep))
}

func (s *InsightService) paint(code, text string) string {
	if !s.color {
		return text
	}
	return "\033[" + code + "m" + text + "\033[0m"
}

// FormatHKD renders an amount as $1,234,567.
func FormatHKD(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := fmt.Sprint(v)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

// LocationZh renders tower, floor and unit in Chinese, e.g. 第9座 23樓 C室.
func LocationZh(l models.Listing) string {
	parts := []string{"第?座"}
	if l.Tower != models.TowerUnknown {
		parts[0] = fmt.Sprintf("第%d座", l.Tower)
	}
	switch l.Floor {
	case models.FloorHigh:
		parts = append(parts, "高層")
	case models.FloorMid:
		parts = append(parts, "中層")
	case models.FloorLow:
		parts = append(parts, "低層")
	case models.Unknown, "":
	default:
		parts = append(parts, l.Floor+"樓")
	}
	if l.UnitKnown() {
		parts = append(parts, l.Unit+"室")
	}
	return strings.Join(parts, " ")
}

// LocationEn renders tower, floor and unit in English, e.g. Tower 9, 23/F, Flat C.
func LocationEn(l models.Listing) string {
	parts := []string{"Tower ?"}
	if l.Tower != models.TowerUnknown {
		parts[0] = fmt.Sprintf("Tower %d", l.Tower)
	}
	switch l.Floor {
	case models.FloorHigh, models.FloorMid, models.FloorLow:
		parts = append(parts, strings.ToUpper(l.Floor[:1])+l.Floor[1:]+" Floor")
	case models.Unknown, "":
	default:
		parts = append(parts, l.Floor+"/F")
	}
	if l.UnitKnown() {
		parts = append(parts, "Flat "+l.Unit)
	}
	return strings.Join(parts, ", ")
}
