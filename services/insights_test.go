package services

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regent-tracker/models"
	"regent-tracker/utils"
)

func TestInsightGenerate(t *testing.T) {
	listings := []models.Listing{
		listing(9, "23", "C", 6_000_000, "centanet"),
		listing(9, "12", "A", 5_400_000, "midland"),
		listing(15, "3", "B", 7_200_000, "centanet"),
	}
	listings[2].Size = 600
	listings[2].Normalize()

	svc := NewInsightService(utils.NewNopLogger(), &bytes.Buffer{}, false)
	sum := svc.Generate(listings, 1)

	assert.Equal(t, 3, sum.TotalListings)
	assert.Equal(t, 1, sum.NewListings)
	assert.Equal(t, int64(5_400_000), sum.MinPrice)
	assert.Equal(t, int64(7_200_000), sum.MaxPrice)
	assert.Equal(t, int64(6_200_000), sum.AveragePrice)
	require.NotNil(t, sum.Cheapest)
	assert.Equal(t, "A", sum.Cheapest.Unit)
	require.NotNil(t, sum.BestPricePerArea)
	assert.Equal(t, int64(12_000), sum.BestPricePerArea.PricePerArea)
	assert.Equal(t, map[string]int{"centanet": 2, "midland": 1}, sum.ListingsBySource)
	assert.Equal(t, map[int]int{9: 2, 15: 1}, sum.ListingsByTower)
}

func TestInsightGenerateEmpty(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger(), &bytes.Buffer{}, false)
	sum := svc.Generate(nil, 0)

	assert.Equal(t, 0, sum.TotalListings)
	assert.Nil(t, sum.Cheapest)
	assert.NotNil(t, sum.ListingsByTower)
}

func TestInsightPrint(t *testing.T) {
	var buf bytes.Buffer
	svc := NewInsightService(utils.NewNopLogger(), &buf, false)

	l := listing(9, "23", "C", 6_000_000, "centanet")
	report := &models.RunReport{
		RunID:      "run-1",
		StartedAt:  t0,
		FinishedAt: t0.Add(3 * time.Second),
		ColdStart:  true,
		Sources: []models.SourceReport{
			{Source: "centanet", Status: models.SourceOK, Anchors: 3, Listings: 1},
			{Source: "midland", Status: models.SourceUnavailable, Reason: "blocked"},
		},
		Extracted:    1,
		New:          []models.Listing{l},
		StoreAfter:   1,
		Notify:       models.NotifySkipped,
		NotifyReason: "email credentials not set",
	}
	svc.Print(report, svc.Generate([]models.Listing{l}, 1))

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "cold start")
	assert.Contains(t, out, "unavailable (blocked)")
	assert.Contains(t, out, "skipped (email credentials not set)")
	assert.Contains(t, out, "$6,000,000")
	assert.Contains(t, out, "Tower 9")
	assert.NotContains(t, out, "\033[", "no colour codes when disabled")
}

func TestFormatHKD(t *testing.T) {
	assert.Equal(t, "$0", FormatHKD(0))
	assert.Equal(t, "$999", FormatHKD(999))
	assert.Equal(t, "$6,000,000", FormatHKD(6_000_000))
	assert.Equal(t, "$13,333", FormatHKD(13_333))
	assert.Equal(t, "-$1,000", FormatHKD(-1000))
}

func TestLocationRendering(t *testing.T) {
	l := models.Listing{Tower: 9, Floor: "23", Unit: "C"}
	assert.Equal(t, "第9座 23樓 C室", LocationZh(l))
	assert.Equal(t, "Tower 9, 23/F, Flat C", LocationEn(l))

	zone := models.Listing{Tower: 10, Floor: models.FloorHigh, Unit: models.Unknown}
	assert.Equal(t, "第10座 高層", LocationZh(zone))
	assert.Equal(t, "Tower 10, High Floor", LocationEn(zone))

	bare := models.Listing{Floor: models.Unknown, Unit: models.Unknown}
	assert.Equal(t, "第?座", LocationZh(bare))
	assert.Equal(t, "Tower ?", LocationEn(bare))
}
