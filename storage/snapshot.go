package storage

import (
	"sort"
	"time"

	"regent-tracker/config"
	"regent-tracker/models"
)

// BuildSnapshot derives the presentation export from the cache. Listings are
// ordered newest first; active and isNew are judged against runStart.
func BuildSnapshot(cache *models.Cache, sources []config.Source, runStart time.Time) *models.Snapshot {
	names := make(map[string]config.Source, len(sources))
	for _, s := range sources {
		names[s.ID] = s
	}

	listings := make([]models.SnapshotListing, 0, len(cache.Listings))
	newCount := 0
	for _, l := range cache.Listings {
		sl := models.SnapshotListing{
			Listing:      l,
			SourceName:   l.Source,
			SourceNameEn: l.Source,
			Active:       !l.LastSeenAt.Before(runStart),
			IsNew:        !l.FirstSeenAt.Before(runStart),
		}
		if s, ok := names[l.Source]; ok {
			sl.SourceName = s.NameZh
			sl.SourceNameEn = s.NameEn
		}
		if sl.IsNew {
			newCount++
		}
		listings = append(listings, sl)
	}
	SortNewestFirst(listings)

	return &models.Snapshot{
		LastUpdate: cache.LastRun,
		RunID:      cache.RunID,
		Count:      len(listings),
		NewCount:   newCount,
		Listings:   listings,
	}
}

// SortNewestFirst orders by firstSeenAt then lastSeenAt, both descending,
// with the fingerprint as the final tie-break.
func SortNewestFirst(listings []models.SnapshotListing) {
	sort.Slice(listings, func(i, j int) bool {
		a, b := listings[i], listings[j]
		if !a.FirstSeenAt.Equal(b.FirstSeenAt) {
			return a.FirstSeenAt.After(b.FirstSeenAt)
		}
		if !a.LastSeenAt.Equal(b.LastSeenAt) {
			return a.LastSeenAt.After(b.LastSeenAt)
		}
		return a.Fingerprint < b.Fingerprint
	})
}
