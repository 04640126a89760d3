package services

import (
	"time"

	"regent-tracker/models"
)

// ReconcileResult is the outcome of merging one run's listings into the store.
type ReconcileResult struct {
	// Store is the updated mapping; it always contains every key of the input.
	Store map[string]models.Listing
	// New holds listings whose fingerprint was not stored before, in input order.
	New []models.Listing
	// SeenAgain counts fresh listings that matched a stored fingerprint.
	SeenAgain int
}

// Reconcile merges fresh listings into prev and classifies each as new or
// seen again. prev is not modified.
//
// A new fingerprint gets firstSeenAt = lastSeenAt = now. A known one keeps its
// stored firstSeenAt, takes every other field from the fresh observation and
// moves lastSeenAt to now, never backwards. When a fingerprint repeats within
// fresh only its first occurrence counts.
func Reconcile(prev map[string]models.Listing, fresh []models.Listing, now time.Time) *ReconcileResult {
	store := make(map[string]models.Listing, len(prev)+len(fresh))
	for k, v := range prev {
		store[k] = v
	}

	res := &ReconcileResult{Store: store}
	handled := make(map[string]struct{}, len(fresh))

	for _, l := range fresh {
		if l.Fingerprint == "" {
			l.Fingerprint = models.Fingerprint(l)
		}
		if _, dup := handled[l.Fingerprint]; dup {
			continue
		}
		handled[l.Fingerprint] = struct{}{}
		l.PricePerArea = models.PricePerArea(l.Price, l.Size)

		existing, seen := prev[l.Fingerprint]
		if !seen {
			l.FirstSeenAt, l.LastSeenAt = now, now
			store[l.Fingerprint] = l
			res.New = append(res.New, l)
			continue
		}

		l.LastSeenAt = now
		if existing.LastSeenAt.After(now) {
			l.LastSeenAt = existing.LastSeenAt
		}
		l.FirstSeenAt = existing.FirstSeenAt
		if l.FirstSeenAt.IsZero() || l.FirstSeenAt.After(l.LastSeenAt) {
			l.FirstSeenAt = l.LastSeenAt
		}
		store[l.Fingerprint] = l
		res.SeenAgain++
	}
	return res
}
