package models

import "time"

// SourceStatus is the outcome of one source in one run.
type SourceStatus string

const (
	SourceOK          SourceStatus = "ok"
	SourceUnavailable SourceStatus = "unavailable"
)

// NotifyOutcome is what the notifier did with the new listings.
type NotifyOutcome string

const (
	NotifySent    NotifyOutcome = "sent"
	NotifySkipped NotifyOutcome = "skipped"
	NotifyFailed  NotifyOutcome = "failed"
)

// SourceReport records what one source contributed to a run.
type SourceReport struct {
	Source     string
	Status     SourceStatus
	Reason     string
	Anchors    int
	Listings   int
	Skipped    int
	Filtered   int
	Duplicates int
	Elapsed    time.Duration
}

// RunReport summarises a whole cycle.
type RunReport struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	ColdStart    bool
	Sources      []SourceReport
	Extracted    int
	New          []Listing
	SeenAgain    int
	StoreBefore  int
	StoreAfter   int
	Notify       NotifyOutcome
	NotifyReason string
}

// UnavailableSources returns the ids of sources that contributed nothing this run.
func (r *RunReport) UnavailableSources() []string {
	var out []string
	for _, s := range r.Sources {
		if s.Status == SourceUnavailable {
			out = append(out, s.Source)
		}
	}
	return out
}

// Summary holds aggregate figures over a set of listings.
type Summary struct {
	TotalListings    int
	NewListings      int
	MinPrice         int64
	MaxPrice         int64
	AveragePrice     int64
	Cheapest         *Listing
	BestPricePerArea *Listing
	ListingsBySource map[string]int
	ListingsByTower  map[int]int
}
