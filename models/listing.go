package models

import (
	"strings"
	"time"
	"unicode"
)

// Unknown marks a floor or unit that could not be recovered from the page.
const Unknown = "unknown"

// TowerUnknown marks a listing whose tower number was not recovered.
const TowerUnknown = 0

// Floor levels used when a page only gives a zone instead of a floor number.
const (
	FloorHigh = "high"
	FloorMid  = "mid"
	FloorLow  = "low"
)

// Listing is one normalised observation of a property listing.
// Zero values of Size and Rooms mean "not recovered"; Floor and Unit use Unknown.
type Listing struct {
	Fingerprint    string    `json:"id"`
	Tower          int       `json:"tower"`
	Floor          string    `json:"floor"`
	Unit           string    `json:"unit"`
	Size           int       `json:"size"`
	Rooms          int       `json:"rooms"`
	Price          int64     `json:"price"`
	PricePerArea   int64     `json:"pricePerFt"`
	Source         string    `json:"source"`
	URL            string    `json:"url"`
	RawDescription string    `json:"rawDescription"`
	FirstSeenAt    time.Time `json:"firstSeenAt"`
	LastSeenAt     time.Time `json:"lastSeenAt"`
}

// Normalize fills sentinels for missing fields and recomputes the derived
// price per square foot and the fingerprint.
func (l *Listing) Normalize() {
	l.Floor = normaliseFloor(l.Floor)
	l.Unit = normaliseUnit(l.Unit)
	if l.Size < 0 {
		l.Size = 0
	}
	if l.Rooms < 0 {
		l.Rooms = 0
	}
	if l.Tower < 0 {
		l.Tower = TowerUnknown
	}
	l.RawDescription = CollapseSpace(l.RawDescription)
	l.PricePerArea = PricePerArea(l.Price, l.Size)
	l.Fingerprint = Fingerprint(*l)
}

// Valid reports whether the listing carries the one mandatory field.
func (l Listing) Valid() bool {
	return l.Price > 0
}

// FloorKnown reports whether a floor number or zone was recovered.
func (l Listing) FloorKnown() bool { return l.Floor != Unknown && l.Floor != "" }

// UnitKnown reports whether a unit letter was recovered.
func (l Listing) UnitKnown() bool { return l.Unit != Unknown && l.Unit != "" }

// PricePerArea returns price / size using integer division, or 0 when size is unknown.
func PricePerArea(price int64, size int) int64 {
	if size <= 0 {
		return 0
	}
	return price / int64(size)
}

// CollapseSpace trims s and collapses internal whitespace runs to one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func normaliseFloor(f string) string {
	f = strings.ToLower(strings.TrimSpace(f))
	switch f {
	case "":
		return Unknown
	case "middle":
		return FloorMid
	}
	return f
}

func normaliseUnit(u string) string {
	u = strings.TrimSpace(u)
	if u == "" || strings.EqualFold(u, Unknown) {
		return Unknown
	}
	return strings.ToUpper(u)
}

// Cache is the authoritative persisted state: every listing ever seen, keyed by fingerprint.
type Cache struct {
	Version  int                `json:"version"`
	RunID    string             `json:"runId,omitempty"`
	LastRun  time.Time          `json:"lastRun"`
	Listings map[string]Listing `json:"listings"`
}

// CacheVersion is the layout version written by this build.
const CacheVersion = 1

// NewCache returns an empty cache, the state of a cold start.
func NewCache() *Cache {
	return &Cache{Version: CacheVersion, Listings: make(map[string]Listing)}
}

// SnapshotListing is a listing as exposed to the dashboard.
type SnapshotListing struct {
	Listing
	SourceName   string `json:"sourceName"`
	SourceNameEn string `json:"sourceNameEn"`
	Active       bool   `json:"active"`
	IsNew        bool   `json:"isNew"`
}

// Snapshot is the presentation export, derived from the Cache.
type Snapshot struct {
	LastUpdate time.Time         `json:"lastUpdate"`
	RunID      string            `json:"runId,omitempty"`
	Count      int               `json:"count"`
	NewCount   int               `json:"newCount"`
	Listings   []SnapshotListing `json:"listings"`
}
