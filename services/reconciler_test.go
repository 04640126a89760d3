package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regent-tracker/models"
)

var (
	t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(6 * time.Hour)
	t2 = t1.Add(6 * time.Hour)
)

func listing(tower int, floor, unit string, price int64, source string) models.Listing {
	l := models.Listing{
		Tower:          tower,
		Floor:          floor,
		Unit:           unit,
		Size:           450,
		Rooms:          2,
		Price:          price,
		Source:         source,
		URL:            "https://example.com/" + source,
		RawDescription: fmt.Sprintf("第%d座 %s樓 %s室 $%d", tower, floor, unit, price),
	}
	l.Normalize()
	return l
}

func keys(m map[string]models.Listing) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func TestReconcileColdStart(t *testing.T) {
	fresh := []models.Listing{
		listing(9, "23", "C", 6_000_000, "centanet"),
		listing(10, "12", "A", 5_500_000, "centanet"),
		listing(11, "8", "B", 5_800_000, "midland"),
	}

	res := Reconcile(map[string]models.Listing{}, fresh, t0)

	assert.Len(t, res.New, 3)
	assert.Equal(t, 0, res.SeenAgain)
	require.Len(t, res.Store, 3)
	for _, l := range res.Store {
		assert.Equal(t, t0, l.FirstSeenAt)
		assert.Equal(t, t0, l.LastSeenAt)
	}
	for i, l := range res.New {
		assert.Equal(t, fresh[i].Fingerprint, l.Fingerprint, "new listings keep input order")
	}
}

func TestReconcileNilStore(t *testing.T) {
	res := Reconcile(nil, []models.Listing{listing(9, "23", "C", 6_000_000, "centanet")}, t0)
	assert.Len(t, res.New, 1)
	assert.Len(t, res.Store, 1)
}

func TestReconcileIsIdempotent(t *testing.T) {
	fresh := []models.Listing{
		listing(9, "23", "C", 6_000_000, "centanet"),
		listing(10, "12", "A", 5_500_000, "midland"),
	}

	first := Reconcile(nil, fresh, t0)
	second := Reconcile(first.Store, fresh, t1)

	assert.Empty(t, second.New)
	assert.Equal(t, 2, second.SeenAgain)
	assert.Equal(t, keys(first.Store), keys(second.Store))
	for fp, l := range second.Store {
		assert.Equal(t, first.Store[fp].FirstSeenAt, l.FirstSeenAt)
		assert.Equal(t, t1, l.LastSeenAt)
	}
}

func TestReconcileIsMonotonic(t *testing.T) {
	store := map[string]models.Listing{}
	batches := [][]models.Listing{
		{listing(9, "23", "C", 6_000_000, "centanet"), listing(10, "12", "A", 5_500_000, "centanet")},
		{},
		{listing(11, "8", "B", 5_800_000, "midland")},
		{listing(9, "23", "C", 6_000_000, "centanet")},
	}

	now := t0
	for _, batch := range batches {
		before := keys(store)
		res := Reconcile(store, batch, now)
		after := keys(res.Store)
		for k := range before {
			assert.Contains(t, after, k)
		}
		store = res.Store
		now = now.Add(time.Hour)
	}
	assert.Len(t, store, 3)
}

func TestReconcileReobservation(t *testing.T) {
	l := listing(9, "23", "C", 6_000_000, "centanet")
	first := Reconcile(nil, []models.Listing{l}, t0)

	again := l
	again.RawDescription = "Tower 9, 23/F, Flat C, sea view"
	again.Rooms = 1
	again.Normalize()
	require.Equal(t, l.Fingerprint, again.Fingerprint)

	res := Reconcile(first.Store, []models.Listing{again}, t1)

	assert.Empty(t, res.New)
	got := res.Store[l.Fingerprint]
	assert.Equal(t, t0, got.FirstSeenAt)
	assert.Equal(t, t1, got.LastSeenAt)
	assert.Equal(t, "Tower 9, 23/F, Flat C, sea view", got.RawDescription)
	assert.Equal(t, 1, got.Rooms)
}

func TestReconcilePriceChangeIsNewListing(t *testing.T) {
	before := listing(9, "23", "C", 6_000_000, "centanet")
	after := listing(9, "23", "C", 6_200_000, "centanet")

	first := Reconcile(nil, []models.Listing{before}, t0)
	second := Reconcile(first.Store, []models.Listing{after}, t1)

	require.Len(t, second.New, 1)
	assert.Equal(t, int64(6_200_000), second.New[0].Price)
	assert.Len(t, second.Store, 2)
	assert.Equal(t, t0, second.Store[before.Fingerprint].LastSeenAt)
}

func TestReconcileFirstSeenNeverChanges(t *testing.T) {
	l := listing(9, "23", "C", 6_000_000, "centanet")
	store := Reconcile(nil, []models.Listing{l}, t0).Store

	for _, now := range []time.Time{t1, t2} {
		prevLast := store[l.Fingerprint].LastSeenAt
		store = Reconcile(store, []models.Listing{l}, now).Store
		assert.Equal(t, t0, store[l.Fingerprint].FirstSeenAt)
		assert.False(t, store[l.Fingerprint].LastSeenAt.Before(prevLast))
	}
}

func TestReconcileClockGoingBackwards(t *testing.T) {
	l := listing(9, "23", "C", 6_000_000, "centanet")
	store := Reconcile(nil, []models.Listing{l}, t1).Store

	res := Reconcile(store, []models.Listing{l}, t0)

	got := res.Store[l.Fingerprint]
	assert.Equal(t, t1, got.LastSeenAt, "lastSeenAt never moves backwards")
	assert.False(t, got.FirstSeenAt.After(got.LastSeenAt))
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	l := listing(9, "23", "C", 6_000_000, "centanet")
	prev := Reconcile(nil, []models.Listing{l}, t0).Store
	snapshot := prev[l.Fingerprint]

	_ = Reconcile(prev, []models.Listing{l, listing(10, "1", "A", 5_000_000, "hkp")}, t1)

	assert.Len(t, prev, 1)
	assert.Equal(t, snapshot, prev[l.Fingerprint])
}

func TestReconcileIsOrderIndependentAcrossSources(t *testing.T) {
	prev := Reconcile(nil, []models.Listing{listing(9, "23", "C", 6_000_000, "centanet")}, t0).Store
	a := []models.Listing{listing(9, "23", "C", 6_000_000, "centanet"), listing(12, "3", "D", 5_100_000, "centanet")}
	b := []models.Listing{listing(15, "30", "E", 7_000_000, "midland")}

	ab := Reconcile(prev, append(append([]models.Listing{}, a...), b...), t1)
	ba := Reconcile(prev, append(append([]models.Listing{}, b...), a...), t1)

	assert.Equal(t, ab.Store, ba.Store)
	assert.Equal(t, len(ab.New), len(ba.New))
	assert.Equal(t, ab.SeenAgain, ba.SeenAgain)
}

func TestReconcileSourceOutageLeavesOtherSourcesIntact(t *testing.T) {
	centanet := listing(9, "23", "C", 6_000_000, "centanet")
	midland := listing(10, "12", "A", 5_500_000, "midland")
	store := Reconcile(nil, []models.Listing{centanet, midland}, t0).Store

	// midland unavailable this run: only centanet listings arrive
	res := Reconcile(store, []models.Listing{centanet, listing(11, "5", "B", 5_200_000, "centanet")}, t1)

	assert.Len(t, res.New, 1)
	assert.Equal(t, t0, res.Store[midland.Fingerprint].LastSeenAt)
	assert.Len(t, res.Store, 3)
}

func TestReconcileFillsMissingFingerprint(t *testing.T) {
	l := models.Listing{Tower: 9, Floor: "23", Unit: "C", Price: 6_000_000, Source: "centanet", Size: 400}
	res := Reconcile(nil, []models.Listing{l}, t0)

	require.Len(t, res.New, 1)
	assert.Equal(t, models.Fingerprint(l), res.New[0].Fingerprint)
	assert.Equal(t, int64(15_000), res.New[0].PricePerArea)
}

func TestReconcileRepeatedFingerprintCountsOnce(t *testing.T) {
	l := listing(9, "23", "C", 6_000_000, "centanet")
	res := Reconcile(nil, []models.Listing{l, l}, t0)

	assert.Len(t, res.New, 1)
	assert.Len(t, res.Store, 1)
}
