package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	fingerprintVersion = "v1"
	// fingerprintHexLen is the number of hex characters kept from the digest.
	fingerprintHexLen = 16
	// descriptionKeyRunes bounds the description prefix used by the weak key.
	descriptionKeyRunes = 48
)

// Fingerprint derives the stable store key for a listing.
//
// When both floor and unit are known the key is built from tower, floor,
// unit, price and source. Otherwise it falls back to tower, price, source and
// a bounded prefix of the raw description, since tower and price alone collide
// across different flats.
//
// Price is part of both keys, so a price change on the same flat produces a
// new fingerprint and is reported as a new listing. Price history is not
// tracked under one key.
func Fingerprint(l Listing) string {
	sum := sha256.Sum256([]byte(fingerprintPayload(l)))
	return hex.EncodeToString(sum[:])[:fingerprintHexLen]
}

func fingerprintPayload(l Listing) string {
	tower := "null"
	if l.Tower != TowerUnknown {
		tower = strconv.Itoa(l.Tower)
	}
	price := strconv.FormatInt(l.Price, 10)
	source := strings.ToLower(strings.TrimSpace(l.Source))

	if l.FloorKnown() && l.UnitKnown() {
		return strings.Join([]string{
			fingerprintVersion, "unit",
			tower,
			strings.ToLower(l.Floor),
			strings.ToUpper(l.Unit),
			price,
			source,
		}, "|")
	}

	return strings.Join([]string{
		fingerprintVersion, "desc",
		tower,
		price,
		source,
		descriptionKey(l.RawDescription),
	}, "|")
}

func descriptionKey(desc string) string {
	desc = strings.ToLower(CollapseSpace(desc))
	r := []rune(desc)
	if len(r) > descriptionKeyRunes {
		r = r[:descriptionKeyRunes]
	}
	return string(r)
}
