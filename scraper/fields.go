package scraper

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"regent-tracker/models"
)

// Accepted value ranges. Anything outside is treated as a mis-parse.
const (
	MinPrice = 100_000
	MaxPrice = 10_000_000_000
	MinSize  = 100
	MaxSize  = 5000
	MinRooms = 1
	MaxRooms = 9
	MinFloor = 1
	MaxFloor = 99
	MinTower = 1
	MaxTower = 99
)

var priceMultipliers = map[string]float64{
	FieldPriceYi:      1e8,
	FieldPriceWan:     1e4,
	FieldPriceMillion: 1e6,
	FieldPricePlain:   1,
}

var chineseNumerals = map[string]int{"一": 1, "二": 2, "兩": 2, "三": 3, "四": 4, "五": 5}

var floorZones = map[string]string{
	"高": models.FloorHigh, "high": models.FloorHigh,
	"中": models.FloorMid, "mid": models.FloorMid, "middle": models.FloorMid,
	"低": models.FloorLow, "low": models.FloorLow,
}

// candidate is one pattern hit inside a window.
type candidate struct {
	pos      int
	priority int
	field    string
	value    string
}

// findCandidates collects every capture of the given fields in text, ordered
// by position and then by pattern priority. With reverse the nearest hit to
// the end of text comes first.
func findCandidates(rule *Rule, text string, reverse bool, fields ...string) []candidate {
	var out []candidate
	priority := 0
	for _, field := range fields {
		for _, re := range rule.Fields[field] {
			for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
				if m[2] < 0 {
					continue
				}
				out = append(out, candidate{
					pos:      m[0],
					priority: priority,
					field:    field,
					value:    text[m[2]:m[3]],
				})
			}
			priority++
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].pos != out[j].pos {
			if reverse {
				return out[i].pos > out[j].pos
			}
			return out[i].pos < out[j].pos
		}
		return out[i].priority < out[j].priority
	})
	return out
}

func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseIntInRange(s string, lo, hi int) (int, bool) {
	f, ok := parseNumber(s)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	n := int(f)
	if n < lo || n > hi {
		return 0, false
	}
	return n, true
}

// parsePrice returns the first valid price among the candidates.
func parsePrice(cands []candidate) (int64, bool) {
	for _, c := range cands {
		f, ok := parseNumber(c.value)
		if !ok {
			continue
		}
		p := int64(math.Round(f * priceMultipliers[c.field]))
		if p >= MinPrice && p <= MaxPrice {
			return p, true
		}
	}
	return 0, false
}

func parseFloor(cands []candidate) (string, bool) {
	for _, c := range cands {
		if c.field == FieldFloorZone {
			if zone, ok := floorZones[strings.ToLower(c.value)]; ok {
				return zone, true
			}
			continue
		}
		if n, ok := parseIntInRange(c.value, MinFloor, MaxFloor); ok {
			return strconv.Itoa(n), true
		}
	}
	return "", false
}

func parseUnit(cands []candidate) (string, bool) {
	for _, c := range cands {
		u := strings.ToUpper(strings.TrimSpace(c.value))
		if len(u) == 1 && u[0] >= 'A' && u[0] <= 'H' {
			return u, true
		}
	}
	return "", false
}

func parseSize(cands []candidate) (int, bool) {
	for _, c := range cands {
		if n, ok := parseIntInRange(c.value, MinSize, MaxSize); ok {
			return n, true
		}
	}
	return 0, false
}

func parseRooms(cands []candidate) (int, bool) {
	for _, c := range cands {
		if n, ok := chineseNumerals[c.value]; ok {
			return n, true
		}
		if n, ok := parseIntInRange(c.value, MinRooms, MaxRooms); ok {
			return n, true
		}
	}
	return 0, false
}

// window holds the forward and backward search regions around one anchor.
type window struct {
	forward  string
	backward string
}

// recoverField runs parse over the forward window, falling back to the backward one.
func recoverField[T any](rule *Rule, w window, parse func([]candidate) (T, bool), fields ...string) (T, bool) {
	if v, ok := parse(findCandidates(rule, w.forward, false, fields...)); ok {
		return v, true
	}
	if w.backward == "" {
		var zero T
		return zero, false
	}
	return parse(findCandidates(rule, w.backward, true, fields...))
}

var priceFields = []string{FieldPriceYi, FieldPriceWan, FieldPriceMillion, FieldPricePlain}

// parseFields fills every optional field it can recover from w. It returns
// false when no valid price is present.
func parseFields(rule *Rule, w window, l *models.Listing) bool {
	price, ok := recoverField(rule, w, parsePrice, priceFields...)
	if !ok {
		return false
	}
	l.Price = price

	if floor, ok := recoverField(rule, w, parseFloor, FieldFloor, FieldFloorZone); ok {
		l.Floor = floor
	}
	if unit, ok := recoverField(rule, w, parseUnit, FieldUnit); ok {
		l.Unit = unit
	}
	if size, ok := recoverField(rule, w, parseSize, FieldSize); ok {
		l.Size = size
	}
	if rooms, ok := recoverField(rule, w, parseRooms, FieldRooms); ok {
		l.Rooms = rooms
	}
	return true
}
