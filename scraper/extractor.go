package scraper

import (
	"sort"
	"strings"
	"unicode/utf8"

	"regent-tracker/config"
	"regent-tracker/models"
)

// DescriptionLimit bounds rawDescription, in runes.
const DescriptionLimit = 200

// Result is what one Extract call produced, plus the counts callers log.
type Result struct {
	Listings   []models.Listing
	Anchors    int
	Skipped    int
	Filtered   int
	Duplicates int
}

// Extractor pulls listings out of page text using per-source rules.
// It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	rules map[string]*Rule
}

// NewExtractor compiles a rule for every source.
func NewExtractor(sources []config.Source) (*Extractor, error) {
	x := &Extractor{rules: make(map[string]*Rule, len(sources))}
	for _, src := range sources {
		r, err := CompileRule(src)
		if err != nil {
			return nil, err
		}
		x.rules[src.ID] = r
	}
	return x, nil
}

// Extract scans raw for tower anchors and recovers a listing around each one.
// A fragment is kept once it has a valid tower and price; other fields fall
// back to their unknown sentinels. Listings failing filter are dropped and
// repeated fingerprints keep the first occurrence.
//
// An empty or challenge page returns an empty Result together with a
// *SourceUnavailableError. Bad fragments never produce an error.
func (x *Extractor) Extract(raw, sourceID string, filter Filter) (*Result, error) {
	rule, ok := x.rules[sourceID]
	if !ok {
		return nil, &RuleError{Source: sourceID, Message: "no rule configured"}
	}

	res := &Result{}
	if strings.TrimSpace(raw) == "" {
		return res, &SourceUnavailableError{Source: sourceID, Reason: ReasonEmpty}
	}

	text := NormalizeText(raw)
	if strings.TrimSpace(text) == "" {
		return res, &SourceUnavailableError{Source: sourceID, Reason: ReasonEmpty}
	}

	anchors := findAnchors(rule, text)
	res.Anchors = len(anchors)
	if len(anchors) == 0 && rule.Blocked(text) {
		return res, &SourceUnavailableError{Source: sourceID, Reason: ReasonBlocked}
	}

	seen := make(map[string]struct{})
	for i, a := range anchors {
		tower, ok := parseIntInRange(a.tower, MinTower, MaxTower)
		if !ok {
			res.Skipped++
			continue
		}

		w, descEnd := windowAround(text, anchors, i, rule)
		l := models.Listing{
			Tower:          tower,
			Floor:          models.Unknown,
			Unit:           models.Unknown,
			Source:         rule.SourceID,
			URL:            rule.Link,
			RawDescription: truncateRunes(models.CollapseSpace(text[a.start:descEnd]), DescriptionLimit),
		}
		if !parseFields(rule, w, &l) {
			res.Skipped++
			continue
		}
		l.Normalize()

		if !filter.Match(l) {
			res.Filtered++
			continue
		}
		if _, dup := seen[l.Fingerprint]; dup {
			res.Duplicates++
			continue
		}
		seen[l.Fingerprint] = struct{}{}
		res.Listings = append(res.Listings, l)
	}
	return res, nil
}

type anchor struct {
	start, end int
	priority   int
	tower      string
}

// findAnchors returns non-overlapping anchor matches in text order. Where
// matches overlap the earliest wins, then the longest, then the first pattern.
func findAnchors(rule *Rule, text string) []anchor {
	var all []anchor
	for p, re := range rule.Anchors {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if m[2] < 0 {
				continue
			}
			all = append(all, anchor{start: m[0], end: m[1], priority: p, tower: text[m[2]:m[3]]})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if a.end != b.end {
			return a.end > b.end
		}
		return a.priority < b.priority
	})

	out := all[:0]
	lastEnd := -1
	for _, a := range all {
		if a.start < lastEnd {
			continue
		}
		out = append(out, a)
		lastEnd = a.end
	}
	return out
}

// windowAround returns the search windows for anchors[i] and the end offset of
// its forward window. The forward window stops at the next anchor. The
// backward window only covers text no earlier forward window claimed, so a
// listing never inherits its predecessor's fields.
func windowAround(text string, anchors []anchor, i int, rule *Rule) (window, int) {
	a := anchors[i]
	fwdEnd := forwardEnd(text, anchors, i, rule)

	bwdStart := 0
	if i > 0 {
		bwdStart = forwardEnd(text, anchors, i-1, rule)
	}
	if lim := a.start - rule.WindowBefore; lim > bwdStart {
		bwdStart = snapForward(text, lim)
	}

	return window{
		forward:  text[a.end:fwdEnd],
		backward: text[bwdStart:a.start],
	}, fwdEnd
}

func forwardEnd(text string, anchors []anchor, i int, rule *Rule) int {
	end := len(text)
	if i+1 < len(anchors) {
		end = anchors[i+1].start
	}
	if lim := anchors[i].end + rule.WindowAfter; lim < end {
		end = snapBack(text, lim)
	}
	return end
}

// snapBack moves i left to the nearest rune boundary.
func snapBack(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// snapForward moves i right to the nearest rune boundary.
func snapForward(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
