package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"regent-tracker/config"
)

// Field keys accepted in a source's fields map.
const (
	FieldPriceYi      = "price_yi"
	FieldPriceWan     = "price_wan"
	FieldPriceMillion = "price_million"
	FieldPricePlain   = "price_plain"
	FieldFloor        = "floor"
	FieldFloorZone    = "floor_zone"
	FieldUnit         = "unit"
	FieldSize         = "size"
	FieldRooms        = "rooms"
)

const number = `(\d[\d,]*(?:\.\d+)?)`

var defaultAnchors = []string{
	`第\s*(\d+)\s*座`,
	`(?i)\btower\s*(\d+)\b`,
	`(?i)\b(?:block|blk)\.?\s*(\d+)\b`,
	`(\d+)\s*座`,
	`\bT(\d+)\b`,
}

var defaultFields = map[string][]string{
	FieldPriceYi:      {number + `\s*億`},
	FieldPriceWan:     {number + `\s*[萬万]`},
	FieldPriceMillion: {`(?i)` + number + `\s*(?:m|mil|million)\b`},
	FieldPricePlain:   {`(?:HK)?\$\s*` + number},
	FieldFloor: {
		`(\d+)\s*[樓层層]`,
		`(?i)(\d+)\s*/\s*F\b`,
		`(?i)\b(?:floor|flr)\.?\s*(\d+)\b`,
		`(?i)\b(\d+)(?:st|nd|rd|th)?\s*floor\b`,
		`(?i)\b(\d+)F\b`,
	},
	FieldFloorZone: {
		`([高中低])\s*[層层]`,
		`(?i)\b(high|middle|mid|low)[\s-]*(?:floor|zone|level)\b`,
	},
	FieldUnit: {
		`([A-Ha-h])\s*室`,
		`(?i)\b(?:flat|unit|rm)\.?\s*([A-H])\b`,
	},
	FieldSize: {
		`(?i)(?:實用(?:面積)?|SFA|saleable(?:\s*area)?)\s*[:：]?\s*(\d[\d,]*)`,
		`(?i)(\d[\d,]*)\s*(?:平方呎|呎|尺|sq\.?\s*ft\.?|sqft|ft²|ft\b)`,
	},
	FieldRooms: {
		`(\d+)\s*房`,
		`([一二兩三四五])\s*房`,
		`(?i)(\d+)\s*-?\s*(?:bed(?:room)?s?|br|rooms?)\b`,
	},
}

var defaultBlockedMarkers = []string{
	"captcha",
	"access denied",
	"cf-challenge",
	"just a moment",
	"attention required",
	"請完成驗證",
	"px-captcha",
	"distil_r_captcha",
	"are you a robot",
}

// Rule is the compiled, per-source form of a config.Source.
type Rule struct {
	SourceID       string
	Link           string
	Anchors        []*regexp.Regexp
	WindowBefore   int
	WindowAfter    int
	Fields         map[string][]*regexp.Regexp
	BlockedMarkers []string
}

// CompileRule compiles the patterns of src. Source-specific field patterns
// rank ahead of the built-in ones for the same field.
func CompileRule(src config.Source) (*Rule, error) {
	r := &Rule{
		SourceID:     src.ID,
		Link:         src.Link(),
		WindowBefore: src.WindowBefore,
		WindowAfter:  src.WindowAfter,
		Fields:       make(map[string][]*regexp.Regexp, len(defaultFields)),
	}

	anchors := src.Anchors
	if len(anchors) == 0 {
		anchors = defaultAnchors
	}
	for _, p := range anchors {
		re, err := compileCapture(src.ID, "anchor", p)
		if err != nil {
			return nil, err
		}
		r.Anchors = append(r.Anchors, re)
	}

	for key := range src.Fields {
		if _, ok := defaultFields[key]; !ok {
			return nil, &RuleError{Source: src.ID, Message: fmt.Sprintf("unknown field %q", key)}
		}
	}
	for key, builtin := range defaultFields {
		patterns := append(append([]string{}, src.Fields[key]...), builtin...)
		for _, p := range patterns {
			re, err := compileCapture(src.ID, key, p)
			if err != nil {
				return nil, err
			}
			r.Fields[key] = append(r.Fields[key], re)
		}
	}

	for _, m := range append(append([]string{}, src.BlockedMarkers...), defaultBlockedMarkers...) {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			r.BlockedMarkers = append(r.BlockedMarkers, m)
		}
	}
	return r, nil
}

func compileCapture(source, field, pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &RuleError{Source: source, Message: "bad " + field + " pattern", Cause: err}
	}
	if re.NumSubexp() < 1 {
		return nil, &RuleError{Source: source, Message: fmt.Sprintf("%s pattern %q has no capture group", field, pattern)}
	}
	return re, nil
}

// Blocked reports whether text contains one of the rule's challenge markers.
func (r *Rule) Blocked(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range r.BlockedMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
