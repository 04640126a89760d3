package scraper

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRuleDefaults(t *testing.T) {
	r, err := CompileRule(testSource("test"))
	require.NoError(t, err)

	assert.Equal(t, "test", r.SourceID)
	assert.Len(t, r.Anchors, len(defaultAnchors))
	for key := range defaultFields {
		assert.NotEmpty(t, r.Fields[key], key)
	}
	assert.True(t, r.Blocked("Please complete the CAPTCHA"))
	assert.False(t, r.Blocked("天鑽 第9座"))
}

func TestCompileRuleCustomAnchorsReplaceDefaults(t *testing.T) {
	src := testSource("test")
	src.Anchors = []string{`Blk\s*(\d+)`}

	r, err := CompileRule(src)
	require.NoError(t, err)
	assert.Len(t, r.Anchors, 1)
}

func TestCompileRuleErrors(t *testing.T) {
	tests := []struct {
		name    string
		anchors []string
		fields  map[string][]string
		want    string
	}{
		{name: "bad regexp", anchors: []string{`(\d+`}, want: "bad anchor pattern"},
		{name: "no capture group", anchors: []string{`座`}, want: "no capture group"},
		{name: "unknown field", fields: map[string][]string{"colour": {`(\w+)`}}, want: "unknown field"},
		{name: "bad field pattern", fields: map[string][]string{FieldSize: {`([`}}, want: "bad size pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := testSource("test")
			src.Anchors = tt.anchors
			src.Fields = tt.fields

			_, err := CompileRule(src)
			require.Error(t, err)
			var re *RuleError
			assert.True(t, errors.As(err, &re))
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}

func TestNormalizeTextFlattensAndFolds(t *testing.T) {
	text := NormalizeText(`<div><span>第９座</span><br>２３樓</div><style>.x{}</style><p>＄６００萬</p>`)

	assert.Contains(t, text, "第9座")
	assert.Contains(t, text, "23樓")
	assert.Contains(t, text, "$600萬")
	assert.NotContains(t, text, ".x{}")
}

func TestNormalizeTextLeavesPlainText(t *testing.T) {
	assert.Equal(t, "Tower 9 < 10 floors", NormalizeText("Tower 9 < 10 floors"))
}
