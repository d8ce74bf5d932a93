package textfix

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mojibake reproduces the upstream bug: every UTF-8 byte of s becomes one
// Latin-1 character.
func mojibake(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		b.WriteRune(rune(s[i]))
	}
	return b.String()
}

func TestIsMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{name: "mis-decoded chinese", in: mojibake("腾讯文档"), want: true},
		{name: "normal mixed text", in: "Tencent 腾讯", want: false},
		{name: "literal hex escapes", in: `\x85\x86\x87`, want: true},
		{name: "empty", in: "", want: false},
		{name: "valid cjk mixed with broken bytes", in: "Tencent 腾讯\n" + mojibake("腾讯"), want: true},
		{name: "latin-1 accents only", in: "caf\u00e9 au lait", want: false},
		{name: "plain english", in: "What is Tavily?", want: false},
		{name: "escape-like text in docs", in: `use \x41 to match A`, want: true},
		{name: "backslash x without hex", in: `\xZZ`, want: false},
		{name: "raw c1 bytes without backslash", in: "\u00e8\u0085\u00be", want: true},
		{name: "single c1 control", in: "a\u009fb", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMalformed(tt.in))
		})
	}
}

func TestFix(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "mis-decoded chinese", in: mojibake("腾讯文\u202a档\u202c"), want: "腾讯文\u202a档\u202c"},
		{name: "escaped utf-8 bytes", in: `\xe8\x85\xbe\xe8\xae\xaf`, want: "腾讯"},
		{name: "escapes that are not utf-8", in: `\x85\x86\x87`, want: "\u0085\u0086\u0087"},
		{name: "normal text unchanged", in: "Tencent 腾讯", want: "Tencent 腾讯"},
		{name: "empty", in: "", want: ""},
		{name: "decomposed accent composed", in: "cafe\u0301", want: "caf\u00e9"},
		{name: "ascii escape with decomposed accent", in: `\x41e` + "\u0301", want: "A\u00e9"},
		{name: "double encoded accent", in: mojibake("caf\u00e9"), want: "caf\u00e9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fix(tt.in))
		})
	}
}

func TestFix_NoLiteralEscapesLeft(t *testing.T) {
	fixed := Fix(`\x85\x86\x87`)
	assert.NotContains(t, fixed, `\x`)
}

func TestFix_MixedContentKeepsValidPart(t *testing.T) {
	mixed := "Tencent 腾讯\n" + mojibake("腾讯文档")

	fixed := Fix(mixed)
	assert.Contains(t, fixed, "Tencent")
	assert.Contains(t, fixed, "腾讯")
}

func TestFix_LongRegressionSample(t *testing.T) {
	want := "腾讯文\u202a档\u202c\n 4+\n\n可多人实时协作的在线文\u202a档\u202c"
	in := mojibake(want)

	require.True(t, IsMalformed(in))
	fixed := Fix(in)
	assert.Equal(t, want, fixed)
	assert.False(t, IsMalformed(fixed))
}

func TestFix_Idempotent(t *testing.T) {
	inputs := []string{
		mojibake("腾讯文档"),
		`\x85\x86\x87`,
		"Tencent 腾讯\n" + mojibake("腾讯"),
		"caf\u00e9",
		"plain text",
		mojibake("Ünïcödé"),
	}

	for _, in := range inputs {
		once := Fix(in)
		twice := Fix(once)
		assert.True(t, once == twice || !IsMalformed(once), "input %q", in)
	}
}

func TestFix_NeverPanics(t *testing.T) {
	inputs := []string{
		"\xff\xfe\xfd",
		`\xff\xfe`,
		`\x`,
		`\\x41`,
		strings.Repeat(`\xc3`, 1000),
		"\u0085" + string([]byte{0xed, 0xa0, 0x80}),
	}

	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_ = Fix(in)
		}, "input %q", in)
	}
}

func TestNormalize_SearchResponse(t *testing.T) {
	broken := mojibake("腾讯文档")
	resp := map[string]any{
		"results": []any{
			map[string]any{
				"url":     "https://example.com",
				"title":   "Test 腾讯",
				"content": broken,
				"score":   0.9,
			},
		},
	}

	out, ok := Normalize(resp).(map[string]any)
	require.True(t, ok)

	results := out["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)

	assert.Equal(t, "https://example.com", first["url"])
	assert.Equal(t, "Test 腾讯", first["title"])
	assert.Equal(t, 0.9, first["score"])
	assert.Equal(t, "腾讯文档", first["content"])
	assert.NotContains(t, first["content"], `\x85`)
}

func TestNormalize_OnlyTargetFields(t *testing.T) {
	broken := mojibake("腾讯")
	in := map[string]any{
		"url":         broken,
		"raw_content": broken,
		"answer":      broken,
		"nested": map[string]any{
			"title": broken,
			"deeper": []any{
				map[string]any{"content": broken},
			},
		},
		"images": []any{broken},
	}

	out := Normalize(in).(map[string]any)

	assert.Equal(t, broken, out["url"])
	assert.Equal(t, broken, out["answer"])
	assert.Equal(t, "腾讯", out["raw_content"])
	assert.Equal(t, []any{broken}, out["images"])

	nested := out["nested"].(map[string]any)
	assert.Equal(t, "腾讯", nested["title"])
	deeper := nested["deeper"].([]any)
	assert.Equal(t, "腾讯", deeper[0].(map[string]any)["content"])
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	broken := mojibake("腾讯")
	in := map[string]any{"content": broken}

	_ = Normalize(in)
	assert.Equal(t, broken, in["content"])
}

func TestNormalize_List(t *testing.T) {
	in := []any{
		map[string]any{"content": mojibake("腾讯"), "title": "Test Title"},
	}

	out, ok := Normalize(in).([]any)
	require.True(t, ok)
	require.Len(t, out, 1)
	assert.Equal(t, "Test Title", out[0].(map[string]any)["title"])
	assert.Equal(t, "腾讯", out[0].(map[string]any)["content"])
}

func TestNormalize_BareString(t *testing.T) {
	broken := mojibake("腾讯文档")

	out, ok := Normalize(broken).(string)
	require.True(t, ok)
	assert.Equal(t, "腾讯文档", out)

	assert.Equal(t, "Tencent 腾讯", Normalize("Tencent 腾讯"))
}

func TestNormalize_PreservesOtherTypes(t *testing.T) {
	assert.Equal(t, 123, Normalize(123))
	assert.Nil(t, Normalize(nil))
	assert.Equal(t, true, Normalize(true))
	assert.Equal(t, json.Number("0.48294178"), Normalize(json.Number("0.48294178")))
}

func TestNormalize_DecodedJSON(t *testing.T) {
	body := `{"results":[{"content":"` + mojibake("腾讯") + `","score":0.9,"url":"https://x"}]}`

	var v any
	require.NoError(t, json.Unmarshal([]byte(body), &v))

	out := Normalize(v).(map[string]any)
	first := out["results"].([]any)[0].(map[string]any)
	assert.Equal(t, "腾讯", first["content"])
	assert.Equal(t, 0.9, first["score"])
	assert.Equal(t, "https://x", first["url"])
}
