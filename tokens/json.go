package tokens

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf16"
)

// EncodeJSON serializes v the way Python's json.dumps does with default
// arguments: ", " and ": " separators and every non-ASCII rune escaped as
// \uXXXX (surrogate pairs above the BMP). Token budgets are counted on this
// form. Struct fields keep declaration order; map keys are sorted.
func EncodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	compact := string(bytes.TrimRight(buf.Bytes(), "\n"))

	var out strings.Builder
	out.Grow(len(compact) + len(compact)/4)

	inString, escaped := false, false
	for _, r := range compact {
		switch {
		case inString && escaped:
			escaped = false
			out.WriteRune(r)
		case inString && r == '\\':
			escaped = true
			out.WriteRune(r)
		case inString && r == '"':
			inString = false
			out.WriteRune(r)
		case inString && r > 0x7f:
			writeEscaped(&out, r)
		case inString:
			out.WriteRune(r)
		case r == '"':
			inString = true
			out.WriteRune(r)
		case r == ',':
			out.WriteString(", ")
		case r == ':':
			out.WriteString(": ")
		default:
			out.WriteRune(r)
		}
	}
	return out.String(), nil
}

const hexDigits = "0123456789abcdef"

func writeEscaped(b *strings.Builder, r rune) {
	if r >= 0x10000 {
		hi, lo := utf16.EncodeRune(r)
		writeUnit(b, hi)
		writeUnit(b, lo)
		return
	}
	writeUnit(b, r)
}

func writeUnit(b *strings.Builder, u rune) {
	b.WriteString(`\u`)
	for shift := 12; shift >= 0; shift -= 4 {
		b.WriteByte(hexDigits[(u>>shift)&0xf])
	}
}
