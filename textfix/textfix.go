// Package textfix repairs mojibake in text returned by the search API: UTF-8
// bytes that were read as Latin-1 somewhere upstream and came back either as
// literal \xHH escapes or as stray Latin-1 and C1 characters.
//
// The detection is a heuristic. Plain text that happens to contain "\x41" is
// flagged too, and the repair is not guaranteed to round-trip.
package textfix

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

var (
	// Literal \xHH, or a raw C1 code point U+0080..U+009F. The C1 branch is
	// required: UTF-8 bytes mis-decoded as Latin-1 leave continuation bytes
	// 0x80..0x9F as C1 characters ("\u00e8\u0085\u00be" for 腾), and those
	// strings must be flagged even though they hold no backslash.
	hexEscapePattern = regexp.MustCompile(`\\x[0-9a-fA-F]{2}|[\x{80}-\x{9F}]`)
	literalEscape    = regexp.MustCompile(`\\x([0-9a-fA-F]{2})`)
)

var errNotUTF8 = errors.New("latin-1 bytes are not valid utf-8")

// fields whose string values Normalize repairs
var targetFields = map[string]struct{}{
	"content":     {},
	"title":       {},
	"raw_content": {},
}

// IsMalformed reports whether s looks like mis-decoded UTF-8. Text mixing
// valid CJK characters with broken bytes is caught by the same escape check.
func IsMalformed(s string) bool {
	if s == "" {
		return false
	}
	return hexEscapePattern.MatchString(s)
}

type step func(string) (string, error)

var pipeline = []step{
	unescapeHex,
	redecodeLatin1,
	composeNFC,
}

// Fix runs the repair steps in order. A failing step leaves its input
// untouched and the next step continues from there; a panic anywhere returns s.
func Fix(s string) (out string) {
	if s == "" {
		return s
	}
	defer func() {
		if recover() != nil {
			out = s
		}
	}()

	cur := s
	for _, fn := range pipeline {
		next, err := safeStep(fn, cur)
		if err != nil {
			continue
		}
		cur = next
	}
	return cur
}

func safeStep(fn step, s string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = s, fmt.Errorf("repair step panicked: %v", r)
		}
	}()
	return fn(s)
}

func unescapeHex(s string) (string, error) {
	return literalEscape.ReplaceAllStringFunc(s, func(m string) string {
		n, err := strconv.ParseUint(m[2:], 16, 8)
		if err != nil {
			return m
		}
		return string(rune(n))
	}), nil
}

// redecodeLatin1 - каждый символ <= U+00FF становится байтом, байты читаются как UTF-8
func redecodeLatin1(s string) (string, error) {
	raw, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil {
		return s, err
	}
	if !utf8.ValidString(raw) {
		return s, errNotUTF8
	}
	return raw, nil
}

func composeNFC(s string) (string, error) {
	return norm.NFC.String(s), nil
}

// Normalize walks a decoded JSON value and repairs malformed strings stored
// under content, title and raw_content at any depth. Maps and slices are
// rebuilt; everything else is returned as is. A bare string is repaired directly.
func Normalize(v any) any {
	switch t := v.(type) {
	case string:
		return fixIfMalformed(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if s, ok := val.(string); ok {
				if _, target := targetFields[k]; target {
					out[k] = fixIfMalformed(s)
				} else {
					out[k] = s
				}
				continue
			}
			out[k] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			// строки внутри списков не трогаем, только вложенные объекты
			if _, ok := val.(string); ok {
				out[i] = val
				continue
			}
			out[i] = Normalize(val)
		}
		return out
	default:
		return v
	}
}

func fixIfMalformed(s string) string {
	if !IsMalformed(s) {
		return s
	}
	return Fix(s)
}
