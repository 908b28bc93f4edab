// Package compose turns one AI reply into the ordered sequence of
// provider-sized message bodies.
package compose

import (
	"strings"
	"unicode"

	"chatgw/internal/domain"
)

// Splitter breaks text into parts that each fit the provider's single
// message limit. Parts are sent left to right as independent messages.
type Splitter interface {
	Split(text string, limit int) ([]string, error)
}

// Bisect is the default strategy: recursively halve the text at the first
// whitespace at or after the midpoint until every part fits. Concatenating
// the parts reproduces the input exactly.
type Bisect struct{}

func (Bisect) Split(text string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{text}, nil
	}
	return bisect([]rune(text), limit), nil
}

func bisect(text []rune, limit int) []string {
	if len(text) <= limit {
		return []string{string(text)}
	}

	mid := len(text) / 2
	for mid < len(text) && !unicode.IsSpace(text[mid]) {
		mid++
	}
	if mid == len(text) {
		// No whitespace after the midpoint; fall back to a hard cut so the
		// recursion still terminates on pathological input.
		mid = limit
	}

	parts := bisect(text[:mid], limit)
	return append(parts, bisect(text[mid:], limit)...)
}

// SentenceHalves is the legacy strategy kept for the Twilio path: split on
// ". ", reassemble two halves, and bisect a half that is still over the
// limit. Input at or beyond twice the limit is rejected outright.
type SentenceHalves struct{}

func (SentenceHalves) Split(text string, limit int) ([]string, error) {
	if limit <= 0 || len(text) <= limit {
		return []string{text}, nil
	}
	if len(text) >= 2*limit {
		return nil, domain.ErrResponseTooLong
	}

	sentences := strings.SplitAfter(text, ". ")
	var first, second strings.Builder
	for i, s := range sentences {
		if i < (len(sentences)+1)/2 {
			first.WriteString(s)
		} else {
			second.WriteString(s)
		}
	}

	// A run without sentence boundaries leaves everything in one half;
	// degrade to the bisecting strategy for that half.
	var out []string
	for _, half := range []string{first.String(), second.String()} {
		if half == "" {
			continue
		}
		if len(half) > limit {
			parts, err := Bisect{}.Split(half, limit)
			if err != nil {
				return nil, err
			}
			out = append(out, parts...)
			continue
		}
		out = append(out, half)
	}
	return out, nil
}
