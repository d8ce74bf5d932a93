package tokens

import (
	"fmt"
)

// Pack returns the longest prefix of items whose EncodeJSON forms together fit
// into maxTokens. Scanning stops at the first item that does not fit; items are
// never reordered or skipped, so relevance order survives truncation.
func Pack[T any](items []T, maxTokens int, counter Counter) ([]T, error) {
	out := make([]T, 0, len(items))
	if maxTokens <= 0 {
		return out, nil
	}

	total := 0
	for i, item := range items {
		s, err := EncodeJSON(item)
		if err != nil {
			return nil, fmt.Errorf("marshal item %d: %w", i, err)
		}

		n, err := counter.Count(s)
		if err != nil {
			return nil, err
		}

		if total+n > maxTokens {
			break
		}
		out = append(out, item)
		total += n
	}

	return out, nil
}
