package rerank

import (
	"encoding/json"
	"strings"
)

// firstStringArray scans free text for the first well-formed JSON array of
// strings and returns its elements. Models often wrap the array in prose or
// markdown fences; everything around the array is ignored.
func firstStringArray(text string) ([]string, bool) {
	for start := strings.IndexByte(text, '['); start >= 0; {
		rest := text[start:]
		dec := json.NewDecoder(strings.NewReader(rest))
		var ids []string
		if err := dec.Decode(&ids); err == nil {
			return ids, true
		}
		next := strings.IndexByte(rest[1:], '[')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return nil, false
}
