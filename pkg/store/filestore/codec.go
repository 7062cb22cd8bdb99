package filestore

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// encodeJSON renders v as indented JSON without HTML escaping, so unicode
// and markup in mentions are written as-is.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// nextID advances counter until it yields an id not accepted by taken.
func nextID(counter *int64, taken func(string) bool) string {
	for {
		*counter++
		id := strconv.FormatInt(*counter, 10)
		if !taken(id) {
			return id
		}
	}
}
