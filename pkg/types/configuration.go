package types

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Configuration holds the variation selectors of an order position
// (e.g. color=red, size=m). Part of the position dedup key.
type Configuration map[string]string

// Hash returns a stable digest over the sorted key/value pairs. Stored next
// to the jsonb column so the dedup key can be compared in SQL.
func (c Configuration) Hash() string {
	if len(c) == 0 {
		return ""
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for _, k := range keys {
		builder.WriteString(k)
		builder.WriteByte('=')
		builder.WriteString(c[k])
		builder.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(builder.String()))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether both configurations carry the same pairs.
func (c Configuration) Equal(other Configuration) bool {
	if len(c) != len(other) {
		return false
	}
	for k, v := range c {
		if other[k] != v {
			return false
		}
	}
	return true
}
