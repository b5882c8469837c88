package types

// ContextMap is an arbitrary provider-specific key/value bag persisted as
// jsonb. Updates merge field-by-field; a stored context is never replaced
// wholesale.
type ContextMap map[string]any

// Merge returns a copy of the map with the patch applied key by key.
// A nil receiver is treated as empty.
func (c ContextMap) Merge(patch ContextMap) ContextMap {
	merged := make(ContextMap, len(c)+len(patch))
	for k, v := range c {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

// GetString reads a string value from the bag, returning "" when absent or
// of another type.
func (c ContextMap) GetString(key string) string {
	if c == nil {
		return ""
	}
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}
