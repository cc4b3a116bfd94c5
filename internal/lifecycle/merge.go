package lifecycle

// Keyed is an entity with a stable identifier.
type Keyed interface {
	Key() string
}

// Replace replaces the whole value with the payload.
func Replace[T any](_ T, payload T) T {
	return payload
}

// Append adds item to the end of items.
func Append[E Keyed](items []E, item E) []E {
	out := make([]E, 0, len(items)+1)
	out = append(out, items...)
	return append(out, item)
}

// ReplaceByID swaps the element whose key matches item. Items without a
// match are left unchanged.
func ReplaceByID[E Keyed](items []E, item E) []E {
	out := make([]E, len(items))
	for i, existing := range items {
		if existing.Key() == item.Key() {
			out[i] = item
		} else {
			out[i] = existing
		}
	}
	return out
}

// RemoveByID drops every element whose key is id.
func RemoveByID[E Keyed](items []E, id string) []E {
	out := make([]E, 0, len(items))
	for _, existing := range items {
		if existing.Key() != id {
			out = append(out, existing)
		}
	}
	return out
}
