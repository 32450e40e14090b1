package budget

// Pack returns the longest prefix of items whose cumulative size fits in
// limit, and the size used. Packing stops at the first item that does not
// fit. With minOne set, a non-empty input always yields at least its first
// item, even when that item alone exceeds the limit.
func Pack[T any](items []T, limit int, size func(T) int, minOne bool) ([]T, int) {
	used := 0
	n := 0
	for _, item := range items {
		sz := size(item)
		if used+sz > limit {
			break
		}
		used += sz
		n++
	}
	if n == 0 && minOne && len(items) > 0 {
		return items[:1], size(items[0])
	}
	return items[:n], used
}

// Remaining returns limit-used, floored at zero.
func Remaining(limit, used int) int {
	if used >= limit {
		return 0
	}
	return limit - used
}
