package core

// Partition splits items into n contiguous chunks. Every chunk except the last
// holds len(items)/n items and the last one takes the remainder. When there
// are fewer items than chunks each item gets a chunk of its own and the
// trailing chunks are empty. Concatenating the chunks in order always
// reproduces items.
func Partition[T any](items []T, n int) [][]T {
	if n < 1 {
		panic("partition count must be at least 1")
	}

	parts := make([][]T, n)

	size := len(items) / n
	if size == 0 {
		for i, item := range items {
			parts[i] = []T{item}
		}
		return parts
	}

	for i := 0; i < n-1; i++ {
		parts[i] = items[i*size : (i+1)*size : (i+1)*size]
	}
	parts[n-1] = items[(n-1)*size:]

	return parts
}

// NonEmpty drops the empty chunks returned by Partition; only these get a
// worker.
func NonEmpty[T any](parts [][]T) [][]T {
	out := make([][]T, 0, len(parts))
	for _, part := range parts {
		if len(part) > 0 {
			out = append(out, part)
		}
	}
	return out
}
