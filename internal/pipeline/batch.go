package pipeline

import "iter"

// Batches partitions records into consecutive slices of at most size
// elements, preserving order. Only the last batch may be short. The yielded
// slices alias records.
func Batches[T any](records []T, size int) iter.Seq[[]T] {
	if size <= 0 {
		panic("pipeline: batch size must be positive")
	}
	return func(yield func([]T) bool) {
		for start := 0; start < len(records); start += size {
			end := min(start+size, len(records))
			if !yield(records[start:end:end]) {
				return
			}
		}
	}
}

// Collect drains seq into a slice. It stops at the first error and returns
// the records gathered before it.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for rec, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// FromSlice adapts an in-memory slice to the sequence shape Driver.Run reads.
func FromSlice[T any](records []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, rec := range records {
			if !yield(rec, nil) {
				return
			}
		}
	}
}
