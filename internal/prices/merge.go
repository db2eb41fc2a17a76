package prices

// Merge appends incoming rows after the existing history. Neither input is
// modified and the result shares no memory with either of them.
func Merge(existing, incoming Dataset) Dataset {
	merged := make(Dataset, 0, len(existing)+len(incoming))
	for _, o := range existing {
		merged = append(merged, o.Clone())
	}
	for _, o := range incoming {
		merged = append(merged, o.Clone())
	}
	return merged
}
