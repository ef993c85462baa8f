package intercom

import "runtime"

// Bounds for the computed batch size when the caller does not pin one.
const (
	minBatchSize = 10
	maxBatchSize = 50
)

// intelligentBatchSize picks a batch size for total items: smaller batches
// as core count and total grow, bounded to [minBatchSize, maxBatchSize].
func intelligentBatchSize(total int) int {
	size := total / (2 * runtime.NumCPU())
	if size == 0 {
		return minBatchSize
	}
	if size < minBatchSize {
		return minBatchSize
	}
	if size > maxBatchSize {
		return maxBatchSize
	}
	return size
}

// partition splits ids into consecutive batches of at most size elements.
func partition(ids []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}
