package zombie

import "sort"

const DefaultQueueBatchSize = 20

// UnfollowOrder is the order in which categories are queued for unfollowing.
var UnfollowOrder = []Category{CategoryBurned, CategoryAncient, CategoryRotting, CategoryFresh}

// BuildQueue flattens the zombie categories into unfollow batches. Within a
// category the longest silent accounts come first; accounts without any
// activity lead.
func BuildQueue(c *Classification, batchSize int) [][]Result {
	if batchSize <= 0 {
		batchSize = DefaultQueueBatchSize
	}

	var queue []Result
	for _, cat := range UnfollowOrder {
		results := append([]Result(nil), c.Results(cat)...)
		sort.SliceStable(results, func(i, j int) bool {
			a, b := results[i].LastActivity, results[j].LastActivity
			switch {
			case a == nil && b == nil:
				return results[i].Pubkey < results[j].Pubkey
			case a == nil:
				return true
			case b == nil:
				return false
			case *a != *b:
				return *a < *b
			default:
				return results[i].Pubkey < results[j].Pubkey
			}
		})
		queue = append(queue, results...)
	}

	batches := make([][]Result, 0, (len(queue)+batchSize-1)/batchSize)
	for start := 0; start < len(queue); start += batchSize {
		batches = append(batches, queue[start:min(start+batchSize, len(queue))])
	}
	return batches
}
