package zombie_test

import (
	"pvz/internal/zombie"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(pk string, cat zombie.Category, last *int64) zombie.Result {
	return zombie.Result{Pubkey: pk, Category: cat, LastActivity: last}
}

func ts(v int64) *int64 { return &v }

func TestBuildQueue_OrderAndBatches(t *testing.T) {
	c := zombie.NewClassification()
	c.Add(result(pubkey('1'), zombie.CategoryActive, ts(900)))
	c.Add(result(pubkey('2'), zombie.CategoryFresh, ts(500)))
	c.Add(result(pubkey('3'), zombie.CategoryRotting, ts(300)))
	c.Add(result(pubkey('4'), zombie.CategoryAncient, ts(200)))
	c.Add(result(pubkey('5'), zombie.CategoryAncient, nil))
	c.Add(result(pubkey('6'), zombie.CategoryAncient, ts(100)))
	c.Add(result(pubkey('7'), zombie.CategoryBurned, ts(400)))

	batches := zombie.BuildQueue(c, 3)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 3)

	var order []string
	for _, b := range batches {
		for _, r := range b {
			order = append(order, r.Pubkey)
		}
	}
	assert.Equal(t, []string{
		pubkey('7'),
		pubkey('5'), pubkey('6'), pubkey('4'),
		pubkey('3'),
		pubkey('2'),
	}, order, "active accounts are never queued")
}

func TestBuildQueue_DefaultBatchSize(t *testing.T) {
	c := zombie.NewClassification()
	for i := 0; i < 45; i++ {
		c.Add(result(pubkey(byte('a'+i%26))+string(rune('a'+i/26)), zombie.CategoryAncient, nil))
	}

	batches := zombie.BuildQueue(c, 0)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], zombie.DefaultQueueBatchSize)
	assert.Len(t, batches[2], 5)
}

func TestBuildQueue_Empty(t *testing.T) {
	c := zombie.NewClassification()
	c.Add(result(pubkey('a'), zombie.CategoryActive, ts(1)))

	assert.Empty(t, zombie.BuildQueue(c, 10))
}

func TestBuildQueue_DoesNotReorderClassification(t *testing.T) {
	c := zombie.NewClassification()
	c.Add(result(pubkey('b'), zombie.CategoryAncient, ts(2)))
	c.Add(result(pubkey('a'), zombie.CategoryAncient, ts(1)))

	zombie.BuildQueue(c, 10)
	assert.Equal(t, pubkey('b'), c.Ancient[0].Pubkey)
}
