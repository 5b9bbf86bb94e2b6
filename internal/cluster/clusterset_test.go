package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMergeClustersAbsorbsSmallerWhenFullyCovered exercises spec.md §8
// scenario 2: a short representative that is almost entirely covered by an
// alignment above min_full_merge_score gets absorbed and flagged
// fully-merged, leaving a single surviving cluster.
func TestMergeClustersAbsorbsSmallerWhenFullyCovered(t *testing.T) {
	a := testAligner(t, 10, 5, 20) // low min_full_merge_score: absorption path taken
	setA := NewSingletonSet(mustSeq(t, "MKTMKTMKTMKT", "g1", 1, 0, 0))
	setB := NewSingletonSet(mustSeq(t, "MKTMKTMKTMKT", "g2", 1, 0, 1))

	merged := setA.MergeClusters(setB, a)
	assert.Equal(t, 1, merged.Size())
	assert.Equal(t, 2, merged.Clusters[0].Size())
}

// TestMergeClustersKeepsBothWhenNeitherFullyCovered exercises spec.md §8
// scenario 3: when neither side clears min_full_merge_score, both clusters
// survive via the keep-both c.Merge(c_other) branch.
func TestMergeClustersKeepsBothWhenNeitherFullyCovered(t *testing.T) {
	a := testAligner(t, 10, 0, 1_000_000) // unreachable min_full_merge_score
	setA := NewSingletonSet(mustSeq(t, "MKTMKTMKTMKT", "g1", 1, 0, 0))
	setB := NewSingletonSet(mustSeq(t, "MKTMKTMKTMKT", "g2", 1, 0, 1))

	merged := setA.MergeClusters(setB, a)
	assert.Equal(t, 2, merged.Size())
}

// TestMergeClustersParallelAgreesWithSequential checks that the parallel
// variant (run via a trivial synchronous "executor") produces the same
// surviving cluster count as the sequential variant for a small fan-in.
func TestMergeClustersParallelAgreesWithSequential(t *testing.T) {
	a := testAligner(t, 10, 5, 20)
	buildSets := func() (*Set, *Set) {
		left := NewSet(2)
		left.AddCluster(NewCluster(mustSeq(t, "MKTMKTMKTMKT", "g1", 2, 0, 0)))
		left.AddCluster(NewCluster(mustSeq(t, "QQQQQQQQQQQQ", "g1", 2, 1, 1)))
		right := NewSingletonSet(mustSeq(t, "MKTMKTMKTMKT", "g2", 1, 0, 2))
		return left, right
	}

	seqLeft, seqRight := buildSets()
	sequential := seqLeft.MergeClusters(seqRight, a)

	parLeft, parRight := buildSets()
	parallel := parLeft.MergeClustersParallel(parRight, a, func(n int, fn func(i int) error) {
		for i := 0; i < n; i++ {
			_ = fn(i)
		}
	})

	assert.Equal(t, sequential.Size(), parallel.Size())
}

func TestRemoveDuplicatesMarksIdenticalMemberSets(t *testing.T) {
	set := NewSet(2)
	c1 := NewCluster(mustSeq(t, "AAA", "g1", 1, 0, 0))
	c1.AddSequence(mustSeq(t, "BBB", "g1", 1, 1, 1))
	c2 := NewCluster(mustSeq(t, "BBB", "g1", 1, 1, 1))
	c2.AddSequence(mustSeq(t, "AAA", "g1", 1, 0, 0))
	set.AddCluster(c1)
	set.AddCluster(c2)

	numDups := set.RemoveDuplicates()
	assert.Equal(t, 1, numDups)
	assert.True(t, c1.IsDuplicate() != c2.IsDuplicate())
}

func TestRebuildWithoutFullyMergedDropsAbsorbedClusters(t *testing.T) {
	set := NewSet(2)
	kept := NewCluster(mustSeq(t, "AAA", "g1", 1, 0, 0))
	absorbed := NewCluster(mustSeq(t, "BBB", "g1", 1, 1, 1))
	absorbed.SetFullyMerged()
	set.AddCluster(kept)
	set.AddCluster(absorbed)

	set.RebuildWithoutFullyMerged()
	assert.Equal(t, 1, set.Size())
	assert.Equal(t, kept, set.Clusters[0])
}
