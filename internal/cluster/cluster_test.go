package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alpae/clustermerge/internal/aligner"
	"github.com/alpae/clustermerge/internal/env"
)

func mustSeq(t *testing.T, residues, genome string, genomeSize, genomeIndex, absoluteID uint32) Sequence {
	s, err := NewSequence([]byte(residues), genome, genomeSize, genomeIndex, absoluteID)
	assert.NoError(t, err)
	return s
}

// identityMatrix scores a match as +6, a mismatch as -4, matching a cheap
// toy substitution matrix; good enough for exercising the merge/threshold
// decision logic without a real PAM table.
func identityMatrix() env.Matrix {
	m := make(env.Matrix, env.MatrixDim*env.MatrixDim)
	for a := 0; a < env.MatrixDim; a++ {
		for b := 0; b < env.MatrixDim; b++ {
			if a == b {
				m[a*env.MatrixDim+b] = 6
			} else {
				m[a*env.MatrixDim+b] = -4
			}
		}
	}
	return m
}

func testAligner(t *testing.T, minScore int, maxUncovered int, minFullMerge float64) *aligner.ProteinAligner {
	e := env.Environment{PAMDistance: 1, GapOpen: -10, GapExtend: -1, Matrix: identityMatrix()}
	envs := &env.Environments{
		LogPAM1:  e,
		Family:   []env.Environment{e},
		MinScore: minScore,
	}
	return aligner.New(envs, aligner.Params{
		MinScore:          minScore,
		MaxAAUncovered:    maxUncovered,
		MinFullMergeScore: minFullMerge,
	})
}

func TestNewSequenceRejectsEmptyAndOversize(t *testing.T) {
	_, err := NewSequence(nil, "g", 1, 0, 0)
	assert.Error(t, err)

	oversize := make([]byte, MaxSequenceLength+1)
	_, err = NewSequence(oversize, "g", 1, 0, 0)
	assert.Error(t, err)

	ok := make([]byte, MaxSequenceLength)
	_, err = NewSequence(ok, "g", 1, 0, 0)
	assert.NoError(t, err)
}

func TestClusterMergeKeepsBothWhenThresholdPasses(t *testing.T) {
	a := testAligner(t, 10, 2, 1000) // min_full_merge_score unreachable: forces the keep-both branch
	c1 := NewCluster(mustSeq(t, "MKTMKTMKTMKT", "g1", 1, 0, 0))
	c2 := NewCluster(mustSeq(t, "MKTMKTMKTMKT", "g2", 1, 0, 1))

	assert.True(t, c1.PassesThreshold(c2, a))
	c1.Merge(c2, a)
	assert.Equal(t, 2, c1.Size())
	assert.Equal(t, []uint32{0, 1}, c1.MemberIDs())
}

func TestClusterFullyMergedInvariant(t *testing.T) {
	c := NewCluster(mustSeq(t, "MKT", "g1", 1, 0, 0))
	assert.False(t, c.IsFullyMerged())
	c.SetFullyMerged()
	assert.True(t, c.IsFullyMerged())
}

func TestClusterDuplicateFlag(t *testing.T) {
	c := NewCluster(mustSeq(t, "MKT", "g1", 1, 0, 0))
	assert.False(t, c.IsDuplicate())
	c.SetDuplicate()
	assert.True(t, c.IsDuplicate())
}
