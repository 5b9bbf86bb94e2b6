package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alpae/clustermerge/internal/aligner"
	"github.com/alpae/clustermerge/internal/cluster"
	"github.com/alpae/clustermerge/internal/env"
)

func mustSeq(t *testing.T, residues, genome string, genomeSize, genomeIndex, absoluteID uint32) cluster.Sequence {
	s, err := cluster.NewSequence([]byte(residues), genome, genomeSize, genomeIndex, absoluteID)
	assert.NoError(t, err)
	return s
}

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
	envs := &env.Environments{LogPAM1: e, Family: []env.Environment{e}, MinScore: minScore}
	return aligner.New(envs, aligner.Params{MinScore: minScore, MaxAAUncovered: maxUncovered, MinFullMergeScore: minFullMerge})
}

// TestRunMergesAllSequencesIntoOneSurvivorSet exercises spec.md §8's
// membership-conservation property across the full pop-two-merge-push loop:
// every input sequence ID is present in exactly one cluster of the result.
func TestRunMergesAllSequencesIntoOneSurvivorSet(t *testing.T) {
	a := testAligner(t, 10, 5, 20)
	sequences := []cluster.Sequence{
		mustSeq(t, "MKTMKTMKTMKT", "g1", 1, 0, 0),
		mustSeq(t, "MKTMKTMKTMKT", "g2", 1, 0, 1),
		mustSeq(t, "QQQQQQQQQQQQ", "g3", 1, 0, 2),
		mustSeq(t, "QQQQQQQQQQQQ", "g4", 1, 0, 3),
	}
	d := New(sequences, a, Config{MergeThreads: 1, DupRemovalThresh: 1000})
	final := d.Run(2)

	seen := make(map[uint32]bool)
	for _, c := range final.Clusters {
		for _, id := range c.MemberIDs() {
			assert.False(t, seen[id], "sequence %d appears in more than one cluster", id)
			seen[id] = true
		}
	}
	assert.Equal(t, len(sequences), len(seen))
}

func TestRunSingleSequenceShortCircuits(t *testing.T) {
	a := testAligner(t, 10, 5, 20)
	sequences := []cluster.Sequence{mustSeq(t, "MKT", "g1", 1, 0, 0)}
	d := New(sequences, a, Config{MergeThreads: 1, DupRemovalThresh: 1000})
	final := d.Run(1)
	assert.Equal(t, 1, final.Size())
}

func TestRunEmptyInputReturnsEmptySet(t *testing.T) {
	a := testAligner(t, 10, 5, 20)
	d := New(nil, a, Config{MergeThreads: 1, DupRemovalThresh: 1000})
	final := d.Run(1)
	assert.Equal(t, 0, final.Size())
}

// TestRunFinalizesAgainstOldSet exercises the -f/--file incremental-merge
// supplemented feature: a seeded old set is folded in as a final step.
func TestRunFinalizesAgainstOldSet(t *testing.T) {
	a := testAligner(t, 10, 5, 20)
	oldSet := cluster.NewSingletonSet(mustSeq(t, "MKTMKTMKTMKT", "old", 1, 0, 100))
	sequences := []cluster.Sequence{
		mustSeq(t, "MKTMKTMKTMKT", "g1", 1, 0, 0),
		mustSeq(t, "QQQQQQQQQQQQ", "g2", 1, 0, 1),
	}
	d := New(sequences, a, Config{MergeThreads: 1, DupRemovalThresh: 1000, OldSet: oldSet})
	final := d.Run(2)

	seen := make(map[uint32]bool)
	for _, c := range final.Clusters {
		for _, id := range c.MemberIDs() {
			seen[id] = true
		}
	}
	assert.True(t, seen[100], "old set's sequence must survive into the final result")
}
