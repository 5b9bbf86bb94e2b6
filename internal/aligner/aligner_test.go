package aligner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alpae/clustermerge/internal/env"
)

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

func testEnvs() *env.Environments {
	e := env.Environment{PAMDistance: 1, GapOpen: -10, GapExtend: -1, Matrix: identityMatrix()}
	far := env.Environment{PAMDistance: 200, GapOpen: -10, GapExtend: -1, Matrix: identityMatrix()}
	return &env.Environments{LogPAM1: e, Family: []env.Environment{e, far}, MinScore: 10}
}

// TestPassesThresholdIdenticalSequences exercises the score-only fast path
// (spec.md §4.1): two identical sequences well above min_score pass.
func TestPassesThresholdIdenticalSequences(t *testing.T) {
	a := New(testEnvs(), Params{MinScore: 10, MaxAAUncovered: 5, MinFullMergeScore: 20})
	seq := []byte("MKTAYIAKQRQISFVKSHFSRQLEERLGLIEVQ")
	assert.True(t, a.PassesThreshold(seq, seq))
}

func TestPassesThresholdUnrelatedSequencesFails(t *testing.T) {
	a := New(testEnvs(), Params{MinScore: 1000, MaxAAUncovered: 5, MinFullMergeScore: 20})
	assert.False(t, a.PassesThreshold([]byte("MKTAYIAK"), []byte("WWWWWWWW")))
}

// TestAlignLocalScoreMatchesScoreOnlyFastPath exercises spec.md §8's "SW
// kernel score-only vs traceback" property: the score Locate finds for an
// exact self-alignment equals the traceback window's full length times the
// match score, with no gaps introduced. That product is the score the
// score-only kernel gives identical sequences under this matrix (see
// swkernel's TestScoreOnlyIdenticalSequencesScoreMaximally); the score-only
// path itself is not run here.
func TestAlignLocalScoreMatchesScoreOnlyFastPath(t *testing.T) {
	a := New(testEnvs(), Params{MinScore: 10, MaxAAUncovered: 5, MinFullMergeScore: 1_000_000})
	seq := []byte("MKTAYIAKQRQISFVKSHFSRQ")
	al, err := a.AlignLocal(seq, seq)
	assert.NoError(t, err)
	assert.Equal(t, float64(len(seq)*6), al.Score)
	assert.Equal(t, 0, al.Seq1Min)
	assert.Equal(t, len(seq), al.Seq1Max)
	assert.Equal(t, len(seq), al.Seq1Length)
}

func TestAlignLocalRejectsEmptySequence(t *testing.T) {
	a := New(testEnvs(), Params{MinScore: 10, MaxAAUncovered: 5, MinFullMergeScore: 20})
	_, err := a.AlignLocal(nil, []byte("MKT"))
	assert.Error(t, err)
}

// TestAlignDoubleStopsEarlyWhenFirstPassFailsThreshold exercises the
// stop_at_threshold short-circuit (spec.md §4.1).
func TestAlignDoubleStopsEarlyWhenFirstPassFailsThreshold(t *testing.T) {
	a := New(testEnvs(), Params{MinScore: 1000, MaxAAUncovered: 5, MinFullMergeScore: 20})
	envs := testEnvs()
	al, err := a.AlignDouble([]byte("MKTAYIAK"), []byte("WWWWWWWW"), true, &envs.LogPAM1)
	assert.NoError(t, err)
	assert.True(t, al.Score < 1000)
}

func TestNumAlignmentsIncrementsPerCall(t *testing.T) {
	a := New(testEnvs(), Params{MinScore: 10, MaxAAUncovered: 5, MinFullMergeScore: 20})
	seq := []byte("MKTAYIAK")
	before := a.NumAlignments()
	a.PassesThreshold(seq, seq)
	assert.Equal(t, before+1, a.NumAlignments())
}
