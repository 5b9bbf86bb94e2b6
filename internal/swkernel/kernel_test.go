package swkernel

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

// TestScoreOnlyIdenticalSequencesScoreMaximally checks that two identical
// encoded sequences score len*matchScore under an identity matrix with no
// gaps needed.
func TestScoreOnlyIdenticalSequencesScoreMaximally(t *testing.T) {
	q := env.Encode([]byte("MKTAYIAKQR"))
	matrix := identityMatrix()
	profile := BuildProfile(q, matrix)
	defer profile.Free()

	r := ScoreOnly(profile, q, -10, -1)
	assert.Equal(t, int32(len(q)*6), r.Score)
	assert.False(t, r.Saturated)
}

func TestScoreOnlyUnrelatedSequencesScoreLow(t *testing.T) {
	q := env.Encode([]byte("MKTAYIAKQR"))
	d := env.Encode([]byte("WWWWWWWWWW"))
	matrix := identityMatrix()
	profile := BuildProfile(q, matrix)
	defer profile.Free()

	r := ScoreOnly(profile, d, -10, -1)
	assert.True(t, r.Score <= 6) // at most one incidental match, no run of identity
}

func TestScoreOnlyHandlesShortQueryUnderOneStripe(t *testing.T) {
	q := env.Encode([]byte("MK"))
	matrix := identityMatrix()
	profile := BuildProfile(q, matrix)
	defer profile.Free()

	r := ScoreOnly(profile, q, -10, -1)
	assert.Equal(t, int32(12), r.Score)
}

func TestLocateRecoversFullWindowForIdenticalSequences(t *testing.T) {
	q := env.Encode([]byte("MKTAYIAKQRQISFVKSHFSRQLEERLGLIEVQ"))
	e := &env.Environment{GapOpen: -10, GapExtend: -1, Matrix: identityMatrix()}
	ep := Locate(q, q, e)
	assert.Equal(t, 0, ep.QueryMin)
	assert.Equal(t, len(q), ep.QueryMax)
	assert.Equal(t, 0, ep.DBMin)
	assert.Equal(t, len(q), ep.DBMax)
}

func TestTracebackAlignsIdenticalSequencesWithNoGaps(t *testing.T) {
	q := env.Encode([]byte("MKTAYI"))
	e := &env.Environment{GapOpen: -10, GapExtend: -1, Matrix: identityMatrix()}
	aq, ad := Traceback(q, q, e)
	assert.Equal(t, len(q), len(aq))
	assert.Equal(t, len(q), len(ad))
	assert.NotContains(t, string(aq), "-")
}
