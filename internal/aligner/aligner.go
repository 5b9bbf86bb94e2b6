// Package aligner implements the aligner façade of spec.md §4.2: it selects
// a scoring environment, drives the swkernel striped kernel, and returns
// Alignment results (endpoints, score, PAM distance/variance).
package aligner

import (
	"math"

	"github.com/grailbio/base/errors"

	"github.com/alpae/clustermerge/internal/env"
	"github.com/alpae/clustermerge/internal/swkernel"
)

// Alignment mirrors spec.md §3's Alignment result.
type Alignment struct {
	Seq1Min, Seq1Max int
	Seq2Min, Seq2Max int
	Score            float64
	PAMDistance      float64
	PAMVariance      float64
	Seq1Length       int
	Seq2Length       int
	Env              *env.Environment
}

// ProteinAligner wraps the swkernel with the aligner thresholds. It holds no
// reusable scratch buffers: every call builds and frees its own profile, so
// one ProteinAligner may be shared across goroutines (only the
// numAlignments counter is unsynchronized).
type ProteinAligner struct {
	envs         *env.Environments
	minScore     int
	minFullMerge float64
	maxUncovered int

	numAlignments uint64 // approximate; not synchronized (spec.md §9 open question)
}

// Params are the aligner parameters of spec.md §6.
type Params struct {
	MinScore         int
	MaxAAUncovered   int
	MinFullMergeScore float64
	Blosum           bool
}

// DefaultParams matches the defaults listed in spec.md §6.
func DefaultParams() Params {
	return Params{MinScore: 181, MaxAAUncovered: 15, MinFullMergeScore: 250.0, Blosum: false}
}

// New builds a ProteinAligner over the shared, read-only Environments table.
func New(envs *env.Environments, p Params) *ProteinAligner {
	return &ProteinAligner{
		envs:         envs,
		minScore:     p.MinScore,
		minFullMerge: p.MinFullMergeScore,
		maxUncovered: p.MaxAAUncovered,
	}
}

// NumAlignments returns a monotonically increasing (but non-atomic, and
// thus approximate across goroutines) count used only for progress
// reporting, matching spec.md §4.2 / §9.
func (a *ProteinAligner) NumAlignments() uint64 { return a.numAlignments }

// MaxUncovered returns the configured max_n_aa_not_covered threshold.
func (a *ProteinAligner) MaxUncovered() int { return a.maxUncovered }

// MinFullMergeScore returns the configured min_full_merge_score threshold.
func (a *ProteinAligner) MinFullMergeScore() float64 { return a.minFullMerge }

// PassesThreshold runs the score-only kernel at the cheapest configured
// environment and compares against min_score (spec.md §4.1).
func (a *ProteinAligner) PassesThreshold(seq1, seq2 []byte) bool {
	e := a.envs.Default()
	q := env.Encode(seq1)
	d := env.Encode(seq2)
	p := swkernel.BuildProfile(q, e.Matrix)
	defer p.Free()
	r := swkernel.ScoreOnly(p, d, int32(e.GapOpen), int32(e.GapExtend))
	a.numAlignments++
	if r.Saturated {
		return true // saturating score always exceeds any reasonable threshold
	}
	return int(r.Score) >= a.minScore
}

// LogPamPassesThreshold uses the logPAM1 environment specifically to
// estimate a cheap PAM distance before committing to a full double
// alignment (spec.md §4.1).
func (a *ProteinAligner) LogPamPassesThreshold(seq1, seq2 []byte) bool {
	q := env.Encode(seq1)
	d := env.Encode(seq2)
	p := swkernel.BuildProfile(q, a.envs.LogPAM1.Matrix)
	defer p.Free()
	r := swkernel.ScoreOnly(p, d, int32(a.envs.LogPAM1.GapOpen), int32(a.envs.LogPAM1.GapExtend))
	a.numAlignments++
	if r.Saturated {
		return true
	}
	return int(r.Score) >= a.minScore
}

// AlignLocal computes a local alignment under the aligner's default
// environment and returns its endpoints and score (spec.md §4.2).
func (a *ProteinAligner) AlignLocal(seq1, seq2 []byte) (Alignment, error) {
	return a.alignWithEnv(seq1, seq2, a.envs.Default())
}

// AlignSingle is a single-environment alignment under the default
// environment (spec.md §4.2); it runs the same code as AlignLocal.
func (a *ProteinAligner) AlignSingle(seq1, seq2 []byte) (Alignment, error) {
	return a.alignWithEnv(seq1, seq2, a.envs.Default())
}

func (a *ProteinAligner) alignWithEnv(seq1, seq2 []byte, e *env.Environment) (Alignment, error) {
	if len(seq1) == 0 || len(seq2) == 0 {
		return Alignment{}, errors.E(errors.Invalid, "empty sequence passed to aligner")
	}
	q := env.Encode(seq1)
	d := env.Encode(seq2)
	ep := swkernel.Locate(q, d, e)
	a.numAlignments++
	if ep.Saturated {
		return Alignment{}, errors.E(errors.Internal, "alignment saturated")
	}
	aq, ad := swkernel.Traceback(q[ep.QueryMin:ep.QueryMax], d[ep.DBMin:ep.DBMax], e)
	pamDist, pamVar := estimatePAM(aq, ad)
	return Alignment{
		Seq1Min:     ep.QueryMin,
		Seq1Max:     ep.QueryMax,
		Seq2Min:     ep.DBMin,
		Seq2Max:     ep.DBMax,
		Score:       float64(ep.Score),
		PAMDistance: pamDist,
		PAMVariance: pamVar,
		Seq1Length:  alignedLen(aq),
		Seq2Length:  alignedLen(ad),
		Env:         e,
	}, nil
}

// AlignDouble performs the two-stage alignment of spec.md §4.1: locate with
// the current environment, refine with the family environment whose PAM
// distance best matches the initial estimate, then recompute the global
// alignment in that refined window. If stopAtThreshold is true and the
// first-pass score already fails PassesThreshold, AlignDouble returns early
// without the refinement pass.
func (a *ProteinAligner) AlignDouble(seq1, seq2 []byte, stopAtThreshold bool, e *env.Environment) (Alignment, error) {
	if len(seq1) == 0 || len(seq2) == 0 {
		return Alignment{}, errors.E(errors.Invalid, "empty sequence passed to aligner")
	}
	first, err := a.alignWithEnv(seq1, seq2, e)
	if err != nil {
		return Alignment{}, err
	}
	if stopAtThreshold && first.Score < float64(a.minScore) {
		return first, nil
	}
	refined := a.envs.ClosestTo(first.PAMDistance)
	if refined == e {
		return first, nil
	}
	return a.alignWithEnv(seq1, seq2, refined)
}

// estimatePAM derives a PAM-distance estimate and its variance from an
// aligned string pair via fractional identity. The exact maximum-likelihood
// Dayhoff estimator used by the original implementation's
// AlignmentEnvironment table was not available to transliterate (see
// DESIGN.md); this is a standard identity-to-PAM approximation good enough
// to pick a refinement environment and report a monotonic distance metric.
func estimatePAM(alignedQuery, alignedDB []byte) (float64, float64) {
	n := len(alignedQuery)
	if n == 0 {
		return 0, 0
	}
	identical := 0
	aligned := 0
	for i := 0; i < n; i++ {
		if alignedQuery[i] == '-' || alignedDB[i] == '-' {
			continue
		}
		aligned++
		if alignedQuery[i] == alignedDB[i] {
			identical++
		}
	}
	if aligned == 0 {
		return 250, 100 // maximally diverged, high uncertainty
	}
	identity := float64(identical) / float64(aligned)
	if identity > 0.99 {
		identity = 0.99
	}
	if identity < 0.05 {
		identity = 0.05
	}
	// Dayhoff-style approximation: PAM distance grows roughly as
	// -ln(identity) * 100, clamped to the family's practical range.
	pamDistance := -math.Log(identity) * 100
	if pamDistance > 1000 {
		pamDistance = 1000
	}
	// Variance shrinks with alignment length: short alignments give noisy
	// PAM estimates.
	variance := pamDistance * pamDistance / float64(aligned)
	return pamDistance, variance
}

func alignedLen(s []byte) int {
	n := 0
	for _, c := range s {
		if c != '-' {
			n++
		}
	}
	return n
}
