// Package env loads and holds the scoring environments (PAM family and
// BLOSUM) used by the aligner: substitution matrices, gap penalties, and
// PAM-distance metadata, indexed by expected PAM distance.
package env

import (
	"encoding/json"
	"io/ioutil"
	"sort"

	"github.com/grailbio/base/errors"
)

// MatrixDim is the number of residue symbols a scoring matrix covers (20
// amino acids plus two wildcard/ambiguity codes), matching the 22x22
// matrices shipped in logPAM1.json / all_matrices.json.
const MatrixDim = 22

// Matrix is a MatrixDim x MatrixDim substitution matrix, flattened
// row-major, matching the JSON layout written by the matrix-generation
// tooling this package's JSON is loaded from.
type Matrix []float64

// At returns the substitution score for residue codes a, b in [0, MatrixDim).
func (m Matrix) At(a, b byte) float64 {
	return m[int(a)*MatrixDim+int(b)]
}

// Environment is a single scoring environment: a substitution matrix at a
// particular evolutionary (PAM) distance, with its affine gap penalties.
type Environment struct {
	PAMDistance float64 `json:"pam_distance"`
	GapOpen     float64 `json:"gap_open"`
	GapExtend   float64 `json:"gap_extend"`
	Matrix      Matrix  `json:"matrix"`
}

// Environments is the read-only, post-init-immutable table of scoring
// environments used for the whole run: logPAM1 (the base environment used
// for cheap threshold checks) plus the PAM-distance-indexed family loaded
// from all_matrices.json, and optionally BLOSUM62.
//
// The table is built once at startup and shared by reference across
// threads/goroutines; nothing in this package mutates an Environments after
// Load returns (design note in spec.md §9, "Global state").
type Environments struct {
	LogPAM1  Environment
	Family   []Environment // sorted ascending by PAMDistance
	Blosum62 *Environment
	MinScore int
}

type logPAM1JSON struct {
	GapOpen   float64 `json:"gap_open"`
	GapExtend float64 `json:"gap_extend"`
	Matrix    Matrix  `json:"matrix"`
}

type familyEntryJSON struct {
	PAMDistance float64 `json:"pam_distance"`
	GapOpen     float64 `json:"gap_open"`
	GapExtend   float64 `json:"gap_extend"`
	Matrix      Matrix  `json:"matrix"`
}

type allMatricesJSON struct {
	Matrices []familyEntryJSON `json:"matrices"`
}

type blosum62JSON struct {
	GapOpen   float64 `json:"gap_open"`
	GapExtend float64 `json:"gap_extend"`
	Matrix    Matrix  `json:"matrix"`
}

// Load reads logPAM1.json and all_matrices.json from dataDir (and, when
// useBlosum is set, BLOSUM62.json, which is then required) and builds the
// Environments table. minScore is stored as the table's MinScore; the
// aligner's threshold checks use their own configured min score.
func Load(dataDir string, minScore int, useBlosum bool) (*Environments, error) {
	logPAMPath := dataDir + "/logPAM1.json"
	logPAMBytes, err := ioutil.ReadFile(logPAMPath)
	if err != nil {
		return nil, errors.E(errors.NotExist, err, "loading", logPAMPath)
	}
	var logPAM logPAM1JSON
	if err := json.Unmarshal(logPAMBytes, &logPAM); err != nil {
		return nil, errors.E(errors.Invalid, err, "parsing", logPAMPath)
	}
	if len(logPAM.Matrix) != MatrixDim*MatrixDim {
		return nil, errors.E(errors.Invalid, "malformed logPAM1 matrix in", logPAMPath)
	}

	allPath := dataDir + "/all_matrices.json"
	allBytes, err := ioutil.ReadFile(allPath)
	if err != nil {
		return nil, errors.E(errors.NotExist, err, "loading", allPath)
	}
	var all allMatricesJSON
	if err := json.Unmarshal(allBytes, &all); err != nil {
		return nil, errors.E(errors.Invalid, err, "parsing", allPath)
	}
	if len(all.Matrices) == 0 {
		return nil, errors.E(errors.Invalid, "no matrices found in", allPath)
	}

	envs := &Environments{
		LogPAM1: Environment{
			PAMDistance: 1,
			GapOpen:     logPAM.GapOpen,
			GapExtend:   logPAM.GapExtend,
			Matrix:      logPAM.Matrix,
		},
		MinScore: minScore,
	}
	for _, e := range all.Matrices {
		if len(e.Matrix) != MatrixDim*MatrixDim {
			return nil, errors.E(errors.Invalid, "malformed matrix at pam distance", e.PAMDistance, "in", allPath)
		}
		envs.Family = append(envs.Family, Environment{
			PAMDistance: e.PAMDistance,
			GapOpen:     e.GapOpen,
			GapExtend:   e.GapExtend,
			Matrix:      e.Matrix,
		})
	}
	sort.Slice(envs.Family, func(i, j int) bool {
		return envs.Family[i].PAMDistance < envs.Family[j].PAMDistance
	})

	if useBlosum {
		blosumPath := dataDir + "/BLOSUM62.json"
		blosumBytes, err := ioutil.ReadFile(blosumPath)
		if err != nil {
			return nil, errors.E(errors.NotExist, err, "loading", blosumPath)
		}
		var b blosum62JSON
		if err := json.Unmarshal(blosumBytes, &b); err != nil {
			return nil, errors.E(errors.Invalid, err, "parsing", blosumPath)
		}
		if len(b.Matrix) != MatrixDim*MatrixDim {
			return nil, errors.E(errors.Invalid, "malformed matrix in", blosumPath)
		}
		envs.Blosum62 = &Environment{GapOpen: b.GapOpen, GapExtend: b.GapExtend, Matrix: b.Matrix}
	}

	return envs, nil
}

// Default returns the environment used for cheap score-only threshold
// checks: BLOSUM62 when configured, else logPAM1.
func (e *Environments) Default() *Environment {
	if e.Blosum62 != nil {
		return e.Blosum62
	}
	return &e.LogPAM1
}

// ClosestTo returns the family environment whose PAMDistance is nearest to
// the estimate, used by AlignDouble's refinement step (spec.md §4.1).
func (e *Environments) ClosestTo(estimatedPAM float64) *Environment {
	best := &e.Family[0]
	bestDiff := absF(e.Family[0].PAMDistance - estimatedPAM)
	for i := 1; i < len(e.Family); i++ {
		d := absF(e.Family[i].PAMDistance - estimatedPAM)
		if d < bestDiff {
			bestDiff = d
			best = &e.Family[i]
		}
	}
	return best
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
