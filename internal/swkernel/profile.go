// Package swkernel implements the striped Smith-Waterman alignment kernel:
// an 8-lane-per-stripe profile (Farrar 2007) with a lazy-F correction pass,
// a score-only fast path, and a bounded-corridor global traceback used to
// recover alignment endpoints. See spec.md §4.1.
package swkernel

import (
	"github.com/grailbio/base/log"
	"golang.org/x/sys/unix"

	"github.com/alpae/clustermerge/internal/env"
)

// MaxScore16 is the int16 saturation ceiling; a kernel pass that reaches it
// is reported as Saturated so the caller can fall back (spec.md §4.1,
// "Saturation ... is reported as overflow").
const MaxScore16 = 0x7fff

// Profile is the per-query striped scoring table: for each of MatrixDim
// possible database residues a, for each stripe s in [0, SegLen), for each
// lane k in [0, 8), Profile.At(a, s, k) holds matrix[query[s+k*SegLen]][a].
//
// Construction is per-query and the backing storage is page-aligned and
// madvise(MADV_HUGEPAGE)-hinted (grounded on fusion/kmer_index.go's
// anonymous-mmap table allocation). A Profile is built for each kernel pass
// of a PassesThreshold/AlignLocal call, scored against that call's single
// database sequence, and freed when the call returns.
type Profile struct {
	QueryLen int
	SegLen   int
	data     []byte  // mmap-backed storage, MatrixDim*SegLen*8 int16 values
	table    []int16 // overlay of data
}

// BuildProfile constructs a striped profile for encoded query residues
// (already mapped through env.Encode) under the given scoring matrix.
func BuildProfile(query []byte, matrix env.Matrix) *Profile {
	segLen := (len(query) + 7) / 8
	if segLen == 0 {
		segLen = 1
	}
	n := env.MatrixDim * segLen * 8
	size := n * 2
	pageSize := unix.Getpagesize()
	mapSize := ((size + pageSize - 1) / pageSize) * pageSize
	if mapSize == 0 {
		mapSize = pageSize
	}
	data, err := unix.Mmap(-1, 0, mapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		log.Panic(err)
	}
	if err := unix.Madvise(data, unix.MADV_HUGEPAGE); err != nil {
		// Hugepage hinting is best-effort; not all kernels honor it.
		log.Debug.Printf("madvise(MADV_HUGEPAGE) failed: %v", err)
	}
	table := int16View(data)[:n]

	for a := 0; a < env.MatrixDim; a++ {
		base := a * segLen * 8
		for s := 0; s < segLen; s++ {
			for k := 0; k < 8; k++ {
				pos := s + k*segLen
				var v int16
				if pos < len(query) {
					v = int16(matrix.At(query[pos], byte(a)))
				}
				table[base+s*8+k] = v
			}
		}
	}

	return &Profile{QueryLen: len(query), SegLen: segLen, data: data, table: table}
}

// At returns the profile score for residue a at stripe s, lane k.
func (p *Profile) At(a, s, k int) int16 {
	return p.table[a*p.SegLen*8+s*8+k]
}

// Row returns the 8 lane scores of stripe s for residue a, used by the
// column update loop to avoid re-deriving the base offset per lane.
func (p *Profile) Row(a, s int) []int16 {
	base := a*p.SegLen*8 + s*8
	return p.table[base : base+8]
}

// Free releases the profile's backing storage. Callers must not use the
// Profile after calling Free.
func (p *Profile) Free() {
	if p.data != nil {
		_ = unix.Munmap(p.data)
		p.data = nil
		p.table = nil
	}
}
