// Package cluster implements the Sequence/Cluster/ClusterSet data model of
// spec.md §3 and the single-node merge engine of §4.3/§4.4.
package cluster

import "github.com/grailbio/base/errors"

// MaxSequenceLength is the hard cap on a single input record (spec.md §6):
// any dataset record larger than this aborts the run.
const MaxSequenceLength = 60000

// Sequence is an immutable view over one input protein record. Residues is
// a non-owning slice into the chunk reader's buffer, valid for the
// lifetime of the run (spec.md §9, "Back references from cluster to set").
type Sequence struct {
	Residues    []byte
	GenomeName  string
	GenomeSize  uint32 // number of sequences in that genome
	GenomeIndex uint32 // ordinal within genome
	AbsoluteID  uint32 // globally unique, assigned in input order
}

// NewSequence validates length and constructs a Sequence.
func NewSequence(residues []byte, genomeName string, genomeSize, genomeIndex, absoluteID uint32) (Sequence, error) {
	if len(residues) == 0 {
		return Sequence{}, errors.E(errors.Invalid, "empty sequence record")
	}
	if len(residues) > MaxSequenceLength {
		return Sequence{}, errors.E(errors.Invalid, "sequence record exceeds", MaxSequenceLength, "bytes:", len(residues))
	}
	return Sequence{
		Residues:    residues,
		GenomeName:  genomeName,
		GenomeSize:  genomeSize,
		GenomeIndex: genomeIndex,
		AbsoluteID:  absoluteID,
	}, nil
}

// Len is the residue length of the sequence.
func (s Sequence) Len() int { return len(s.Residues) }
