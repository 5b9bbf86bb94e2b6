package cluster

import (
	"sync"

	"github.com/alpae/clustermerge/internal/aligner"
)

// Cluster is a non-empty ordered sequence of Sequences; the first element
// is the representative (spec.md §3). A mutex guards membership changes
// when the cluster is shared among goroutines (the parallel merge path);
// single-threaded callers may ignore the lock.
type Cluster struct {
	mu          sync.Mutex
	sequences   []Sequence
	fullyMerged bool
	duplicate   bool
}

// NewCluster builds a singleton cluster around one sequence.
func NewCluster(seq Sequence) *Cluster {
	return &Cluster{sequences: []Sequence{seq}}
}

// NewClusterFromSequences builds a cluster whose representative is
// sequences[0]; used when reconstructing a cluster from a marshalled
// member-ID list or a checkpointed clusters.json.
func NewClusterFromSequences(sequences []Sequence) *Cluster {
	c := &Cluster{sequences: make([]Sequence, len(sequences))}
	copy(c.sequences, sequences)
	return c
}

// Lock/Unlock expose the membership mutex to callers that must hold it
// across a read-then-mutate section (spec.md §4.3's MergeClusterLocked).
func (c *Cluster) Lock()   { c.mu.Lock() }
func (c *Cluster) Unlock() { c.mu.Unlock() }

// Rep returns the representative sequence (the cluster's first member).
func (c *Cluster) Rep() Sequence { return c.sequences[0] }

// Sequences returns the cluster's members. The returned slice must not be
// mutated; callers holding the cluster's lock may safely range over it.
func (c *Cluster) Sequences() []Sequence { return c.sequences }

// Size returns the number of member sequences.
func (c *Cluster) Size() int { return len(c.sequences) }

// IsFullyMerged reports whether this cluster has been absorbed into
// another and should be dropped on the next set rebuild.
func (c *Cluster) IsFullyMerged() bool { return c.fullyMerged }

// SetFullyMerged marks the cluster absorbed. Invariant: no further
// mutation of a fully-merged cluster is permitted (spec.md §3).
func (c *Cluster) SetFullyMerged() { c.fullyMerged = true }

// IsDuplicate reports whether another cluster has an identical member-ID
// set (set by RemoveDuplicates).
func (c *Cluster) IsDuplicate() bool { return c.duplicate }

// SetDuplicate marks the cluster as a duplicate, excluding it from
// alignment scheduling.
func (c *Cluster) SetDuplicate() { c.duplicate = true }

// AddSequence appends seq as a new member (not as representative).
func (c *Cluster) AddSequence(seq Sequence) {
	c.sequences = append(c.sequences, seq)
}

// PassesThreshold reports whether this cluster's representative passes the
// score-only threshold check against other's representative.
func (c *Cluster) PassesThreshold(other *Cluster, a *aligner.ProteinAligner) bool {
	return a.PassesThreshold(c.Rep().Residues, other.Rep().Residues)
}

// AlignReps aligns this cluster's representative against other's.
func (c *Cluster) AlignReps(other *Cluster, a *aligner.ProteinAligner) (aligner.Alignment, error) {
	return a.AlignLocal(c.Rep().Residues, other.Rep().Residues)
}

// Merge adds other's representative to c, then adds every remaining member
// of other that individually passes threshold against c's (possibly
// unchanged) representative — spec.md §4.3's "c.Merge(c_other)" case, which
// keeps both clusters.
func (c *Cluster) Merge(other *Cluster, a *aligner.ProteinAligner) {
	c.AddSequence(other.Rep())
	for _, seq := range other.Sequences()[1:] {
		if a.PassesThreshold(c.Rep().Residues, seq.Residues) {
			c.AddSequence(seq)
		}
	}
}

// MemberIDs returns the absolute IDs of every member in membership order
// (unsorted); RemoveDuplicates sorts them to detect identical-membership
// clusters.
func (c *Cluster) MemberIDs() []uint32 {
	ids := make([]uint32, len(c.sequences))
	for i, s := range c.sequences {
		ids[i] = s.AbsoluteID
	}
	return ids
}
