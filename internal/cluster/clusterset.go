package cluster

import (
	"sort"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/log"

	"github.com/alpae/clustermerge/internal/aligner"
)

// Set is an ordered list of clusters, typically sorted by descending
// representative length (spec.md §3). Invariants: no member is
// fully-merged; post-dedup no two clusters share a member-ID set.
type Set struct {
	Clusters []*Cluster
}

// NewSet builds an empty set with room for n clusters.
func NewSet(n int) *Set { return &Set{Clusters: make([]*Cluster, 0, n)} }

// NewSingletonSet builds a one-cluster set around a single sequence.
func NewSingletonSet(seq Sequence) *Set {
	return &Set{Clusters: []*Cluster{NewCluster(seq)}}
}

// Size is the number of clusters in the set.
func (s *Set) Size() int { return len(s.Clusters) }

// AddCluster appends c to the set.
func (s *Set) AddCluster(c *Cluster) { s.Clusters = append(s.Clusters, c) }

// sortByRepLengthDesc sorts clusters so larger representatives come first,
// improving scheduling overlap for subsequent merges (spec.md §4.3).
func (s *Set) sortByRepLengthDesc() {
	sort.Slice(s.Clusters, func(i, j int) bool {
		return s.Clusters[i].Rep().Len() > s.Clusters[j].Rep().Len()
	})
}

// MergeClusters produces a new set from `this ∪ other`, per spec.md §4.3's
// sequential merge decision logic.
func (s *Set) MergeClusters(other *Set, a *aligner.ProteinAligner) *Set {
	out := NewSet(len(s.Clusters) + len(other.Clusters))

	for _, c := range s.Clusters {
		for _, cOther := range other.Clusters {
			if cOther.IsFullyMerged() || !c.PassesThreshold(cOther, a) {
				continue
			}
			alignment, err := c.AlignReps(cOther, a)
			if err != nil {
				continue
			}
			u1 := c.Rep().Len() - (alignment.Seq1Max - alignment.Seq1Min)
			u2 := cOther.Rep().Len() - (alignment.Seq2Max - alignment.Seq2Min)

			switch {
			case u1 < a.MaxUncovered() && alignment.Score > a.MinFullMergeScore():
				for _, seq := range c.Sequences() {
					cOther.AddSequence(seq)
				}
				c.SetFullyMerged()
			case u2 < a.MaxUncovered() && alignment.Score > a.MinFullMergeScore():
				for _, seq := range cOther.Sequences() {
					c.AddSequence(seq)
				}
				cOther.SetFullyMerged()
			default:
				c.Merge(cOther, a)
			}
			if c.IsFullyMerged() {
				break
			}
		}
		if !c.IsFullyMerged() {
			out.Clusters = append(out.Clusters, c)
		}
	}

	for _, cOther := range other.Clusters {
		if !cOther.IsFullyMerged() {
			out.Clusters = append(out.Clusters, cOther)
		}
	}

	out.sortByRepLengthDesc()
	return out
}

// MergeClusterLocked compares cluster (owned exclusively by the calling
// worker, needs no lock) against every cluster of s, locking each
// candidate around its fully-merged check and any mutation — spec.md
// §4.3's MergeClusterLocked.
func (s *Set) MergeClusterLocked(c *Cluster, a *aligner.ProteinAligner) {
	for _, cOther := range s.Clusters {
		if cOther.IsFullyMerged() || !c.PassesThreshold(cOther, a) {
			continue
		}
		alignment, err := c.AlignReps(cOther, a)
		if err != nil {
			continue
		}
		u1 := c.Rep().Len() - (alignment.Seq1Max - alignment.Seq1Min)
		u2 := cOther.Rep().Len() - (alignment.Seq2Max - alignment.Seq2Min)

		switch {
		case u1 < a.MaxUncovered() && alignment.Score > a.MinFullMergeScore():
			cOther.Lock()
			if cOther.IsFullyMerged() {
				cOther.Unlock()
				continue
			}
			for _, seq := range c.Sequences() {
				cOther.AddSequence(seq)
			}
			c.SetFullyMerged()
			cOther.Unlock()
			return
		case u2 < a.MaxUncovered() && alignment.Score > a.MinFullMergeScore():
			cOther.Lock()
			if cOther.IsFullyMerged() {
				cOther.Unlock()
				continue
			}
			for _, seq := range cOther.Sequences() {
				c.AddSequence(seq)
			}
			cOther.SetFullyMerged()
			cOther.Unlock()
		default:
			cOther.Lock()
			if cOther.IsFullyMerged() {
				cOther.Unlock()
				continue
			}
			c.Merge(cOther, a)
			cOther.Unlock()
		}
	}
}

// MergeClustersParallel is the parallel variant of MergeClusters: it
// enqueues one work item per cluster of s (each compared against every
// cluster of other via MergeClusterLocked) and rebuilds the surviving set
// once all workers finish (spec.md §4.3). run is the caller-supplied fan-out
// (grounded on traverse.Each — see internal/merge).
func (s *Set) MergeClustersParallel(other *Set, a *aligner.ProteinAligner, run func(n int, fn func(i int) error)) *Set {
	out := NewSet(len(s.Clusters) + len(other.Clusters))

	run(len(s.Clusters), func(i int) error {
		other.MergeClusterLocked(s.Clusters[i], a)
		return nil
	})

	for _, cOther := range other.Clusters {
		if !cOther.IsFullyMerged() {
			out.Clusters = append(out.Clusters, cOther)
		}
	}
	for _, c := range s.Clusters {
		if !c.IsFullyMerged() {
			out.Clusters = append(out.Clusters, c)
		}
	}

	out.sortByRepLengthDesc()
	return out
}

// DefaultDupRemovalThreshold mirrors the original's "only run dedup above
// this size" guard (spec.md §4.3); callers may pass another threshold to
// RemoveDuplicatesIfLarge.
const DefaultDupRemovalThreshold = 1000

// RemoveDuplicates sorts each cluster's member-ID list, hashes it with
// seahash (grounded on encoding/bamprovider/concurrentmap.go's
// seahash.Sum64 use), and marks collisions as duplicate. It returns the
// number of duplicates found.
func (s *Set) RemoveDuplicates() int {
	seen := make(map[uint64][][]uint32, len(s.Clusters))
	numDups := 0
	for _, c := range s.Clusters {
		ids := c.MemberIDs()
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		h := hashIDs(ids)
		collided := false
		for _, existing := range seen[h] {
			if idsEqual(existing, ids) {
				collided = true
				break
			}
		}
		if collided {
			c.SetDuplicate()
			numDups++
		} else {
			seen[h] = append(seen[h], ids)
		}
	}
	log.Info.Printf("found %d duplicate clusters", numDups)
	return numDups
}

// RemoveDuplicatesIfLarge runs RemoveDuplicates only when the set exceeds
// threshold, avoiding O(sum(|c|*log|c|)) cost on small sets (spec.md §4.3).
func (s *Set) RemoveDuplicatesIfLarge(threshold int) int {
	if s.Size() <= threshold {
		return 0
	}
	return s.RemoveDuplicates()
}

func hashIDs(ids []uint32) uint64 {
	buf := make([]byte, len(ids)*4)
	for i, id := range ids {
		buf[4*i] = byte(id)
		buf[4*i+1] = byte(id >> 8)
		buf[4*i+2] = byte(id >> 16)
		buf[4*i+3] = byte(id >> 24)
	}
	return seahash.Sum64(buf)
}

func idsEqual(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RebuildWithoutFullyMerged drops every fully-merged cluster, matching the
// "dropped by the next set rebuild" invariant of spec.md §3.
func (s *Set) RebuildWithoutFullyMerged() {
	kept := s.Clusters[:0]
	for _, c := range s.Clusters {
		if !c.IsFullyMerged() {
			kept = append(kept, c)
		}
	}
	s.Clusters = kept
}
