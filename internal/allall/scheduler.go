package allall

import (
	"sort"

	"github.com/grailbio/base/log"

	"github.com/alpae/clustermerge/internal/cluster"
)

// WorkItem is one scheduled intra-cluster alignment (spec.md §4.5).
type WorkItem struct {
	Seq1, Seq2  cluster.Sequence
	ClusterSize int
}

// Stats tracks the scheduler's counters (spec.md §7's "num_avoided" and
// "num_dups_found", the supplemented progress metrics).
type Stats struct {
	NumScheduled int
	NumAvoided   int // canonical pair already seen
	NumDupsFound int // cluster marked duplicate by RemoveDuplicates, skipped entirely
}

// Schedule canonicalises and deduplicates every unordered pair of sequences
// within each non-duplicate cluster of set, emitting one WorkItem per
// surviving pair to emit. set is assumed already passed through
// RemoveDuplicates (spec.md §4.5: "Given the final set: mark duplicates...").
func Schedule(set *cluster.Set, capacityHint int, emit func(WorkItem)) Stats {
	cm := NewCandidateMap(capacityHint, 256)
	var stats Stats

	// spec.md §4.5: sort clusters by descending member count before
	// scheduling. Sorted on a copy so the caller's set ordering (by
	// representative length) is left untouched.
	clusters := make([]*cluster.Cluster, len(set.Clusters))
	copy(clusters, set.Clusters)
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Size() > clusters[j].Size() })

	for _, c := range clusters {
		if c.IsDuplicate() {
			stats.NumDupsFound++
			continue
		}
		members := c.Sequences()
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				s1, s2 := canonicalize(members[i], members[j])
				if cm.InsertIfAbsent(s1.AbsoluteID, s2.AbsoluteID) {
					emit(WorkItem{Seq1: s1, Seq2: s2, ClusterSize: c.Size()})
					stats.NumScheduled++
				} else {
					stats.NumAvoided++
				}
			}
		}
	}
	log.Debug.Printf("all-all scheduling: %d scheduled, %d avoided, %d duplicate clusters skipped",
		stats.NumScheduled, stats.NumAvoided, stats.NumDupsFound)
	return stats
}

// canonicalize orders a pair of sequences by (genome_size desc, genome_name
// asc, genome_index asc) so the same orientation is produced for any given
// sequence pair regardless of discovery order (spec.md §4.5).
func canonicalize(a, b cluster.Sequence) (cluster.Sequence, cluster.Sequence) {
	if less(b, a) {
		return b, a
	}
	return a, b
}

// less reports whether a should sort before b under the canonical ordering.
func less(a, b cluster.Sequence) bool {
	if a.GenomeSize != b.GenomeSize {
		return a.GenomeSize > b.GenomeSize
	}
	if a.GenomeName != b.GenomeName {
		return a.GenomeName < b.GenomeName
	}
	return a.GenomeIndex < b.GenomeIndex
}
