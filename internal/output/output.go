// Package output writes the controller's final clusters.json and the
// per-worker all-all match files (spec.md §6), using encoding/json the same
// way cmd/bio-pamtool/checksum.go does for its own small summary file.
package output

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/grailbio/base/errors"

	"github.com/alpae/clustermerge/internal/cluster"
)

// LoadClusters reads a previously-written clusters.json and reconstructs a
// live cluster.Set via lookup, supporting the incremental-merge mode
// (-f/--file, spec.md §6/§7).
func LoadClusters(path string, lookup func(absoluteID uint32) (cluster.Sequence, bool)) (*cluster.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(errors.NotExist, "output: open", path, ":", err)
	}
	defer f.Close()

	var in ClustersFile
	if err := json.NewDecoder(f).Decode(&in); err != nil {
		return nil, errors.E(errors.Invalid, "output: decode", path, ":", err)
	}

	set := cluster.NewSet(len(in.Clusters))
	for _, members := range in.Clusters {
		seqs := make([]cluster.Sequence, 0, len(members))
		for _, m := range members {
			seq, ok := lookup(m.AbsoluteIndex)
			if !ok {
				return nil, errors.E(errors.NotExist, "output: unknown sequence id in", path, ":", m.AbsoluteIndex)
			}
			seqs = append(seqs, seq)
		}
		if len(seqs) == 0 {
			continue
		}
		set.AddCluster(cluster.NewClusterFromSequences(seqs))
	}
	return set, nil
}

// ClusterMember mirrors spec.md §6's per-member output record.
type ClusterMember struct {
	AbsoluteIndex uint32
	Genome        string
	Index         uint32
}

// ClustersFile mirrors spec.md §6's clusters.json shape.
type ClustersFile struct {
	Datasets []string          `json:"datasets"`
	Clusters [][]ClusterMember `json:"clusters"`
}

// WriteClusters serialises set to path as clusters.json.
func WriteClusters(path string, datasets []string, set *cluster.Set) error {
	out := ClustersFile{Datasets: datasets}
	for _, c := range set.Clusters {
		if c.IsDuplicate() {
			continue
		}
		members := make([]ClusterMember, 0, c.Size())
		for _, s := range c.Sequences() {
			members = append(members, ClusterMember{
				AbsoluteIndex: s.AbsoluteID,
				Genome:        s.GenomeName,
				Index:         s.GenomeIndex,
			})
		}
		out.Clusters = append(out.Clusters, members)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.E(errors.Internal, "output: create", path, ":", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return errors.E(errors.Internal, "output: encode clusters.json:", err)
	}
	return nil
}

// MatchRecord mirrors spec.md §6's per-pair all-all output record.
type MatchRecord struct {
	Seq1ID      uint32  `json:"seq1_id"`
	Seq2ID      uint32  `json:"seq2_id"`
	Score       float64 `json:"score"`
	PAMDistance float64 `json:"pam_distance"`
	PAMVariance float64 `json:"pam_variance"`
	Seq1Range   [2]int  `json:"seq1_range"`
	Seq2Range   [2]int  `json:"seq2_range"`
}

// MatchWriter appends newline-delimited JSON match records to one
// per-worker output file (spec.md §6: "per-worker match files... one record
// per aligned pair").
type MatchWriter struct {
	f   *os.File
	buf *bufio.Writer
	enc *json.Encoder
}

// NewMatchWriter opens (creating or truncating) path for appended match
// records.
func NewMatchWriter(path string) (*MatchWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.E(errors.Internal, "output: create", path, ":", err)
	}
	buf := bufio.NewWriter(f)
	return &MatchWriter{f: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Write appends one match record.
func (w *MatchWriter) Write(r MatchRecord) error {
	if err := w.enc.Encode(r); err != nil {
		return errors.E(errors.Internal, "output: write match record:", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *MatchWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		return errors.E(errors.Internal, "output: flush:", err)
	}
	return w.f.Close()
}
