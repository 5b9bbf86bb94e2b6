package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alpae/clustermerge/internal/cluster"
)

func mustSeq(t *testing.T, residues, genome string, genomeSize, genomeIndex, absoluteID uint32) cluster.Sequence {
	s, err := cluster.NewSequence([]byte(residues), genome, genomeSize, genomeIndex, absoluteID)
	assert.NoError(t, err)
	return s
}

func TestWriteLoadClustersRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clusters.json")

	byID := map[uint32]cluster.Sequence{
		0: mustSeq(t, "MKT", "g1", 1, 0, 0),
		1: mustSeq(t, "MKT", "g2", 1, 0, 1),
	}
	lookup := func(id uint32) (cluster.Sequence, bool) { s, ok := byID[id]; return s, ok }

	set := cluster.NewSet(1)
	c := cluster.NewCluster(byID[0])
	c.AddSequence(byID[1])
	set.AddCluster(c)

	assert.NoError(t, WriteClusters(path, []string{"g1", "g2"}, set))

	loaded, err := LoadClusters(path, lookup)
	assert.NoError(t, err)
	assert.Equal(t, 1, loaded.Size())
	assert.ElementsMatch(t, []uint32{0, 1}, loaded.Clusters[0].MemberIDs())
}

func TestWriteClustersSkipsDuplicateFlaggedClusters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clusters.json")

	kept := cluster.NewCluster(mustSeq(t, "MKT", "g1", 1, 0, 0))
	dup := cluster.NewCluster(mustSeq(t, "QQQ", "g1", 1, 1, 1))
	dup.SetDuplicate()
	set := cluster.NewSet(2)
	set.AddCluster(kept)
	set.AddCluster(dup)

	assert.NoError(t, WriteClusters(path, nil, set))
	loaded, err := LoadClusters(path, func(id uint32) (cluster.Sequence, bool) {
		if id == 0 {
			return mustSeq(t, "MKT", "g1", 1, 0, 0), true
		}
		return cluster.Sequence{}, false
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, loaded.Size())
}

func TestMatchWriterAppendsNDJSONRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matches.jsonl")

	w, err := NewMatchWriter(path)
	assert.NoError(t, err)
	assert.NoError(t, w.Write(MatchRecord{Seq1ID: 1, Seq2ID: 2, Score: 99.5}))
	assert.NoError(t, w.Write(MatchRecord{Seq1ID: 3, Seq2ID: 4, Score: 10}))
	assert.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"seq1_id":1`)
	assert.Contains(t, string(data), `"seq1_id":3`)
}
