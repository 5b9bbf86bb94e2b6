package dist

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alpae/clustermerge/internal/aligner"
	"github.com/alpae/clustermerge/internal/cluster"
	"github.com/alpae/clustermerge/internal/env"
	"github.com/alpae/clustermerge/internal/wire"
)

func mustSeq(t *testing.T, residues, genome string, genomeSize, genomeIndex, absoluteID uint32) cluster.Sequence {
	s, err := cluster.NewSequence([]byte(residues), genome, genomeSize, genomeIndex, absoluteID)
	assert.NoError(t, err)
	return s
}

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

func testAligner(t *testing.T) *aligner.ProteinAligner {
	e := env.Environment{PAMDistance: 1, GapOpen: -10, GapExtend: -1, Matrix: identityMatrix()}
	envs := &env.Environments{LogPAM1: e, Family: []env.Environment{e}, MinScore: 10}
	return aligner.New(envs, aligner.Params{MinScore: 10, MaxAAUncovered: 5, MinFullMergeScore: 20})
}

func newTestController(t *testing.T, sequences []cluster.Sequence, batchSize, nseqsThreshold int) *Controller {
	c, err := NewController(sequences, testAligner(t), ControllerConfig{
		Server:         DefaultServerConfig("localhost"),
		BatchSize:      batchSize,
		NSeqsThreshold: nseqsThreshold,
	})
	assert.NoError(t, err)
	return c
}

func TestPopLargestTwoReturnsLargerFirst(t *testing.T) {
	c := newTestController(t, []cluster.Sequence{
		mustSeq(t, "AAA", "g", 1, 0, 0),
		mustSeq(t, "BBB", "g", 1, 1, 1),
		mustSeq(t, "CCC", "g", 1, 2, 2),
	}, 100, 100)
	c.queue[1].AddCluster(cluster.NewCluster(mustSeq(t, "DDD", "g", 1, 3, 3))) // queue[1] now size 2

	a, b := c.popLargestTwo()
	assert.True(t, a.Size() >= b.Size())
	assert.Equal(t, 1, len(c.queue))
}

func TestPartitionPartialsChunksByAccumulatedSize(t *testing.T) {
	set := cluster.NewSet(4)
	for i := 0; i < 4; i++ {
		set.AddCluster(cluster.NewCluster(mustSeq(t, "AAA", "g", 1, uint32(i), uint32(i))))
	}
	chunks := partitionPartials(4, 2, set)
	assert.Equal(t, []partialChunk{{0, 2}, {2, 4}}, chunks)
}

func TestPartitionPartialsEmitsTailChunkWhenThresholdNeverHit(t *testing.T) {
	set := cluster.NewSet(2)
	set.AddCluster(cluster.NewCluster(mustSeq(t, "AAA", "g", 1, 0, 0)))
	set.AddCluster(cluster.NewCluster(mustSeq(t, "BBB", "g", 1, 1, 1)))
	chunks := partitionPartials(2, 100, set)
	assert.Equal(t, []partialChunk{{0, 2}}, chunks)
}

func TestNextRequestBatchesSmallSets(t *testing.T) {
	c := newTestController(t, []cluster.Sequence{
		mustSeq(t, "AAA", "g1", 1, 0, 0),
		mustSeq(t, "BBB", "g2", 1, 0, 1),
	}, 100, 100) // batch size large relative to two singleton sets

	req, ok := c.nextRequest()
	assert.True(t, ok)
	assert.Equal(t, wire.TypeBatch, req.Type)
	assert.Len(t, req.BatchSets, 2)
}

func TestNextRequestSplitsLargeSetsIntoPartial(t *testing.T) {
	big := cluster.NewSet(0)
	for i := 0; i < 5; i++ {
		big.AddCluster(cluster.NewCluster(mustSeq(t, "AAA", "g", 1, uint32(i), uint32(i))))
	}
	other := cluster.NewSet(0)
	for i := 5; i < 10; i++ {
		other.AddCluster(cluster.NewCluster(mustSeq(t, "BBB", "g", 1, uint32(i), uint32(i))))
	}

	c := newTestController(t, nil, 1, 2) // batch size of 1 forces the partial path
	c.queue = []*cluster.Set{big, other}

	req, ok := c.nextRequest()
	assert.True(t, ok)
	assert.Equal(t, wire.TypePartial, req.Type)
	assert.Equal(t, 1, len(c.partial))
}

func TestBeginPartialMergeEmitsOneRequestPerClusterTimesChunk(t *testing.T) {
	big := cluster.NewSet(0)
	for i := 0; i < 3; i++ {
		big.AddCluster(cluster.NewCluster(mustSeq(t, "AAA", "g", 1, uint32(i), uint32(i))))
	}
	other := cluster.NewSet(0)
	for i := 3; i < 7; i++ {
		other.AddCluster(cluster.NewCluster(mustSeq(t, "BBB", "g", 1, uint32(i), uint32(i))))
	}

	c := newTestController(t, nil, 1, 2) // batch size of 1 forces the partial path; threshold 2 splits B into 2 chunks
	c.queue = []*cluster.Set{big, other}

	first, ok := c.nextRequest()
	assert.True(t, ok)
	assert.Equal(t, wire.TypePartial, first.Type)

	c.partialMu.Lock()
	item := c.partial[first.ID]
	c.partialMu.Unlock()
	assert.NotNil(t, item)
	assert.EqualValues(t, 8, item.NumExpected) // other (4 clusters) is the larger set A: 4 a-clusters x 2 chunks of big

	seen := map[[2]int32]bool{}
	seen[[2]int32{first.ClusterIndex, first.StartIndex}] = true
	for i := 0; i < 7; i++ {
		req, ok := c.nextRequest()
		assert.True(t, ok)
		assert.Equal(t, first.ID, req.ID)
		key := [2]int32{req.ClusterIndex, req.StartIndex}
		assert.False(t, seen[key], "duplicate (clusterIndex, startIndex) emitted: %v", key)
		seen[key] = true
	}
	assert.Len(t, seen, 8)

	// every pendingPartial request has been drained; no more work without a
	// fresh pair.
	assert.Empty(t, c.pendingPartial)
}

func TestPartialMergeFinalizesAfterAllExpectedResponses(t *testing.T) {
	big := cluster.NewSet(0)
	for i := 0; i < 2; i++ {
		big.AddCluster(cluster.NewCluster(mustSeq(t, "AAA", "g", 1, uint32(i), uint32(i))))
	}
	other := cluster.NewSet(0)
	for i := 2; i < 4; i++ {
		other.AddCluster(cluster.NewCluster(mustSeq(t, "BBB", "g", 1, uint32(i), uint32(i))))
	}

	c := newTestController(t, nil, 1, 100) // threshold large: 1 chunk per a-cluster
	c.queue = []*cluster.Set{big, other}
	startOutstanding := c.outstandingMerges

	var reqs []wire.Request
	req, ok := c.nextRequest()
	assert.True(t, ok)
	reqs = append(reqs, req)
	for {
		req, ok := c.nextRequest()
		if !ok {
			break
		}
		reqs = append(reqs, req)
	}
	assert.Len(t, reqs, 2) // 2 a-clusters x 1 chunk

	for i, r := range reqs {
		resp := wire.Response{
			ID:           r.ID,
			Type:         wire.TypePartial,
			StartIndex:   r.StartIndex,
			EndIndex:     r.EndIndex,
			ClusterIndex: r.ClusterIndex,
			Set:          wire.ToWireSet(cluster.NewSingletonSet(mustSeq(t, "AAA", "g", 1, uint32(i), uint32(i)))),
		}
		c.handleResponse(r, resp, nil)
	}

	c.partialMu.Lock()
	_, stillPending := c.partial[reqs[0].ID]
	c.partialMu.Unlock()
	assert.False(t, stillPending)
	assert.Equal(t, startOutstanding-1, c.outstandingMerges)
}

func TestHandleBatchResponseDecrementsByBatchSizeMinusOne(t *testing.T) {
	c := newTestController(t, []cluster.Sequence{
		mustSeq(t, "AAA", "g1", 1, 0, 0),
		mustSeq(t, "BBB", "g2", 1, 0, 1),
		mustSeq(t, "CCC", "g3", 1, 0, 2),
	}, 100, 100)
	startOutstanding := c.outstandingMerges

	req, ok := c.nextRequest()
	assert.True(t, ok)
	assert.Equal(t, wire.TypeBatch, req.Type)
	assert.Len(t, req.BatchSets, 3)

	merged := cluster.NewSingletonSet(mustSeq(t, "AAA", "g1", 1, 0, 0))
	resp := wire.Response{ID: req.ID, Type: wire.TypeBatch, Set: wire.ToWireSet(merged)}
	c.handleResponse(req, resp, nil)

	assert.Equal(t, startOutstanding-2, c.outstandingMerges) // 3 sets collapsed to 1: 2 merges completed
}

func TestRequeueBatchRestoresSetsToQueue(t *testing.T) {
	c := newTestController(t, []cluster.Sequence{
		mustSeq(t, "AAA", "g1", 1, 0, 0),
		mustSeq(t, "BBB", "g2", 1, 0, 1),
	}, 100, 100)

	req, ok := c.nextRequest()
	assert.True(t, ok)
	assert.Equal(t, wire.TypeBatch, req.Type)
	assert.Empty(t, c.queue)

	c.requeue(req)
	assert.Len(t, c.queue, 2)
}

func TestDoneAndFinalSet(t *testing.T) {
	c := newTestController(t, []cluster.Sequence{mustSeq(t, "AAA", "g", 1, 0, 0)}, 100, 100)
	assert.True(t, c.Done())
	final, err := c.FinalSet()
	assert.NoError(t, err)
	assert.Equal(t, 1, final.Size())
}
