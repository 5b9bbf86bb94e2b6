// Package allall schedules the all-vs-all intra-cluster alignment pass of
// spec.md §4.5: for every non-duplicate cluster, every unordered pair of
// members is canonicalised and deduplicated against a fixed-size candidate
// map before being handed to the alignment executor.
package allall

import (
	"sync"

	farm "github.com/dgryski/go-farm"
)

// candidateEntry is one slot of the candidate map: a canonicalised pair of
// absolute sequence IDs, or the zero value if unoccupied.
type candidateEntry struct {
	id1, id2 uint32
	occupied bool
}

// CandidateMap is a fixed-capacity, linear-probing hash set of canonical
// sequence-ID pairs, sharded by the upper bits of farmhash(pair) the way
// fusion/kmer_index.go shards its kmer->genelist map by farmhash(kmer).
// Collisions beyond maxProbe are treated as insertions (spec.md §4.5:
// "accept rare duplicate work") rather than grown or rejected.
type CandidateMap struct {
	shards    []candidateShard
	nShards   uint32
	maxProbe  int
}

type candidateShard struct {
	mu    sync.Mutex
	slots []candidateEntry
}

// NewCandidateMap builds a map sized to hold approximately capacity pairs
// across nShards shards (default 256, matching fusion/kmer_index.go's
// nKmerIndexShard), each shard sized to keep load factor under ~0.5.
func NewCandidateMap(capacity int, nShards int) *CandidateMap {
	if nShards <= 0 {
		nShards = 256
	}
	perShard := capacity/nShards + 1
	slotsPerShard := nextPow2(perShard * 2)
	if slotsPerShard < 16 {
		slotsPerShard = 16
	}
	m := &CandidateMap{
		shards:   make([]candidateShard, nShards),
		nShards:  uint32(nShards),
		maxProbe: 64, // matches fusion/kmer_index.go's maxCollisions
	}
	for i := range m.shards {
		m.shards[i].slots = make([]candidateEntry, slotsPerShard)
	}
	return m
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func pairHash(id1, id2 uint32) uint64 {
	var buf [8]byte
	buf[0], buf[1], buf[2], buf[3] = byte(id1), byte(id1>>8), byte(id1>>16), byte(id1>>24)
	buf[4], buf[5], buf[6], buf[7] = byte(id2), byte(id2>>8), byte(id2>>16), byte(id2>>24)
	return farm.Hash64(buf[:])
}

// InsertIfAbsent returns true if (id1, id2) was newly inserted or if the
// probe sequence was exhausted without finding a free or matching slot
// (spec.md §4.5: overflow collisions "are treated as insertions, accept
// rare duplicate work" — the pair must still be scheduled, not dropped).
// It returns false only when the pair is found already occupying a slot
// within the probe sequence, the genuine duplicate case.
func (m *CandidateMap) InsertIfAbsent(id1, id2 uint32) bool {
	h := pairHash(id1, id2)
	shard := &m.shards[uint32(h>>32)%m.nShards]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	n := len(shard.slots)
	start := int(uint32(h) % uint32(n))

	for i := 0; i < m.maxProbe && i < n; i++ {
		idx := (start + i) % n
		slot := &shard.slots[idx]
		if !slot.occupied {
			slot.id1, slot.id2, slot.occupied = id1, id2, true
			return true
		}
		if slot.id1 == id1 && slot.id2 == id2 {
			return false
		}
	}
	return true
}
