// Package merge drives the single-node bottom-up merge of cluster sets
// (spec.md §4.4): a FIFO of singleton-per-sequence cluster sets is repeatedly
// popped two at a time, merged, and pushed back until one survivor remains.
package merge

import (
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"

	"github.com/alpae/clustermerge/internal/aligner"
	"github.com/alpae/clustermerge/internal/cluster"
)

// Driver owns the sets-to-merge queue and runs the pop-two-merge-push loop
// across a worker pool, grounded on original_source/src/common/bottom_up_merge.cc.
type Driver struct {
	mu   sync.Mutex
	cond *sync.Cond
	q    []*cluster.Set

	setsLeft int64 // atomic countdown; workers exit once it reaches 1

	a                 *aligner.ProteinAligner
	mergeThreads      int // parallelism given to MergeClustersParallel per pair
	dupRemovalThresh  int
	oldSet            *cluster.Set // seeded from a prior clusters.json, merged in last
}

// Config bundles merge-driver parameters (spec.md §6 CLI surface). The
// worker-pool size itself is passed to Run, not stored here, since it may
// differ from other driver tunables decided at construction time.
type Config struct {
	MergeThreads     int
	DupRemovalThresh int
	OldSet           *cluster.Set // nil unless -f/--file was given
}

// New seeds the driver's queue with one singleton set per sequence.
func New(sequences []cluster.Sequence, a *aligner.ProteinAligner, cfg Config) *Driver {
	d := &Driver{
		q:                make([]*cluster.Set, 0, len(sequences)),
		a:                a,
		mergeThreads:     cfg.MergeThreads,
		dupRemovalThresh: cfg.DupRemovalThresh,
		oldSet:           cfg.OldSet,
	}
	d.cond = sync.NewCond(&d.mu)
	for _, seq := range sequences {
		d.q = append(d.q, cluster.NewSingletonSet(seq))
	}
	d.setsLeft = int64(len(d.q))
	return d
}

// Run spawns numWorkers goroutines driving the pop-two-merge-push loop and
// blocks until a single survivor remains, which is then merged with any
// seeded old set (the incremental-merge supplemented feature) and returned.
func (d *Driver) Run(numWorkers int) *cluster.Set {
	if len(d.q) == 0 {
		if d.oldSet != nil {
			return d.oldSet
		}
		return cluster.NewSet(0)
	}
	if len(d.q) == 1 {
		return d.finalize(d.q[0])
	}

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			d.worker()
		}()
	}
	wg.Wait()

	d.mu.Lock()
	survivor := d.q[0]
	d.mu.Unlock()
	return d.finalize(survivor)
}

// worker implements one thread's share of the pop-two-merge-push loop.
func (d *Driver) worker() {
	for {
		left, right, ok := d.popTwo()
		if !ok {
			return
		}
		merged := d.mergePair(left, right)
		if merged.Size() > 1 {
			merged.RemoveDuplicatesIfLarge(d.dupRemovalThresh)
		}
		d.pushOne(merged)
	}
}

// popTwo waits until at least two sets are queued (or exits if only one
// mergeable set remains and the countdown has reached its floor).
func (d *Driver) popTwo() (left, right *cluster.Set, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.q) < 2 {
		if atomic.LoadInt64(&d.setsLeft) <= 1 {
			return nil, nil, false
		}
		d.cond.Wait()
	}
	a, b := d.q[0], d.q[1]
	d.q = d.q[2:]
	// Put the larger set on the left so the merge's outer loop (which owns
	// the work) iterates the smaller side's comparisons per left-cluster.
	if b.Size() > a.Size() {
		a, b = b, a
	}
	return a, b, true
}

func (d *Driver) pushOne(s *cluster.Set) {
	d.mu.Lock()
	d.q = append(d.q, s)
	remaining := atomic.AddInt64(&d.setsLeft, -1)
	d.mu.Unlock()
	d.cond.Broadcast()
	log.Debug.Printf("merge: %d cluster sets remaining", remaining)
}

// mergePair merges left and right, using the parallel variant when the
// configured merge-thread pool is large enough to be worthwhile. d.a is
// shared across the traverse goroutines here rather than given one
// ProteinAligner per goroutine: safe only because this aligner holds no
// reusable scratch buffers, so concurrent AlignReps calls don't stomp on
// shared state. numAlignments++ on the shared aligner does race across
// goroutines; that counter is documented as approximate (spec.md §9).
func (d *Driver) mergePair(left, right *cluster.Set) *cluster.Set {
	if d.mergeThreads > 1 && left.Size() > d.mergeThreads {
		return left.MergeClustersParallel(right, d.a, func(n int, fn func(i int) error) {
			_ = traverse.Limit(d.mergeThreads).Each(n, fn)
		})
	}
	return left.MergeClusters(right, d.a)
}

// finalize folds in any seeded old cluster set (the incremental-merge
// supplemented feature, spec.md §7 -f/--file) as a last step.
func (d *Driver) finalize(survivor *cluster.Set) *cluster.Set {
	if d.oldSet == nil {
		return survivor
	}
	return survivor.MergeClusters(d.oldSet, d.a)
}
