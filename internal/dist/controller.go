package dist

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/alpae/clustermerge/internal/aligner"
	"github.com/alpae/clustermerge/internal/checkpoint"
	"github.com/alpae/clustermerge/internal/cluster"
	"github.com/alpae/clustermerge/internal/wire"
)

// PartialMergeItem tracks one in-flight split merger (spec.md §3).
type PartialMergeItem struct {
	mu            sync.Mutex
	NumExpected   int32
	NumReceived   int32
	PartialSet    *cluster.Set
	OriginalSize  int
	RefSetBuf     []byte // retained for the late-joiner set-request socket
}

// ControllerConfig bundles the controller's tunables (spec.md §4.6).
type ControllerConfig struct {
	Server              ServerConfig
	BatchSize           int
	NSeqsThreshold      int
	CheckpointPath      string
	CheckpointInterval  time.Duration
	LoadCheckpoint      bool
}

// Controller owns the authoritative sets-to-merge queue and fans merge work
// to connected workers (spec.md §4.6).
type Controller struct {
	cfg ControllerConfig
	a   *aligner.ProteinAligner

	mu               sync.Mutex
	queue            []*cluster.Set
	outstandingMerges int64
	nextRequestID    int32
	pendingPartial   []wire.Request // already-built (cluster, chunk) requests awaiting dispatch

	partialMu sync.Mutex
	partial   map[int32]*PartialMergeItem

	lookup func(absoluteID uint32) (cluster.Sequence, bool)

	run          int32 // atomic bool: 1 while serving requests
	reqListener  net.Listener
	setListener  net.Listener
}

// NewController seeds the controller's queue with one singleton set per
// sequence, or with a loaded checkpoint when cfg.LoadCheckpoint is set.
func NewController(sequences []cluster.Sequence, a *aligner.ProteinAligner, cfg ControllerConfig) (*Controller, error) {
	c := &Controller{
		cfg:     cfg,
		a:       a,
		partial: make(map[int32]*PartialMergeItem),
		run:     1,
	}
	byID := make(map[uint32]cluster.Sequence, len(sequences))
	for _, s := range sequences {
		byID[s.AbsoluteID] = s
	}
	c.lookup = func(id uint32) (cluster.Sequence, bool) { s, ok := byID[id]; return s, ok }

	if cfg.LoadCheckpoint && cfg.CheckpointPath != "" {
		wireSets, err := checkpoint.Load(cfg.CheckpointPath)
		if err != nil {
			return nil, err
		}
		for _, ws := range wireSets {
			s, err := ws.Resolve(c.lookup)
			if err != nil {
				return nil, err
			}
			c.queue = append(c.queue, s)
		}
		c.outstandingMerges = int64(len(c.queue)) - 1
		log.Debug.Printf("dist: controller resumed from checkpoint with %d sets", len(c.queue))
		return c, nil
	}

	for _, seq := range sequences {
		c.queue = append(c.queue, cluster.NewSingletonSet(seq))
	}
	c.outstandingMerges = int64(len(c.queue)) - 1
	return c, nil
}

// Serve binds the request and set-request sockets and blocks until Shutdown
// is called; reaching the final merge alone does not return. respHandler is invoked for every
// Alignment-type response a worker sends (terminal all-all output).
func (c *Controller) Serve(respHandler func(wire.Response)) error {
	reqListener, err := listen(c.cfg.Server.RequestQueuePort)
	if err != nil {
		return err
	}
	c.reqListener = reqListener
	defer reqListener.Close()

	setListener, err := listen(c.cfg.Server.SetRequestPort)
	if err != nil {
		return err
	}
	c.setListener = setListener
	defer setListener.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.acceptSetRequests(setListener) }()
	go func() { defer wg.Done(); c.acceptWorkerConns(reqListener, respHandler) }()

	if c.cfg.CheckpointInterval > 0 {
		wg.Add(1)
		go func() { defer wg.Done(); c.checkpointLoop() }()
	}

	wg.Wait()
	return nil
}

// acceptWorkerConns is the request-sender/response-receiver role pair of
// spec.md §5, collapsed onto one persistent connection per worker: the
// controller pushes a request and reads back its response before issuing
// the next one to that worker.
func (c *Controller) acceptWorkerConns(l net.Listener, respHandler func(wire.Response)) {
	for atomic.LoadInt32(&c.run) == 1 {
		conn, err := l.Accept()
		if err != nil {
			if atomic.LoadInt32(&c.run) == 0 {
				return
			}
			log.Error.Printf("dist: accept worker conn: %v", err)
			continue
		}
		go c.serveWorker(conn, respHandler)
	}
}

func (c *Controller) serveWorker(conn net.Conn, respHandler func(wire.Response)) {
	defer conn.Close()
	for atomic.LoadInt32(&c.run) == 1 {
		req, ok := c.nextRequest()
		if !ok {
			return
		}
		if err := sendRequest(conn, req); err != nil {
			c.requeue(req)
			return
		}
		resp, err := recvResponse(conn)
		if err != nil {
			c.requeue(req)
			return
		}
		c.handleResponse(req, resp, respHandler)
	}
}

// nextRequest applies the split policy of spec.md §4.6: batch small sets
// together, otherwise split a large pairing into partial chunks.
func (c *Controller) nextRequest() (wire.Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Dispatch any already-scheduled (cluster, chunk) requests from an
	// in-flight partial merge before pulling fresh work off the queue.
	if len(c.pendingPartial) > 0 {
		req := c.pendingPartial[0]
		c.pendingPartial = c.pendingPartial[1:]
		return req, true
	}

	if len(c.queue) < 2 {
		return wire.Request{}, false
	}
	a, b := c.popLargestTwo()

	if a.Size() < c.cfg.BatchSize || b.Size() < c.cfg.BatchSize {
		small := []*cluster.Set{a, b}
		total := a.Size() + b.Size()
		for total < c.cfg.BatchSize && len(c.queue) > 0 {
			next := c.queue[0]
			c.queue = c.queue[1:]
			small = append(small, next)
			total += next.Size()
		}
		id := atomic.AddInt32(&c.nextRequestID, 1)
		req := wire.Request{ID: id, Type: wire.TypeBatch}
		for _, s := range small {
			req.BatchSets = append(req.BatchSets, wire.ToWireSet(s))
		}
		return req, true
	}

	return c.beginPartialMerge(a, b), true
}

// popLargestTwo removes and returns the two largest sets in the queue, a
// the larger of the pair (spec.md §4.4's "larger set on the left").
func (c *Controller) popLargestTwo() (a, b *cluster.Set) {
	bi, bj := 0, 1
	if c.queue[bj].Size() > c.queue[bi].Size() {
		bi, bj = bj, bi
	}
	for i := 2; i < len(c.queue); i++ {
		if c.queue[i].Size() > c.queue[bi].Size() {
			bj = bi
			bi = i
		} else if c.queue[i].Size() > c.queue[bj].Size() {
			bj = i
		}
	}
	a = c.queue[bi]
	b = c.queue[bj]
	// Remove the higher index first so the lower one stays valid.
	hi, lo := bi, bj
	if hi < lo {
		hi, lo = lo, hi
	}
	c.queue = append(c.queue[:hi], c.queue[hi+1:]...)
	c.queue = append(c.queue[:lo], c.queue[lo+1:]...)
	return a, b
}

// beginPartialMerge walks a's clusters against b, chunking b by accumulated
// right-hand sequence count (spec.md §4.6), and builds one request per
// (a-cluster, chunk) pair. It registers a PartialMergeItem sized to that
// full (cluster x chunk) count, queues every request but the first onto
// c.pendingPartial for later dispatch by nextRequest, and returns the first
// request to send immediately.
func (c *Controller) beginPartialMerge(a, b *cluster.Set) wire.Request {
	chunks := partitionPartials(len(b.Clusters), c.cfg.NSeqsThreshold, b)
	total := len(chunks) * len(a.Clusters)

	id := atomic.AddInt32(&c.nextRequestID, 1)
	item := &PartialMergeItem{
		NumExpected:  int32(total),
		PartialSet:   a,
		OriginalSize: a.Size(),
		RefSetBuf:    wire.MarshalSet(wire.ToWireSet(b)),
	}
	c.partialMu.Lock()
	c.partial[id] = item
	c.partialMu.Unlock()

	wireB := wire.ToWireSet(b)
	reqs := make([]wire.Request, 0, total)
	for ci, cl := range a.Clusters {
		wireCluster := wire.ToWireCluster(cl)
		for _, ch := range chunks {
			reqs = append(reqs, wire.Request{
				ID:           id,
				Type:         wire.TypePartial,
				StartIndex:   int32(ch.start),
				EndIndex:     int32(ch.end),
				ClusterIndex: int32(ci),
				Cluster:      wireCluster,
				Set:          wireB,
			})
		}
	}
	c.pendingPartial = append(c.pendingPartial, reqs[1:]...)
	return reqs[0]
}

type partialChunk struct{ start, end int }

// partitionPartials chunks [0, n) by accumulated right-hand sequence count,
// emitting a final tail chunk (spec.md §4.6).
func partitionPartials(n, nseqsThreshold int, b *cluster.Set) []partialChunk {
	var chunks []partialChunk
	start := 0
	accum := 0
	for i := 0; i < n; i++ {
		accum += b.Clusters[i].Size()
		if accum >= nseqsThreshold {
			chunks = append(chunks, partialChunk{start, i + 1})
			start = i + 1
			accum = 0
		}
	}
	if start < n || len(chunks) == 0 {
		chunks = append(chunks, partialChunk{start, n})
	}
	return chunks
}

// handleResponse reassembles a partial response or enqueues a completed
// batch merge's result (spec.md §4.6's reassembly logic).
func (c *Controller) handleResponse(req wire.Request, resp wire.Response, respHandler func(wire.Response)) {
	switch resp.Type {
	case wire.TypeBatch:
		s, err := resp.Set.Resolve(c.lookup)
		if err != nil {
			log.Error.Printf("dist: resolve batch response: %v", err)
			return
		}
		c.mu.Lock()
		c.queue = append(c.queue, s)
		c.mu.Unlock()
		// A batch of n sets collapses to 1, completing n-1 merges (spec.md
		// §4.6); req.BatchSets is the same n sets nextRequest pulled off the
		// queue to build this request.
		atomic.AddInt64(&c.outstandingMerges, -int64(len(req.BatchSets)-1))

	case wire.TypePartial:
		c.partialMu.Lock()
		item, ok := c.partial[req.ID]
		c.partialMu.Unlock()
		if !ok {
			log.Error.Printf("dist: unknown partial-merge id %d", req.ID)
			return
		}
		item.mu.Lock()
		merged, err := resp.Set.Resolve(c.lookup)
		if err == nil {
			item.PartialSet = item.PartialSet.MergeClusters(merged, c.a)
		}
		item.NumReceived++
		done := item.NumReceived >= item.NumExpected
		item.mu.Unlock()
		if done {
			item.PartialSet.RebuildWithoutFullyMerged()
			c.partialMu.Lock()
			delete(c.partial, req.ID)
			c.partialMu.Unlock()
			c.mu.Lock()
			c.queue = append(c.queue, item.PartialSet)
			c.mu.Unlock()
			atomic.AddInt64(&c.outstandingMerges, -1)
		}

	case wire.TypeAlignment:
		respHandler(resp)
	}
}

// requeue recovers a request dropped by a failed worker connection. A Batch
// request's sets were already popped off the queue in nextRequest, so they
// must be resolved back into *cluster.Set and pushed back on or they vanish
// from the convergence entirely. Partial and Alignment requests get no
// automatic retry (spec.md §7): the dropped request is only logged, and its
// PartialMergeItem stays pending with that result never arriving; nothing
// re-dispatches it.
func (c *Controller) requeue(req wire.Request) {
	if req.Type != wire.TypeBatch {
		log.Error.Printf("dist: worker connection dropped processing request %d; item remains pending", req.ID)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	requeued := 0
	for _, ws := range req.BatchSets {
		s, err := ws.Resolve(c.lookup)
		if err != nil {
			log.Error.Printf("dist: requeue batch request %d: resolve set: %v", req.ID, err)
			continue
		}
		c.queue = append(c.queue, s)
		requeued++
	}
	log.Error.Printf("dist: worker connection dropped processing batch request %d; %d sets requeued", req.ID, requeued)
}

// acceptSetRequests serves the late-joiner socket: a worker can ask for the
// reference set of an in-flight partial merge by request ID (spec.md §4.6).
func (c *Controller) acceptSetRequests(l net.Listener) {
	for atomic.LoadInt32(&c.run) == 1 {
		conn, err := l.Accept()
		if err != nil {
			if atomic.LoadInt32(&c.run) == 0 {
				return
			}
			continue
		}
		go func(conn net.Conn) {
			defer conn.Close()
			conn.SetReadDeadline(time.Now().Add(time.Second))
			req, err := recvRequest(conn)
			if err != nil {
				return // a recv timeout / empty poll is not an error (spec.md §7)
			}
			c.partialMu.Lock()
			item, ok := c.partial[req.ID]
			c.partialMu.Unlock()
			if !ok {
				return
			}
			wire.WriteFrame(conn, item.RefSetBuf)
		}(conn)
	}
}

// checkpointLoop periodically quiesces and snapshots the sets-to-merge
// queue (spec.md §4.8).
func (c *Controller) checkpointLoop() {
	ticker := time.NewTicker(c.cfg.CheckpointInterval)
	defer ticker.Stop()
	for range ticker.C {
		if atomic.LoadInt32(&c.run) == 0 {
			return
		}
		c.mu.Lock()
		snapshot := make([]wire.ClusterSet, len(c.queue))
		for i, s := range c.queue {
			snapshot[i] = wire.ToWireSet(s)
		}
		c.mu.Unlock()
		if err := checkpoint.Write(c.cfg.CheckpointPath, snapshot); err != nil {
			log.Error.Printf("dist: checkpoint write failed: %v", err)
		}
	}
}

// Done reports whether the controller has reached its terminal state: one
// element left in the queue and no outstanding merges (spec.md §4.6).
func (c *Controller) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) == 1 && atomic.LoadInt64(&c.outstandingMerges) == 0
}

// FinalSet returns the survivor set once Done reports true.
func (c *Controller) FinalSet() (*cluster.Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) != 1 {
		return nil, errors.E(errors.Internal, "dist: FinalSet called before convergence")
	}
	return c.queue[0], nil
}

// Shutdown flips run_ = false and unblocks every accept loop by closing
// both listeners (spec.md §4.6).
func (c *Controller) Shutdown() {
	atomic.StoreInt32(&c.run, 0)
	if c.reqListener != nil {
		c.reqListener.Close()
	}
	if c.setListener != nil {
		c.setListener.Close()
	}
}
