package dist

import (
	"net"
	"strconv"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/alpae/clustermerge/internal/aligner"
	"github.com/alpae/clustermerge/internal/cluster"
	"github.com/alpae/clustermerge/internal/wire"
)

// Worker connects to a controller, pulls requests, and processes Batch,
// Partial, and Alignment requests (spec.md §4.7).
type Worker struct {
	server ServerConfig
	a      *aligner.ProteinAligner
	lookup func(absoluteID uint32) (cluster.Sequence, bool)

	// AlignmentSink receives every completed terminal alignment; the caller
	// decides how to persist it (spec.md §6's per-worker match files are an
	// external-collaborator concern).
	AlignmentSink func(wire.Response)
}

// NewWorker builds a Worker able to resolve sequence IDs via lookup.
func NewWorker(server ServerConfig, a *aligner.ProteinAligner, lookup func(uint32) (cluster.Sequence, bool)) *Worker {
	return &Worker{server: server, a: a, lookup: lookup}
}

// Run connects to the controller and processes requests until the
// connection closes (the controller's Shutdown) or ctx-less stop is
// requested by the caller closing done.
func (w *Worker) Run(done <-chan struct{}) error {
	addr := net.JoinHostPort(w.server.Controller, strconv.Itoa(w.server.RequestQueuePort))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return errors.E(errors.Internal, "dist: worker dial", addr, ":", err)
	}
	defer conn.Close()

	for {
		select {
		case <-done:
			return nil
		default:
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		// Read the raw frame so the socket's timeout error is checked
		// before it is wrapped.
		buf, err := wire.ReadFrame(conn)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue // spec.md §7: empty poll is not an error
			}
			return errors.E(errors.Internal, "dist: worker recv:", err)
		}
		req, err := wire.UnmarshalRequest(buf)
		if err != nil {
			return errors.E(errors.Invalid, "dist: worker decode request:", err)
		}
		resp, err := w.process(req)
		if err != nil {
			log.Error.Printf("dist: worker processing request %d: %v", req.ID, err)
			continue
		}
		if err := sendResponse(conn, resp); err != nil {
			return errors.E(errors.Internal, "dist: worker send response:", err)
		}
	}
}

func (w *Worker) process(req wire.Request) (wire.Response, error) {
	switch req.Type {
	case wire.TypeBatch:
		return w.processBatch(req)
	case wire.TypePartial:
		return w.processPartial(req)
	case wire.TypeAlignment:
		return w.processAlignment(req)
	default:
		return wire.Response{}, errors.E(errors.Invalid, "dist: unknown request type", req.Type)
	}
}

// processBatch merges a list of small cluster sets pairwise, in order
// (spec.md §4.7).
func (w *Worker) processBatch(req wire.Request) (wire.Response, error) {
	if len(req.BatchSets) == 0 {
		return wire.Response{}, errors.E(errors.Invalid, "dist: empty batch request")
	}
	merged, err := req.BatchSets[0].Resolve(w.lookup)
	if err != nil {
		return wire.Response{}, err
	}
	for _, ws := range req.BatchSets[1:] {
		other, err := ws.Resolve(w.lookup)
		if err != nil {
			return wire.Response{}, err
		}
		merged = merged.MergeClusters(other, w.a)
	}
	return wire.Response{ID: req.ID, Type: wire.TypeBatch, Set: wire.ToWireSet(merged)}, nil
}

// processPartial aligns the single referenced cluster against the indicated
// index range of the right-hand set (spec.md §4.7).
func (w *Worker) processPartial(req wire.Request) (wire.Response, error) {
	seqs := make([]cluster.Sequence, 0, len(req.Cluster.SeqIDs))
	for _, id := range req.Cluster.SeqIDs {
		seq, ok := w.lookup(id)
		if !ok {
			return wire.Response{}, errors.E(errors.NotExist, "dist: unknown sequence id", id)
		}
		seqs = append(seqs, seq)
	}
	left := cluster.NewSet(1)
	left.AddCluster(cluster.NewClusterFromSequences(seqs))

	full, err := req.Set.Resolve(w.lookup)
	if err != nil {
		return wire.Response{}, err
	}
	lo, hi := int(req.StartIndex), int(req.EndIndex)
	if lo < 0 || hi > len(full.Clusters) || lo > hi {
		return wire.Response{}, errors.E(errors.Invalid, "dist: partial range out of bounds")
	}
	slice := cluster.NewSet(hi - lo)
	slice.Clusters = append(slice.Clusters, full.Clusters[lo:hi]...)

	merged := left.MergeClusters(slice, w.a)
	return wire.Response{
		ID:           req.ID,
		Type:         wire.TypePartial,
		StartIndex:   req.StartIndex,
		EndIndex:     req.EndIndex,
		ClusterIndex: req.ClusterIndex,
		Set:          wire.ToWireSet(merged),
	}, nil
}

// processAlignment runs SW on the requested pair for terminal all-all work
// (spec.md §4.7).
func (w *Worker) processAlignment(req wire.Request) (wire.Response, error) {
	seq1, ok := w.lookup(req.Seq1ID)
	if !ok {
		return wire.Response{}, errors.E(errors.NotExist, "dist: unknown sequence id", req.Seq1ID)
	}
	seq2, ok := w.lookup(req.Seq2ID)
	if !ok {
		return wire.Response{}, errors.E(errors.NotExist, "dist: unknown sequence id", req.Seq2ID)
	}
	alignment, err := w.a.AlignLocal(seq1.Residues, seq2.Residues)
	if err != nil {
		return wire.Response{}, err
	}
	resp := wire.Response{
		ID:          req.ID,
		Type:        wire.TypeAlignment,
		Seq1ID:      req.Seq1ID,
		Seq2ID:      req.Seq2ID,
		Score:       alignment.Score,
		PAMDistance: alignment.PAMDistance,
		PAMVariance: alignment.PAMVariance,
		Seq1Min:     int32(alignment.Seq1Min),
		Seq1Max:     int32(alignment.Seq1Max),
		Seq2Min:     int32(alignment.Seq2Min),
		Seq2Max:     int32(alignment.Seq2Max),
	}
	if w.AlignmentSink != nil {
		w.AlignmentSink(resp)
	}
	return resp, nil
}
