// Package wire implements the length-prefixed binary marshalling layer of
// spec.md §6: MarshalledCluster/-ClusterSet/-Request/-Response frames that
// move across the controller/worker sockets without requiring an
// intermediate schema. The frame layout is frozen by the spec itself (fixed
// field order and width), so it is encoded directly with encoding/binary
// rather than through a schema-driven serializer — there is no protobuf (or
// similar) schema to compile here, just the exact byte layout spec.md §6
// names field-by-field.
package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/grailbio/base/errors"

	"github.com/alpae/clustermerge/internal/cluster"
)

// RequestType tags a MarshalledRequest's body (spec.md §6).
type RequestType uint8

const (
	TypeBatch RequestType = iota
	TypePartial
	TypeAlignment
)

var byteOrder = binary.LittleEndian

// Cluster is the wire form of a cluster.Cluster: just its member IDs, since
// residues live in the shared dataset and are looked up by ID on arrival.
type Cluster struct {
	SeqIDs []uint32
}

// ClusterSet is the wire form of a cluster.Set.
type ClusterSet struct {
	Clusters []Cluster
}

// ToWireCluster converts a live cluster into its wire form.
func ToWireCluster(c *cluster.Cluster) Cluster {
	return Cluster{SeqIDs: c.MemberIDs()}
}

// ToWireSet converts a live set into its wire form.
func ToWireSet(s *cluster.Set) ClusterSet {
	out := ClusterSet{Clusters: make([]Cluster, len(s.Clusters))}
	for i, c := range s.Clusters {
		out.Clusters[i] = ToWireCluster(c)
	}
	return out
}

// Resolve reconstructs a live cluster.Set from its wire form, looking up
// each member's full Sequence by absolute ID via lookup.
func (cs ClusterSet) Resolve(lookup func(absoluteID uint32) (cluster.Sequence, bool)) (*cluster.Set, error) {
	out := cluster.NewSet(len(cs.Clusters))
	for _, wc := range cs.Clusters {
		seqs := make([]cluster.Sequence, 0, len(wc.SeqIDs))
		for _, id := range wc.SeqIDs {
			seq, ok := lookup(id)
			if !ok {
				return nil, errors.E(errors.NotExist, "unknown sequence id in wire cluster:", id)
			}
			seqs = append(seqs, seq)
		}
		if len(seqs) == 0 {
			continue
		}
		out.AddCluster(cluster.NewClusterFromSequences(seqs))
	}
	return out, nil
}

func writeCluster(w *bytes.Buffer, c Cluster) {
	binary.Write(w, byteOrder, uint32(len(c.SeqIDs)))
	for _, id := range c.SeqIDs {
		binary.Write(w, byteOrder, id)
	}
}

func readCluster(r *bytes.Reader) (Cluster, error) {
	var n uint32
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return Cluster{}, err
	}
	ids := make([]uint32, n)
	for i := range ids {
		if err := binary.Read(r, byteOrder, &ids[i]); err != nil {
			return Cluster{}, err
		}
	}
	return Cluster{SeqIDs: ids}, nil
}

func writeSet(w *bytes.Buffer, s ClusterSet) {
	binary.Write(w, byteOrder, uint32(len(s.Clusters)))
	for _, c := range s.Clusters {
		writeCluster(w, c)
	}
}

func readSet(r *bytes.Reader) (ClusterSet, error) {
	var n uint32
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return ClusterSet{}, err
	}
	clusters := make([]Cluster, n)
	for i := range clusters {
		c, err := readCluster(r)
		if err != nil {
			return ClusterSet{}, err
		}
		clusters[i] = c
	}
	return ClusterSet{Clusters: clusters}, nil
}

// MarshalSet encodes s as a standalone MarshalledClusterSet buffer (used for
// the late-joiner set-request response and for checkpoint snapshots).
func MarshalSet(s ClusterSet) []byte {
	var buf bytes.Buffer
	writeSet(&buf, s)
	return buf.Bytes()
}

// UnmarshalSet is the inverse of MarshalSet.
func UnmarshalSet(b []byte) (ClusterSet, error) {
	return readSet(bytes.NewReader(b))
}

// WriteFrame writes a length-prefixed frame: a u32 byte count followed by
// payload, matching the length-prefixed wire layout spec.md §6 requires so a
// reader can delimit messages on a streaming socket.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	byteOrder.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := byteOrder.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
