// Package checkpoint snapshots and restores the controller's sets-to-merge
// queue (spec.md §4.8), gzip-compressed the way encoding/bam/shardedbam.go
// compresses its shard index, via klauspost/compress/gzip.
package checkpoint

import (
	"bytes"
	"encoding/binary"
	"io/ioutil"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/minio/highwayhash"

	"github.com/alpae/clustermerge/internal/wire"
)

// highwayKey is a fixed 32-byte key for the checkpoint integrity digest.
// It need not be secret: the digest only guards against truncated or
// corrupted checkpoint files, not against tampering.
var highwayKey = make([]byte, 32)

// Write serialises every set in queue to path, gzip-compressed, prefixed by
// a highwayhash digest of the uncompressed payload so Load can detect a
// truncated write (e.g. the process was killed mid-checkpoint).
func Write(path string, queue []wire.ClusterSet) error {
	var body bytes.Buffer
	binary.Write(&body, binary.LittleEndian, uint32(len(queue)))
	for _, s := range queue {
		b := wire.MarshalSet(s)
		binary.Write(&body, binary.LittleEndian, uint32(len(b)))
		body.Write(b)
	}

	digest, err := highwayhash.New(highwayKey)
	if err != nil {
		return errors.E(errors.Internal, "checkpoint: init digest:", err)
	}
	digest.Write(body.Bytes())
	sum := digest.Sum(nil)

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.E(errors.Internal, "checkpoint: create:", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	if _, err := gw.Write(sum); err != nil {
		return errors.E(errors.Internal, "checkpoint: write digest:", err)
	}
	if _, err := gw.Write(body.Bytes()); err != nil {
		return errors.E(errors.Internal, "checkpoint: write body:", err)
	}
	if err := gw.Close(); err != nil {
		return errors.E(errors.Internal, "checkpoint: close gzip writer:", err)
	}
	if err := f.Sync(); err != nil {
		return errors.E(errors.Internal, "checkpoint: sync:", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.E(errors.Internal, "checkpoint: rename:", err)
	}
	log.Debug.Printf("checkpoint: wrote %d cluster sets to %s", len(queue), path)
	return nil
}

// Load reconstructs the sets-to-merge queue from a checkpoint written by
// Write, verifying the digest before trusting any content.
func Load(path string) ([]wire.ClusterSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(errors.NotExist, "checkpoint: open:", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.E(errors.Invalid, "checkpoint: not gzip:", err)
	}
	defer gr.Close()

	all, err := ioutil.ReadAll(gr)
	if err != nil {
		return nil, errors.E(errors.Invalid, "checkpoint: read:", err)
	}
	sumLen := highwayhash.Size
	if len(all) < sumLen {
		return nil, errors.E(errors.Invalid, "checkpoint: truncated file")
	}
	wantSum, body := all[:sumLen], all[sumLen:]

	digest, err := highwayhash.New(highwayKey)
	if err != nil {
		return nil, errors.E(errors.Internal, "checkpoint: init digest:", err)
	}
	digest.Write(body)
	if !bytes.Equal(digest.Sum(nil), wantSum) {
		return nil, errors.E(errors.Invalid, "checkpoint: digest mismatch, file is corrupt")
	}

	r := bytes.NewReader(body)
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, errors.E(errors.Invalid, "checkpoint: read count:", err)
	}
	out := make([]wire.ClusterSet, n)
	for i := range out {
		var setLen uint32
		if err := binary.Read(r, binary.LittleEndian, &setLen); err != nil {
			return nil, errors.E(errors.Invalid, "checkpoint: read set length:", err)
		}
		setBuf := make([]byte, setLen)
		if _, err := r.Read(setBuf); err != nil {
			return nil, errors.E(errors.Invalid, "checkpoint: read set body:", err)
		}
		s, err := wire.UnmarshalSet(setBuf)
		if err != nil {
			return nil, errors.E(errors.Invalid, "checkpoint: unmarshal set:", err)
		}
		out[i] = s
	}
	log.Debug.Printf("checkpoint: loaded %d cluster sets from %s", len(out), path)
	return out, nil
}
