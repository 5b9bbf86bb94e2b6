package main

import (
	"path/filepath"

	"github.com/alpae/clustermerge/internal/output"
	"github.com/alpae/clustermerge/internal/wire"
)

// outputMatchWriter adapts a wire.Response carrying a completed terminal
// alignment into an output.MatchRecord (spec.md §6's per-worker match file).
// The controller issues only Batch and Partial requests, so no
// Alignment-type response reaches this writer and matches.jsonl stays empty.
type outputMatchWriter struct {
	w *output.MatchWriter
}

func newMatchWriter(outputDir string) (outputMatchWriter, error) {
	w, err := output.NewMatchWriter(filepath.Join(outputDir, "matches.jsonl"))
	if err != nil {
		return outputMatchWriter{}, err
	}
	return outputMatchWriter{w: w}, nil
}

func (m outputMatchWriter) handle(resp wire.Response) {
	if resp.Type != wire.TypeAlignment {
		return
	}
	m.w.Write(output.MatchRecord{
		Seq1ID:      resp.Seq1ID,
		Seq2ID:      resp.Seq2ID,
		Score:       resp.Score,
		PAMDistance: resp.PAMDistance,
		PAMVariance: resp.PAMVariance,
		Seq1Range:   [2]int{int(resp.Seq1Min), int(resp.Seq1Max)},
		Seq2Range:   [2]int{int(resp.Seq2Min), int(resp.Seq2Max)},
	})
}

func (m outputMatchWriter) Close() error {
	if m.w == nil {
		return nil
	}
	return m.w.Close()
}
