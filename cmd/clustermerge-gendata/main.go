/*
clustermerge-gendata writes a small synthetic multi-FASTA dataset, useful for
exercising the merge pipeline without a real genome collection on hand.
*/
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
)

var (
	outPath    = flag.String("out", "synthetic.fasta", "Output FASTA path")
	numGenomes = flag.Int("genomes", 4, "Number of synthetic genomes to interleave")
	numSeqs    = flag.Int("n", 100, "Total number of sequences to generate")
	minLen     = flag.Int("min_len", 80, "Minimum sequence length")
	maxLen     = flag.Int("max_len", 400, "Maximum sequence length")
	seed       = flag.Int64("seed", 1, "PRNG seed, for reproducible datasets")
	nFamilies  = flag.Int("families", 10, "Number of base sequences that get mutated into homologs")
	mutateRate = flag.Float64("mutate_rate", 0.05, "Per-residue substitution probability when generating a homolog")
)

const alphabet = "ARNDCQEGHILKMFPSTWYV"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	f, err := os.Create(*outPath)
	if err != nil {
		log.Error.Printf("creating %s: %v", *outPath, err)
		os.Exit(1)
	}
	defer f.Close()

	r := rand.New(rand.NewSource(*seed))
	families := make([][]byte, *nFamilies)
	for i := range families {
		families[i] = randomSequence(r, *minLen, *maxLen)
	}

	for i := 0; i < *numSeqs; i++ {
		genome := fmt.Sprintf("genome%d", i%*numGenomes)
		base := families[r.Intn(len(families))]
		seq := mutate(r, base, *mutateRate)
		fmt.Fprintf(f, ">%s_seq%d\n", genome, i)
		writeWrapped(f, seq, 60)
	}
	log.Debug.Printf("wrote %d sequences across %d genomes to %s", *numSeqs, *numGenomes, *outPath)
}

func randomSequence(r *rand.Rand, minLen, maxLen int) []byte {
	n := minLen
	if maxLen > minLen {
		n += r.Intn(maxLen - minLen)
	}
	seq := make([]byte, n)
	for i := range seq {
		seq[i] = alphabet[r.Intn(len(alphabet))]
	}
	return seq
}

func mutate(r *rand.Rand, base []byte, rate float64) []byte {
	out := make([]byte, len(base))
	copy(out, base)
	for i := range out {
		if r.Float64() < rate {
			out[i] = alphabet[r.Intn(len(alphabet))]
		}
	}
	return out
}

func writeWrapped(f *os.File, seq []byte, width int) {
	for i := 0; i < len(seq); i += width {
		end := i + width
		if end > len(seq) {
			end = len(seq)
		}
		fmt.Fprintf(f, "%s\n", seq[i:end])
	}
}
