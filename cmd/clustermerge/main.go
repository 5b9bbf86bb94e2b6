/*
clustermerge is the single-node entry point for the bottom-up protein
clustering pipeline (spec.md §6 "Single-node entry"): it loads one or more
FASTA datasets, merges singleton cluster-sets down to a single survivor, and
optionally schedules the all-vs-all intra-cluster alignment pass.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"

	"github.com/alpae/clustermerge/internal/aligner"
	"github.com/alpae/clustermerge/internal/allall"
	"github.com/alpae/clustermerge/internal/cluster"
	"github.com/alpae/clustermerge/internal/config"
	"github.com/alpae/clustermerge/internal/dataset"
	"github.com/alpae/clustermerge/internal/env"
	"github.com/alpae/clustermerge/internal/merge"
	"github.com/alpae/clustermerge/internal/output"
)

var (
	dataDir          = flag.String("data_dir", "", "Directory containing logPAM1.json, all_matrices.json, and optionally BLOSUM62.json")
	clusterThreads   = flag.Int("cluster-threads", 0, "Number of cluster-merge workers; 0 = runtime.NumCPU()")
	mergeThreads     = flag.Int("merge-threads", 4, "Parallelism given to MergeClustersParallel per pair")
	dupRemovalThresh = flag.Int("dup_removal_thresh", cluster.DefaultDupRemovalThreshold, "Skip duplicate removal on cluster sets at or below this size")
	alignerParams    = flag.String("aligner_params", "", "Path to aligner-parameters JSON (min_score, max_aa_uncovered, min_full_merge_score, blosum)")
	excludeAllAll    = flag.Bool("exclude_allall", false, "Skip the all-vs-all alignment pass after merging")
	inputList        = flag.String("input_list", "", "Path to a name\\tpath input list file")
	outputDir        = flag.String("output_dir", ".", "Directory to write clusters.json and all-all match files to")
	mergeIntoFile    = flag.String("file", "", "Merge the computed clusters into an existing clusters.json (incremental mode)")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -data_dir DIR -input_list FILE [OPTIONS]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	if *dataDir == "" || *inputList == "" {
		log.Error.Printf("-data_dir and -input_list are required")
		usage()
		os.Exit(1)
	}

	files, err := dataset.ReadInputList(*inputList)
	if err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
	sequences, err := dataset.LoadAll(files)
	if err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
	log.Debug.Printf("loaded %d sequences across %d genomes", len(sequences), len(files))

	params, err := config.LoadAlignerParams(*alignerParams)
	if err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
	envs, err := env.Load(*dataDir, params.MinScore, params.Blosum)
	if err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
	a := aligner.New(envs, params)

	numWorkers := *clusterThreads
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	var oldSet *cluster.Set
	if *mergeIntoFile != "" {
		byID := make(map[uint32]cluster.Sequence, len(sequences))
		for _, s := range sequences {
			byID[s.AbsoluteID] = s
		}
		oldSet, err = output.LoadClusters(*mergeIntoFile, func(id uint32) (cluster.Sequence, bool) { s, ok := byID[id]; return s, ok })
		if err != nil {
			log.Error.Printf("%v", err)
			os.Exit(1)
		}
	}

	driver := merge.New(sequences, a, merge.Config{
		MergeThreads:     *mergeThreads,
		DupRemovalThresh: *dupRemovalThresh,
		OldSet:           oldSet,
	})
	final := driver.Run(numWorkers)
	final.RemoveDuplicatesIfLarge(*dupRemovalThresh)

	datasetNames := make([]string, 0, len(files))
	for name := range files {
		datasetNames = append(datasetNames, name)
	}
	clustersPath := filepath.Join(*outputDir, "clusters.json")
	if err := output.WriteClusters(clustersPath, datasetNames, final); err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
	log.Debug.Printf("wrote %s", clustersPath)

	if *excludeAllAll {
		return
	}
	if err := runAllAll(final, a, *outputDir); err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
}

// runAllAll schedules and executes the all-vs-all intra-cluster alignment
// pass (spec.md §4.5), writing every match record to a single
// matches.jsonl in outputDir; there is no separate file per worker.
func runAllAll(final *cluster.Set, a *aligner.ProteinAligner, outputDir string) error {
	items := make([]allall.WorkItem, 0, 1024)
	stats := allall.Schedule(final, 4096, func(item allall.WorkItem) {
		items = append(items, item)
	})
	log.Debug.Printf("all-all: %d scheduled, %d avoided, %d duplicate clusters skipped",
		stats.NumScheduled, stats.NumAvoided, stats.NumDupsFound)
	if len(items) == 0 {
		return nil
	}

	matchPath := filepath.Join(outputDir, "matches.jsonl")
	w, err := output.NewMatchWriter(matchPath)
	if err != nil {
		return err
	}
	defer w.Close()

	var writeMu sync.Mutex
	return traverse.Each(len(items), func(i int) error {
		item := items[i]
		alignment, err := a.AlignLocal(item.Seq1.Residues, item.Seq2.Residues)
		if err != nil {
			return nil // score-only saturation / threshold failures are not run errors
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return w.Write(output.MatchRecord{
			Seq1ID:      item.Seq1.AbsoluteID,
			Seq2ID:      item.Seq2.AbsoluteID,
			Score:       alignment.Score,
			PAMDistance: alignment.PAMDistance,
			PAMVariance: alignment.PAMVariance,
			Seq1Range:   [2]int{alignment.Seq1Min, alignment.Seq1Max},
			Seq2Range:   [2]int{alignment.Seq2Min, alignment.Seq2Max},
		})
	})
}
