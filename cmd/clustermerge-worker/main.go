/*
clustermerge-worker connects to a clustermerge-controller and processes
Batch, Partial, and Alignment requests (spec.md §4.7).
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
	"github.com/alpae/clustermerge/internal/cluster"
	"github.com/alpae/clustermerge/internal/config"
	"github.com/alpae/clustermerge/internal/dataset"
	"github.com/alpae/clustermerge/internal/dist"
	"github.com/alpae/clustermerge/internal/env"
	"github.com/alpae/clustermerge/internal/output"
	"github.com/alpae/clustermerge/internal/wire"
)

var (
	dataDir          = flag.String("d", "", "Directory containing scoring matrix JSON")
	threads          = flag.Int("t", 0, "Number of worker goroutines; 0 = runtime.NumCPU()")
	inputList        = flag.String("i", "", "Path to a name\\tpath input list file")
	outputDir        = flag.String("o", ".", "Directory to write this worker's match file to")
	serverConfigPath = flag.String("s", "", "Path to server-config JSON")
	controllerHost   = flag.String("C", "", "Controller hostname/address, overrides server-config's \"controller\" key")
	alignerParams    = flag.String("a", "", "Path to aligner-parameters JSON")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -d DATA_DIR -i INPUT_LIST -s SERVER_CONFIG [OPTIONS]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	if *dataDir == "" || *inputList == "" || *serverConfigPath == "" {
		log.Error.Printf("-d, -i, and -s are required")
		usage()
		os.Exit(1)
	}

	server, err := config.LoadServerConfig(*serverConfigPath)
	if err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
	if *controllerHost != "" {
		server.Controller = *controllerHost
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
	byID := make(map[uint32]cluster.Sequence, len(sequences))
	for _, s := range sequences {
		byID[s.AbsoluteID] = s
	}
	lookup := func(id uint32) (cluster.Sequence, bool) { s, ok := byID[id]; return s, ok }

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

	numWorkers := *threads
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	matchWriter, err := output.NewMatchWriter(filepath.Join(*outputDir, "worker-matches.jsonl"))
	if err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
	defer matchWriter.Close()
	var writeMu sync.Mutex

	done := make(chan struct{})
	err = traverse.Each(numWorkers, func(i int) error {
		a := aligner.New(envs, params)
		w := dist.NewWorker(server, a, lookup)
		w.AlignmentSink = func(resp wire.Response) {
			writeMu.Lock()
			defer writeMu.Unlock()
			matchWriter.Write(output.MatchRecord{
				Seq1ID:      resp.Seq1ID,
				Seq2ID:      resp.Seq2ID,
				Score:       resp.Score,
				PAMDistance: resp.PAMDistance,
				PAMVariance: resp.PAMVariance,
				Seq1Range:   [2]int{int(resp.Seq1Min), int(resp.Seq1Max)},
				Seq2Range:   [2]int{int(resp.Seq2Min), int(resp.Seq2Max)},
			})
		}
		return w.Run(done)
	})
	if err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
}
