/*
clustermerge-controller is the distributed merge controller entry point
(spec.md §4.6): it owns the authoritative sets-to-merge queue and fans merge
work across connected clustermerge-worker processes.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"

	"github.com/alpae/clustermerge/internal/aligner"
	"github.com/alpae/clustermerge/internal/cluster"
	"github.com/alpae/clustermerge/internal/config"
	"github.com/alpae/clustermerge/internal/dataset"
	"github.com/alpae/clustermerge/internal/dist"
	"github.com/alpae/clustermerge/internal/env"
	"github.com/alpae/clustermerge/internal/output"
)

var (
	dataDir            = flag.String("d", "", "Directory containing scoring matrix JSON")
	threads            = flag.Int("t", 4, "Response-processing pool size (only logged; responses are handled on each worker's connection goroutine)")
	queueDepth         = flag.Int("q", 64, "Response queue depth (only logged; no bounded response queue exists)")
	inputList          = flag.String("i", "", "Path to a name\\tpath input list file")
	outputDir          = flag.String("o", ".", "Directory to write clusters.json to")
	serverConfigPath   = flag.String("s", "", "Path to server-config JSON")
	controllerHost     = flag.String("C", "", "Controller hostname/address, overrides server-config's \"controller\" key")
	batchSize          = flag.Int("batch_size", 8, "Total cluster count threshold below which small sets are batched together")
	nseqsThreshold     = flag.Int("nseqs_threshold", 4096, "Right-hand sequence count threshold that triggers a new partial-merge chunk")
	alignerParams      = flag.String("a", "", "Path to aligner-parameters JSON")
	checkpointPath     = flag.String("checkpoint", "", "Path to write/load the sets-to-merge checkpoint")
	checkpointInterval = flag.Duration("checkpoint_interval", 0, "Checkpoint interval; 0 disables checkpointing")
	loadCheckpoint     = flag.Bool("load_checkpoint", false, "Resume from -checkpoint instead of seeding singleton sets")
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

	log.Debug.Printf("controller: response pool=%d queue_depth=%d", *threads, *queueDepth)

	ctrl, err := dist.NewController(sequences, a, dist.ControllerConfig{
		Server:             server,
		BatchSize:          *batchSize,
		NSeqsThreshold:     *nseqsThreshold,
		CheckpointPath:     *checkpointPath,
		CheckpointInterval: *checkpointInterval,
		LoadCheckpoint:     *loadCheckpoint,
	})
	if err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}

	var matchWriter outputMatchWriter
	if w, err := newMatchWriter(*outputDir); err == nil {
		matchWriter = w
		defer matchWriter.Close()
	} else {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	go func() {
		for !ctrl.Done() {
			time.Sleep(100 * time.Millisecond)
		}
		ctrl.Shutdown()
		close(done)
	}()

	if err := ctrl.Serve(matchWriter.handle); err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
	<-done

	final, err := ctrl.FinalSet()
	if err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
	final.RemoveDuplicatesIfLarge(cluster.DefaultDupRemovalThreshold)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	clustersPath := filepath.Join(*outputDir, "clusters.json")
	if err := output.WriteClusters(clustersPath, names, final); err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
	log.Debug.Printf("wrote %s", clustersPath)
}
