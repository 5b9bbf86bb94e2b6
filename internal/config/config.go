// Package config loads the aligner-parameters and server-config JSON files
// named by spec.md §6.
package config

import (
	"encoding/json"
	"os"

	"github.com/grailbio/base/errors"

	"github.com/alpae/clustermerge/internal/aligner"
	"github.com/alpae/clustermerge/internal/dist"
)

type alignerParamsJSON struct {
	MinScore          *int     `json:"min_score"`
	MaxAAUncovered    *int     `json:"max_aa_uncovered"`
	MinFullMergeScore *float64 `json:"min_full_merge_score"`
	Blosum            *bool    `json:"blosum"`
}

// LoadAlignerParams reads spec.md §6's aligner-parameters JSON, applying
// aligner.DefaultParams() for any key the file omits.
func LoadAlignerParams(path string) (aligner.Params, error) {
	p := aligner.DefaultParams()
	if path == "" {
		return p, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return aligner.Params{}, errors.E(errors.NotExist, "config: open aligner params", path, ":", err)
	}
	defer f.Close()

	var raw alignerParamsJSON
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return aligner.Params{}, errors.E(errors.Invalid, "config: decode aligner params", path, ":", err)
	}
	if raw.MinScore != nil {
		p.MinScore = *raw.MinScore
	}
	if raw.MaxAAUncovered != nil {
		p.MaxAAUncovered = *raw.MaxAAUncovered
	}
	if raw.MinFullMergeScore != nil {
		p.MinFullMergeScore = *raw.MinFullMergeScore
	}
	if raw.Blosum != nil {
		p.Blosum = *raw.Blosum
	}
	return p, nil
}

type serverConfigJSON struct {
	Controller        string `json:"controller"`
	RequestQueuePort  int    `json:"request_queue_port"`
	ResponseQueuePort int    `json:"response_queue_port"`
}

// LoadServerConfig reads spec.md §6's server-config JSON, applying documented
// port defaults for any omitted key.
func LoadServerConfig(path string) (dist.ServerConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return dist.ServerConfig{}, errors.E(errors.NotExist, "config: open server config", path, ":", err)
	}
	defer f.Close()

	var raw serverConfigJSON
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return dist.ServerConfig{}, errors.E(errors.Invalid, "config: decode server config", path, ":", err)
	}
	cfg := dist.DefaultServerConfig(raw.Controller)
	if raw.RequestQueuePort != 0 {
		cfg.RequestQueuePort = raw.RequestQueuePort
	}
	if raw.ResponseQueuePort != 0 {
		cfg.ResponseQueuePort = raw.ResponseQueuePort
	}
	return cfg, nil
}
