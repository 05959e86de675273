package main

import (
	"os"

	"gopkg.in/yaml.v2"
)

// fileConfig holds the worker, I/O and output overrides an optional
// "-config <file>" can supply, loaded the same way provider settings
// are loaded elsewhere in the pack: a single YAML document unmarshaled
// directly into flag-shaped fields.
type fileConfig struct {
	Threads     *int    `yaml:"threads"`
	IOChannels  *int    `yaml:"io_channels"`
	BatchSize   *int    `yaml:"batch_size"`
	WriteResult *string `yaml:"write_results"`
	CSVOut      *string `yaml:"csv_out"`
}

func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyConfig overrides threads/ioChannels/batchSize/writeResults/csvOut
// with whatever fileConfig sets, leaving flag-supplied defaults alone
// where the file is silent. cobra has already parsed the command line
// into these same variables by the time this runs, so a value the file
// sets replaces the flag's value even when that flag was passed
// explicitly.
func applyConfig(cfg fileConfig, threads, ioChannels, batchSize *int, writeResults, csvOut *string) {
	if cfg.Threads != nil {
		*threads = *cfg.Threads
	}
	if cfg.IOChannels != nil {
		*ioChannels = *cfg.IOChannels
	}
	if cfg.BatchSize != nil {
		*batchSize = *cfg.BatchSize
	}
	if cfg.WriteResult != nil {
		*writeResults = *cfg.WriteResult
	}
	if cfg.CSVOut != nil {
		*csvOut = *cfg.CSVOut
	}
}
