// Package report builds and writes the summary of a generation run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/scttfrdmn/collective-traffic-gen/internal/errors"
	"github.com/scttfrdmn/collective-traffic-gen/internal/orchestrator"
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// Format is a summary encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// IterationSummary aggregates one iteration.
type IterationSummary struct {
	Iteration    int `json:"iteration" yaml:"iteration" toml:"iteration"`
	Nodes        int `json:"nodes" yaml:"nodes" toml:"nodes"`
	NodesSkipped int `json:"nodes_skipped" yaml:"nodes_skipped" toml:"nodes_skipped"`
	Traces       int `json:"traces" yaml:"traces" toml:"traces"`
	Descriptors  int `json:"descriptors" yaml:"descriptors" toml:"descriptors"`
	FirstPort    int `json:"first_port" yaml:"first_port" toml:"first_port"`
	NextPort     int `json:"next_port" yaml:"next_port" toml:"next_port"`
}

// RunSummary describes a finished run.
type RunSummary struct {
	RunID        string             `json:"run_id" yaml:"run_id" toml:"run_id"`
	GrammarPath  string             `json:"grammar" yaml:"grammar" toml:"grammar"`
	Model        types.Model        `json:"model" yaml:"model" toml:"model"`
	Devices      int                `json:"devices" yaml:"devices" toml:"devices"`
	Iterations   int                `json:"iterations" yaml:"iterations" toml:"iterations"`
	Seed         uint64             `json:"seed" yaml:"seed" toml:"seed"`
	Workers      int                `json:"workers" yaml:"workers" toml:"workers"`
	Output       string             `json:"output" yaml:"output" toml:"output"`
	StartedAt    time.Time          `json:"started_at" yaml:"started_at" toml:"started_at"`
	FinishedAt   time.Time          `json:"finished_at" yaml:"finished_at" toml:"finished_at"`
	Traces       int                `json:"traces" yaml:"traces" toml:"traces"`
	Descriptors  int                `json:"descriptors" yaml:"descriptors" toml:"descriptors"`
	PerIteration []IterationSummary `json:"per_iteration" yaml:"per_iteration" toml:"per_iteration"`
}

// AddIteration folds an orchestrator report into the summary.
func (s *RunSummary) AddIteration(r *orchestrator.IterationReport) {
	it := IterationSummary{
		Iteration:   r.Iteration,
		Nodes:       len(r.Nodes),
		Traces:      len(r.Traces),
		Descriptors: r.Descriptors(),
		FirstPort:   r.FirstPort,
		NextPort:    r.NextPort,
	}
	for _, n := range r.Nodes {
		if n.SkipReason != "" {
			it.NodesSkipped++
		}
	}

	s.PerIteration = append(s.PerIteration, it)
	s.Traces += it.Traces
	s.Descriptors += it.Descriptors
}

// FormatFromPath picks the encoding from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", errors.NewConfigError("FormatFromPath",
		fmt.Sprintf("unsupported summary format %q, use .yaml, .toml or .json", filepath.Ext(path)), nil)
}

// Encode writes s to w in format.
func Encode(w io.Writer, s *RunSummary, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case FormatTOML:
		return toml.NewEncoder(w).Encode(s)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	return fmt.Errorf("unknown format %q", format)
}

// Write saves s to path, encoded according to its extension.
func Write(s *RunSummary, path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create summary directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	if err := Encode(f, s, format); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return f.Close()
}
