package types

import (
	"fmt"
)

// Default CommArgs values applied before per-line overrides.
const (
	DefaultHostCount      = 128
	DefaultGroupNodeCount = 8
	DefaultParallelism    = 1
	DefaultMessageLength  = 32 * 1024 * 1024
	DefaultPhaseCount     = 7
	DefaultIterationCount = 1
)

// CommArgs holds the parameters of one communication node.
type CommArgs struct {
	HostCount      int   `json:"host_num" yaml:"host_num" toml:"host_num"`
	GroupNodeCount int   `json:"num_nodes" yaml:"num_nodes" toml:"num_nodes"`
	Parallelism    int   `json:"dp" yaml:"dp" toml:"dp"`
	MessageLength  int64 `json:"msg_len" yaml:"msg_len" toml:"msg_len"`
	PhaseCount     int   `json:"num_phases" yaml:"num_phases" toml:"num_phases"`
	IterationCount int   `json:"num_iterations" yaml:"num_iterations" toml:"num_iterations"`
	Device         int   `json:"device" yaml:"device" toml:"device"`
	Forward        int   `json:"forward" yaml:"forward" toml:"forward"`
}

// DefaultCommArgs returns the argument record every grammar line starts from.
func DefaultCommArgs() CommArgs {
	return CommArgs{
		HostCount:      DefaultHostCount,
		GroupNodeCount: DefaultGroupNodeCount,
		Parallelism:    DefaultParallelism,
		MessageLength:  DefaultMessageLength,
		PhaseCount:     DefaultPhaseCount,
		IterationCount: DefaultIterationCount,
		Device:         0,
		Forward:        1,
	}
}

// Validate checks the record against a run with deviceCount devices.
func (a *CommArgs) Validate(deviceCount int) error {
	if a.HostCount <= 0 {
		return fmt.Errorf("host_num must be positive, got %d", a.HostCount)
	}
	if a.GroupNodeCount <= 0 {
		return fmt.Errorf("num_nodes must be positive, got %d", a.GroupNodeCount)
	}
	if a.Parallelism <= 0 {
		return fmt.Errorf("dp must be positive, got %d", a.Parallelism)
	}
	if a.PhaseCount <= 0 {
		return fmt.Errorf("num_phases must be positive, got %d", a.PhaseCount)
	}
	if a.IterationCount <= 0 {
		return fmt.Errorf("num_iterations must be positive, got %d", a.IterationCount)
	}
	if a.MessageLength < 0 {
		return fmt.Errorf("msg_len cannot be negative: %d", a.MessageLength)
	}
	if err := a.ValidateDevice(deviceCount); err != nil {
		return err
	}
	return a.ValidateForward()
}

// ValidateDevice checks 0 <= device < deviceCount.
func (a *CommArgs) ValidateDevice(deviceCount int) error {
	if a.Device < 0 || a.Device >= deviceCount {
		return fmt.Errorf("device must be in [0, %d], got %d", deviceCount-1, a.Device)
	}
	return nil
}

// ValidateForward checks forward is 0 or 1.
func (a *CommArgs) ValidateForward() error {
	if a.Forward != 0 && a.Forward != 1 {
		return fmt.Errorf("forward must be 0 or 1, got %d", a.Forward)
	}
	return nil
}

// IsForward reports whether descriptors keep their natural direction.
func (a CommArgs) IsForward() bool {
	return a.Forward == 1
}

// EffectiveParallelism is the dp degree used for partitioning, never below 1.
func (a CommArgs) EffectiveParallelism() int {
	return max(1, a.Parallelism)
}
