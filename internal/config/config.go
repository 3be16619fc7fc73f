// Package config holds the configuration keys enumerated in SPEC_FULL.md
// §6, sourced from TOML (github.com/BurntSushi/toml) the way the teacher's
// lib/config.TimeoutConfig ships defaults plus a self-correcting Adjust
// method, and overridable by cobra/pflag flags in cmd/driver and
// cmd/executor.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
)

// DriverConfig configures the DriverEndpoint and the SchedulerBackend API.
type DriverConfig struct {
	ListenAddr string `toml:"listen_addr"`

	// MinRegisteredResourcesRatio clamps to [0, 1]; default 0 means any
	// number of registered executors satisfies the readiness gate.
	MinRegisteredResourcesRatio float64 `toml:"min_registered_resources_ratio"`
	// MaxRegisteredResourcesWaitingTime is the wall-clock fallback for the
	// readiness gate.
	MaxRegisteredResourcesWaitingTime time.Duration `toml:"max_registered_resources_waiting_time"`
	// ReviveInterval is the period of the driver's self-enqueued
	// ReviveOffers timer.
	ReviveInterval time.Duration `toml:"revive_interval"`

	// MaxFrameSize is the RPC transport's single-message byte budget;
	// Reserved is the fixed transport overhead subtracted from it before
	// comparing against a task's serialized size.
	MaxFrameSize int64 `toml:"max_frame_size"`
	Reserved     int64 `toml:"reserved"`

	// DefaultParallelism overrides the max(total_core_count, 2) default when
	// positive.
	DefaultParallelism int `toml:"default_parallelism"`

	// CPUsPerTask is supplied by the task scheduler in spec.md's model, but
	// is also exposed here as the driver's default when the scheduler
	// declines to override it per task-set.
	CPUsPerTask int `toml:"cpus_per_task"`

	// ExpectedExecutors feeds sufficient_resources_registered's
	// default ratio check; 0 disables the ratio-based gate entirely
	// (the wall-clock fallback still applies).
	ExpectedExecutors int `toml:"expected_executors"`
}

// Adjust validates and clamps a DriverConfig the way
// lib/config.TimeoutConfig.Adjust does.
func (c DriverConfig) Adjust() DriverConfig {
	out := c
	if out.MinRegisteredResourcesRatio < 0 {
		out.MinRegisteredResourcesRatio = 0
	}
	if out.MinRegisteredResourcesRatio > 1 {
		out.MinRegisteredResourcesRatio = 1
	}
	if out.MaxRegisteredResourcesWaitingTime <= 0 {
		out.MaxRegisteredResourcesWaitingTime = 30 * time.Second
	}
	if out.ReviveInterval <= 0 {
		out.ReviveInterval = time.Second
	}
	if out.CPUsPerTask <= 0 {
		out.CPUsPerTask = 1
	}
	return out
}

// DefaultDriverConfig matches the defaults enumerated in SPEC_FULL.md §6.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		MinRegisteredResourcesRatio:       0,
		MaxRegisteredResourcesWaitingTime: 30 * time.Second,
		ReviveInterval:                    time.Second,
		CPUsPerTask:                       1,
	}.Adjust()
}

// ExecutorConfig mirrors the executor process CLI contract of
// SPEC_FULL.md §6: options --driver-url, --executor-id, --hostname,
// --cores, --app-id, --worker-url, repeated --user-class-path.
type ExecutorConfig struct {
	DriverURL      string   `toml:"driver_url"`
	ExecutorID     string   `toml:"executor_id"`
	Hostname       string   `toml:"hostname"`
	Cores          int      `toml:"cores"`
	AppID          string   `toml:"app_id"`
	WorkerURL      string   `toml:"worker_url"`
	UserClassPath  []string `toml:"user_class_path"`
	Port           int      `toml:"port"`
}

// Validate enforces the CLI contract's "missing required options exit 1"
// rule, returning the first missing option's name.
func (c ExecutorConfig) Validate() (missing string, ok bool) {
	switch {
	case c.DriverURL == "":
		return "driver-url", false
	case c.ExecutorID == "":
		return "executor-id", false
	case c.Hostname == "":
		return "hostname", false
	case c.Cores <= 0:
		return "cores", false
	case c.AppID == "":
		return "app-id", false
	default:
		return "", true
	}
}

// LoadTOML decodes a DriverConfig or ExecutorConfig (or any struct) from a
// TOML file at path.
func LoadTOML(path string, v interface{}) error {
	_, err := toml.DecodeFile(path, v)
	return err
}
