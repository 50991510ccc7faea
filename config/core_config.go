// Package config provides core tuning configuration for the event bus,
// allocator, and serialization subsystems - NO infrastructure URLs.
//
// This module contains ONLY configuration relevant to the in-process
// runtime: timeouts, limits, allocator sizing, and bus dispatch toggles.
//
// Infrastructure configuration (gRPC listen address, OTLP collector
// endpoint) is read directly by cmd/velcrod from flags, not through
// this package.
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/jeeves-cluster-organization/velcro-core/typeutil"
	"gopkg.in/yaml.v3"
)

// CoreConfig holds tuning knobs for the bus, allocator, and serialization
// subsystems. It is infrastructure-agnostic: nothing here names a host,
// port, or credential.
type CoreConfig struct {
	// Allocator
	ArenaSizeBytes     int64 `json:"arena_size_bytes" yaml:"arena_size_bytes"`
	MaxAllocationBytes int64 `json:"max_allocation_bytes" yaml:"max_allocation_bytes"`

	// Event bus dispatch
	LocklessDispatch             bool `json:"lockless_dispatch" yaml:"lockless_dispatch"`
	EnableEventQueue             bool `json:"enable_event_queue" yaml:"enable_event_queue"`
	EnableQueuedReferences       bool `json:"enable_queued_references" yaml:"enable_queued_references"`
	EventQueueingActiveByDefault bool `json:"event_queueing_active_by_default" yaml:"event_queueing_active_by_default"`
	MaxQueuedEvents              int  `json:"max_queued_events" yaml:"max_queued_events"`

	// Serialization
	StrictVersionUpgrades bool `json:"strict_version_upgrades" yaml:"strict_version_upgrades"` // carried in the config only; no package reads it
	MaxTraversalDepth     int  `json:"max_traversal_depth" yaml:"max_traversal_depth"`

	// RPC surface
	GRPCTimeoutSeconds int `json:"grpc_timeout_seconds" yaml:"grpc_timeout_seconds"`

	// Determinism
	TypeIDSeed *int64 `json:"type_id_seed,omitempty" yaml:"type_id_seed,omitempty"` // carried in the config only; typeid.CreateName takes no seed and is always deterministic

	// Logging
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// DefaultCoreConfig returns a CoreConfig with default values.
func DefaultCoreConfig() *CoreConfig {
	return &CoreConfig{
		ArenaSizeBytes:     16 << 20, // 16 MiB
		MaxAllocationBytes: 64 << 20, // 64 MiB

		LocklessDispatch:             false,
		EnableEventQueue:             true,
		EnableQueuedReferences:       false,
		EventQueueingActiveByDefault: false,
		MaxQueuedEvents:              4096,

		StrictVersionUpgrades: false,
		MaxTraversalDepth:     64,

		GRPCTimeoutSeconds: 30,

		TypeIDSeed: nil,

		LogLevel: "INFO",
	}
}

// CoreConfigFromMap creates a CoreConfig from a map, starting from
// defaults. Unknown keys are ignored; present keys overwrite the default.
func CoreConfigFromMap(m map[string]any) *CoreConfig {
	c := DefaultCoreConfig()

	c.ArenaSizeBytes = int64(typeutil.SafeIntDefault(m["arena_size_bytes"], int(c.ArenaSizeBytes)))
	c.MaxAllocationBytes = int64(typeutil.SafeIntDefault(m["max_allocation_bytes"], int(c.MaxAllocationBytes)))

	c.LocklessDispatch = typeutil.SafeBoolDefault(m["lockless_dispatch"], c.LocklessDispatch)
	c.EnableEventQueue = typeutil.SafeBoolDefault(m["enable_event_queue"], c.EnableEventQueue)
	c.EnableQueuedReferences = typeutil.SafeBoolDefault(m["enable_queued_references"], c.EnableQueuedReferences)
	c.EventQueueingActiveByDefault = typeutil.SafeBoolDefault(m["event_queueing_active_by_default"], c.EventQueueingActiveByDefault)
	c.MaxQueuedEvents = typeutil.SafeIntDefault(m["max_queued_events"], c.MaxQueuedEvents)

	c.StrictVersionUpgrades = typeutil.SafeBoolDefault(m["strict_version_upgrades"], c.StrictVersionUpgrades)
	c.MaxTraversalDepth = typeutil.SafeIntDefault(m["max_traversal_depth"], c.MaxTraversalDepth)

	c.GRPCTimeoutSeconds = typeutil.SafeIntDefault(m["grpc_timeout_seconds"], c.GRPCTimeoutSeconds)

	if v, ok := typeutil.SafeInt(m["type_id_seed"]); ok {
		seed := int64(v)
		c.TypeIDSeed = &seed
	}

	c.LogLevel = typeutil.SafeStringDefault(m["log_level"], c.LogLevel)

	return c
}

// LoadCoreConfigYAML reads and parses a YAML file into a CoreConfig,
// starting from defaults for any field the file omits.
func LoadCoreConfigYAML(path string) (*CoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	c := DefaultCoreConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return c, nil
}

// ToMap converts config to a map, the inverse of CoreConfigFromMap.
func (c *CoreConfig) ToMap() map[string]any {
	result := map[string]any{
		"arena_size_bytes":                 c.ArenaSizeBytes,
		"max_allocation_bytes":             c.MaxAllocationBytes,
		"lockless_dispatch":                c.LocklessDispatch,
		"enable_event_queue":               c.EnableEventQueue,
		"enable_queued_references":         c.EnableQueuedReferences,
		"event_queueing_active_by_default": c.EventQueueingActiveByDefault,
		"max_queued_events":                c.MaxQueuedEvents,
		"strict_version_upgrades":          c.StrictVersionUpgrades,
		"max_traversal_depth":              c.MaxTraversalDepth,
		"grpc_timeout_seconds":             c.GRPCTimeoutSeconds,
		"log_level":                        c.LogLevel,
	}
	if c.TypeIDSeed != nil {
		result["type_id_seed"] = *c.TypeIDSeed
	}
	return result
}

// =============================================================================
// GLOBAL CONFIG (set by cmd/velcrod at startup)
// =============================================================================

var (
	globalCoreConfig *CoreConfig
	configMu         sync.RWMutex
)

// GetCoreConfig gets the core configuration instance.
// Returns the injected config or defaults.
func GetCoreConfig() *CoreConfig {
	configMu.RLock()
	defer configMu.RUnlock()

	if globalCoreConfig == nil {
		return DefaultCoreConfig()
	}
	return globalCoreConfig
}

// SetCoreConfig sets the core configuration instance.
func SetCoreConfig(config *CoreConfig) {
	configMu.Lock()
	defer configMu.Unlock()

	globalCoreConfig = config
}

// ResetCoreConfig resets core config to nil (useful for testing).
// After reset, GetCoreConfig() will return defaults.
func ResetCoreConfig() {
	configMu.Lock()
	defer configMu.Unlock()

	globalCoreConfig = nil
}
