package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DEFAULT CONFIG TESTS
// =============================================================================

func TestDefaultCoreConfig(t *testing.T) {
	config := DefaultCoreConfig()

	assert.Equal(t, int64(16<<20), config.ArenaSizeBytes)
	assert.Equal(t, int64(64<<20), config.MaxAllocationBytes)

	assert.False(t, config.LocklessDispatch)
	assert.True(t, config.EnableEventQueue)
	assert.False(t, config.EnableQueuedReferences)
	assert.False(t, config.EventQueueingActiveByDefault)
	assert.Equal(t, 4096, config.MaxQueuedEvents)

	assert.False(t, config.StrictVersionUpgrades)
	assert.Equal(t, 64, config.MaxTraversalDepth)

	assert.Equal(t, 30, config.GRPCTimeoutSeconds)
	assert.Nil(t, config.TypeIDSeed)

	assert.Equal(t, "INFO", config.LogLevel)
}

// =============================================================================
// FROM MAP TESTS
// =============================================================================

func TestCoreConfigFromMap(t *testing.T) {
	m := map[string]any{
		"arena_size_bytes":     float64(1 << 20), // JSON-decoded numbers arrive as float64
		"lockless_dispatch":    true,
		"enable_event_queue":   false,
		"max_queued_events":    256,
		"max_traversal_depth":  32,
		"grpc_timeout_seconds": 5,
		"type_id_seed":         float64(42),
		"log_level":            "DEBUG",
	}

	c := CoreConfigFromMap(m)

	assert.Equal(t, int64(1<<20), c.ArenaSizeBytes)
	assert.True(t, c.LocklessDispatch)
	assert.False(t, c.EnableEventQueue)
	assert.Equal(t, 256, c.MaxQueuedEvents)
	assert.Equal(t, 32, c.MaxTraversalDepth)
	assert.Equal(t, 5, c.GRPCTimeoutSeconds)
	require.NotNil(t, c.TypeIDSeed)
	assert.Equal(t, int64(42), *c.TypeIDSeed)
	assert.Equal(t, "DEBUG", c.LogLevel)
}

func TestCoreConfigFromMap_UnknownKeysIgnored(t *testing.T) {
	m := map[string]any{"not_a_real_field": "whatever"}
	c := CoreConfigFromMap(m)
	assert.Equal(t, DefaultCoreConfig(), c)
}

func TestCoreConfigFromMap_MissingKeysUseDefaults(t *testing.T) {
	c := CoreConfigFromMap(map[string]any{"log_level": "WARN"})
	assert.Equal(t, "WARN", c.LogLevel)
	assert.Equal(t, DefaultCoreConfig().MaxTraversalDepth, c.MaxTraversalDepth)
}

// =============================================================================
// TO MAP TESTS
// =============================================================================

func TestCoreConfig_ToMap_RoundTrip(t *testing.T) {
	original := DefaultCoreConfig()
	original.LogLevel = "TRACE"
	seed := int64(7)
	original.TypeIDSeed = &seed

	m := original.ToMap()
	restored := CoreConfigFromMap(m)

	assert.Equal(t, original, restored)
}

func TestCoreConfig_ToMap_OmitsNilSeed(t *testing.T) {
	c := DefaultCoreConfig()
	m := c.ToMap()
	_, ok := m["type_id_seed"]
	assert.False(t, ok)
}

// =============================================================================
// YAML LOADING TESTS
// =============================================================================

func TestLoadCoreConfigYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "velcro.yaml")
	contents := "arena_size_bytes: 2097152\nlog_level: DEBUG\nlockless_dispatch: true\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	c, err := LoadCoreConfigYAML(path)
	require.NoError(t, err)

	assert.Equal(t, int64(2097152), c.ArenaSizeBytes)
	assert.Equal(t, "DEBUG", c.LogLevel)
	assert.True(t, c.LocklessDispatch)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, DefaultCoreConfig().MaxQueuedEvents, c.MaxQueuedEvents)
}

func TestLoadCoreConfigYAML_MissingFile(t *testing.T) {
	_, err := LoadCoreConfigYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadCoreConfigYAML_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))

	_, err := LoadCoreConfigYAML(path)
	assert.Error(t, err)
}

// =============================================================================
// GLOBAL CONFIG TESTS
// =============================================================================

func TestGetCoreConfig_DefaultsWhenUnset(t *testing.T) {
	ResetCoreConfig()
	defer ResetCoreConfig()

	assert.Equal(t, DefaultCoreConfig(), GetCoreConfig())
}

func TestSetAndGetCoreConfig(t *testing.T) {
	defer ResetCoreConfig()

	custom := DefaultCoreConfig()
	custom.LogLevel = "ERROR"
	SetCoreConfig(custom)

	assert.Same(t, custom, GetCoreConfig())
}

func TestResetCoreConfig(t *testing.T) {
	defer ResetCoreConfig()

	SetCoreConfig(&CoreConfig{LogLevel: "ERROR"})
	ResetCoreConfig()

	assert.Equal(t, DefaultCoreConfig(), GetCoreConfig())
}
