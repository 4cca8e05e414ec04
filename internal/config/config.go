/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package config provides configuration management for FlyRaft processes.

Configuration is resolved in precedence order:

 1. Built-in defaults
 2. Configuration file (TOML-style key = value pairs)
 3. Environment variables (FLYRAFT_*)

The Manager supports reload-on-demand with change callbacks, so an
embedding process can pick up tuning changes without a restart.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"flyraft/internal/compression"
	"flyraft/pkg/raft"
)

// Environment variable names.
const (
	EnvNodeID        = "FLYRAFT_NODE_ID"
	EnvNumNodes      = "FLYRAFT_NUM_NODES"
	EnvDataDir       = "FLYRAFT_DATA_DIR"
	EnvSyncWrites    = "FLYRAFT_SYNC_WRITES"
	EnvLogLevel      = "FLYRAFT_LOG_LEVEL"
	EnvLogJSON       = "FLYRAFT_LOG_JSON"
	EnvSnapshotCodec = "FLYRAFT_SNAPSHOT_COMPRESSION"
)

// Config holds a FlyRaft node's process configuration.
type Config struct {
	NodeID   int32  `json:"node_id"`
	NumNodes int32  `json:"num_nodes"`
	DataDir  string `json:"data_dir"`

	SyncWrites bool `json:"sync_writes"`

	ElectionTimeoutMinMS   uint64 `json:"election_timeout_min_ms"`
	ElectionTimeoutMaxMS   uint64 `json:"election_timeout_max_ms"`
	HeartbeatIntervalMS    uint64 `json:"heartbeat_interval_ms"`
	MaxEntriesPerAppend    int    `json:"max_entries_per_append"`
	LogCompactionThreshold uint64 `json:"log_compaction_threshold"`
	MaxCommandSize         int    `json:"max_command_size"`
	SnapshotCompression    string `json:"snapshot_compression"`

	LogLevel string `json:"log_level"`
	LogJSON  bool   `json:"log_json"`

	// ConfigFile records where the configuration was loaded from.
	ConfigFile string `json:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NodeID:                 0,
		NumNodes:               1,
		DataDir:                "",
		SyncWrites:             true,
		ElectionTimeoutMinMS:   150,
		ElectionTimeoutMaxMS:   300,
		HeartbeatIntervalMS:    50,
		MaxEntriesPerAppend:    100,
		LogCompactionThreshold: 10000,
		MaxCommandSize:         1024 * 1024,
		SnapshotCompression:    "snappy",
		LogLevel:               "info",
		LogJSON:                false,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.NumNodes < 1 {
		return fmt.Errorf("num_nodes must be at least 1, got %d", c.NumNodes)
	}
	if c.NodeID < 0 || c.NodeID >= c.NumNodes {
		return fmt.Errorf("node_id %d out of range [0, %d)", c.NodeID, c.NumNodes)
	}
	if c.ElectionTimeoutMinMS == 0 || c.ElectionTimeoutMaxMS < c.ElectionTimeoutMinMS {
		return fmt.Errorf("invalid election timeout range [%d, %d]",
			c.ElectionTimeoutMinMS, c.ElectionTimeoutMaxMS)
	}
	if c.HeartbeatIntervalMS == 0 || c.HeartbeatIntervalMS >= c.ElectionTimeoutMinMS {
		return fmt.Errorf("heartbeat_interval_ms %d must be below election_timeout_min_ms %d",
			c.HeartbeatIntervalMS, c.ElectionTimeoutMinMS)
	}
	if c.MaxEntriesPerAppend < 1 {
		return fmt.Errorf("max_entries_per_append must be at least 1")
	}
	if c.MaxCommandSize < 1 {
		return fmt.Errorf("max_command_size must be at least 1")
	}
	if _, err := compression.ParseAlgorithm(c.SnapshotCompression); err != nil {
		return err
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// ToRaftConfig converts the process configuration into core node options.
func (c *Config) ToRaftConfig() raft.Config {
	rc := raft.DefaultConfig(c.NodeID, c.NumNodes)
	rc.DataDir = c.DataDir
	rc.SyncWrites = c.SyncWrites
	rc.ElectionTimeoutMin = time.Duration(c.ElectionTimeoutMinMS) * time.Millisecond
	rc.ElectionTimeoutMax = time.Duration(c.ElectionTimeoutMaxMS) * time.Millisecond
	rc.HeartbeatInterval = time.Duration(c.HeartbeatIntervalMS) * time.Millisecond
	rc.MaxEntriesPerAppend = c.MaxEntriesPerAppend
	rc.LogCompactionThreshold = c.LogCompactionThreshold
	rc.MaxCommandSize = c.MaxCommandSize
	rc.SnapshotCompression = c.SnapshotCompression
	return rc
}

// ToTOML renders the configuration as a TOML document.
func (c *Config) ToTOML() string {
	var b strings.Builder
	b.WriteString("# FlyRaft configuration\n\n")
	fmt.Fprintf(&b, "node_id = %d\n", c.NodeID)
	fmt.Fprintf(&b, "num_nodes = %d\n", c.NumNodes)
	fmt.Fprintf(&b, "data_dir = %q\n", c.DataDir)
	fmt.Fprintf(&b, "sync_writes = %t\n", c.SyncWrites)
	fmt.Fprintf(&b, "election_timeout_min_ms = %d\n", c.ElectionTimeoutMinMS)
	fmt.Fprintf(&b, "election_timeout_max_ms = %d\n", c.ElectionTimeoutMaxMS)
	fmt.Fprintf(&b, "heartbeat_interval_ms = %d\n", c.HeartbeatIntervalMS)
	fmt.Fprintf(&b, "max_entries_per_append = %d\n", c.MaxEntriesPerAppend)
	fmt.Fprintf(&b, "log_compaction_threshold = %d\n", c.LogCompactionThreshold)
	fmt.Fprintf(&b, "max_command_size = %d\n", c.MaxCommandSize)
	fmt.Fprintf(&b, "snapshot_compression = %q\n", c.SnapshotCompression)
	fmt.Fprintf(&b, "log_level = %q\n", c.LogLevel)
	fmt.Fprintf(&b, "log_json = %t\n", c.LogJSON)
	return b.String()
}

// SaveToFile writes the configuration as TOML, creating parent
// directories as needed.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(c.ToTOML()), 0o644)
}

// String returns a human-readable summary.
func (c *Config) String() string {
	return fmt.Sprintf("Config{NodeID: %d, NumNodes: %d, DataDir: %q, SyncWrites: %t, LogLevel: %s}",
		c.NodeID, c.NumNodes, c.DataDir, c.SyncWrites, c.LogLevel)
}

// Manager owns a Config and its reload lifecycle.
type Manager struct {
	mu       sync.RWMutex
	cfg      *Config
	onReload []func(*Config)
}

// NewManager creates a manager holding the default configuration.
func NewManager() *Manager {
	return &Manager{cfg: DefaultConfig()}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// LoadFromFile loads key = value pairs from a TOML-style file.
func (m *Manager) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := *m.cfg
	for lineNo, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("%s:%d: expected key = value", path, lineNo+1)
		}
		if err := applyKey(&cfg, strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo+1, err)
		}
	}
	cfg.ConfigFile = path
	m.cfg = &cfg
	return nil
}

// LoadFromEnv overlays FLYRAFT_* environment variables onto the current
// configuration. Environment values win over file values.
func (m *Manager) LoadFromEnv() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := *m.cfg
	if v := os.Getenv(EnvNodeID); v != "" {
		if id, err := strconv.ParseInt(v, 10, 32); err == nil {
			cfg.NodeID = int32(id)
		}
	}
	if v := os.Getenv(EnvNumNodes); v != "" {
		if nn, err := strconv.ParseInt(v, 10, 32); err == nil {
			cfg.NumNodes = int32(nn)
		}
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvSyncWrites); v != "" {
		cfg.SyncWrites = parseBool(v, cfg.SyncWrites)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		cfg.LogJSON = parseBool(v, cfg.LogJSON)
	}
	if v := os.Getenv(EnvSnapshotCodec); v != "" {
		cfg.SnapshotCompression = v
	}
	m.cfg = &cfg
}

// Reload re-reads the configuration file last loaded and notifies the
// registered callbacks.
func (m *Manager) Reload() error {
	m.mu.RLock()
	path := m.cfg.ConfigFile
	m.mu.RUnlock()

	if path == "" {
		return fmt.Errorf("no configuration file to reload")
	}
	if err := m.LoadFromFile(path); err != nil {
		return err
	}

	m.mu.RLock()
	cfg := m.cfg
	callbacks := append([]func(*Config){}, m.onReload...)
	m.mu.RUnlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
	return nil
}

// OnReload registers a callback invoked after each successful Reload.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = append(m.onReload, fn)
}

var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the process-wide configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
	})
	return globalManager
}

func applyKey(cfg *Config, key, value string) error {
	switch key {
	case "node_id":
		return parseInt32(value, &cfg.NodeID)
	case "num_nodes":
		return parseInt32(value, &cfg.NumNodes)
	case "data_dir":
		cfg.DataDir = unquote(value)
	case "sync_writes":
		cfg.SyncWrites = parseBool(value, cfg.SyncWrites)
	case "election_timeout_min_ms":
		return parseUint64(value, &cfg.ElectionTimeoutMinMS)
	case "election_timeout_max_ms":
		return parseUint64(value, &cfg.ElectionTimeoutMaxMS)
	case "heartbeat_interval_ms":
		return parseUint64(value, &cfg.HeartbeatIntervalMS)
	case "max_entries_per_append":
		return parseInt(value, &cfg.MaxEntriesPerAppend)
	case "log_compaction_threshold":
		return parseUint64(value, &cfg.LogCompactionThreshold)
	case "max_command_size":
		return parseInt(value, &cfg.MaxCommandSize)
	case "snapshot_compression":
		cfg.SnapshotCompression = unquote(value)
	case "log_level":
		cfg.LogLevel = unquote(value)
	case "log_json":
		cfg.LogJSON = parseBool(value, cfg.LogJSON)
	default:
		return fmt.Errorf("unknown configuration key %q", key)
	}
	return nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func parseBool(s string, def bool) bool {
	v, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return def
	}
	return v
}

func parseInt32(s string, out *int32) error {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return err
	}
	*out = int32(v)
	return nil
}

func parseInt(s string, out *int) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*out = v
	return nil
}

func parseUint64(s string, out *uint64) error {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*out = v
	return nil
}
