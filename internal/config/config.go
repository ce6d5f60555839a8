// Package config loads the optional user-level TOML configuration file and
// resolves the data/worktree directories and external binary names the rest
// of the module needs.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/opencode-kanban/okb/internal/constants"
)

// Config holds process-wide settings, defaulted before any file is read so
// a missing or partial config.toml never leaves a field unset.
type Config struct {
	DataDir             string `toml:"data_dir"`
	AgentBin            string `toml:"agent_bin"`
	MuxSocket           string `toml:"mux_socket"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	WorktreeBaseDir     string `toml:"worktree_base_dir"`
}

// Default returns a Config populated with the built-in defaults, with
// directory fields resolved against the user's data/config directories.
func Default() Config {
	dataDir := defaultDataDir()
	return Config{
		DataDir:             dataDir,
		AgentBin:            constants.DefaultAgentBin,
		MuxSocket:           constants.MuxSocket,
		PollIntervalSeconds: int(constants.PollBaseInterval.Seconds()),
		WorktreeBaseDir:     filepath.Join(dataDir, "worktrees"),
	}
}

// Load reads the config file at path, if present, and overlays it onto the
// defaults. A missing file is not an error. An explicit empty path resolves
// to the default location under XDG_CONFIG_HOME.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = defaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	// Re-derive WorktreeBaseDir only if DataDir changed and the caller did
	// not also explicitly set WorktreeBaseDir in the file.
	if cfg.WorktreeBaseDir == "" || !md.IsDefined("worktree_base_dir") {
		cfg.WorktreeBaseDir = filepath.Join(cfg.DataDir, "worktrees")
	}

	return cfg, nil
}

// ProjectDBPath returns the sqlite file path for a named project.
func (c Config) ProjectDBPath(project string) string {
	return filepath.Join(c.DataDir, project+".db")
}

func defaultDataDir() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, "opencode-kanban")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".opencode-kanban")
	}
	return filepath.Join(home, ".local", "share", "opencode-kanban")
}

func defaultConfigPath() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "opencode-kanban", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "opencode-kanban", "config.toml")
	}
	return filepath.Join(home, ".config", "opencode-kanban", "config.toml")
}
