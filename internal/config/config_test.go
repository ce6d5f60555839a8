package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.AgentBin != want.AgentBin || cfg.MuxSocket != want.MuxSocket {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadOverridesPartialFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
worktree_base_dir = "` + filepath.Join(dir, "wt") + `"
poll_interval_seconds = 7
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollIntervalSeconds != 7 {
		t.Errorf("PollIntervalSeconds = %d, want 7", cfg.PollIntervalSeconds)
	}
	if cfg.WorktreeBaseDir != filepath.Join(dir, "wt") {
		t.Errorf("WorktreeBaseDir = %q, want override", cfg.WorktreeBaseDir)
	}
	// Untouched fields keep their defaults.
	if cfg.AgentBin != Default().AgentBin {
		t.Errorf("AgentBin = %q, want default %q", cfg.AgentBin, Default().AgentBin)
	}
}

func TestProjectDBPath(t *testing.T) {
	cfg := Config{DataDir: "/tmp/data"}
	got := cfg.ProjectDBPath("demo")
	want := filepath.Join("/tmp/data", "demo.db")
	if got != want {
		t.Errorf("ProjectDBPath = %q, want %q", got, want)
	}
}
