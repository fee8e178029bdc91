package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if len(cfg.AccessPoint.Listeners) != 1 || cfg.AccessPoint.Listeners[0].Address != "0.0.0.0:8080" {
		t.Errorf("Listeners = %+v, want one default listener on 0.0.0.0:8080", cfg.AccessPoint.Listeners)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Pingora.Threads != 1 {
		t.Errorf("Pingora.Threads = %d, want 1", cfg.Pingora.Threads)
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		AccessPoint: AccessPointConfig{
			Listeners: []ListenerConfig{{Address: ":9090"}},
		},
		LogLevel: "debug",
	}
	cfg.SetDefaults()

	if len(cfg.AccessPoint.Listeners) != 1 || cfg.AccessPoint.Listeners[0].Address != ":9090" {
		t.Errorf("Listeners were overwritten: got %+v", cfg.AccessPoint.Listeners)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel was overwritten: got %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestConfig_SetDefaults_UpstreamSubDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Upstreams: []resource.Upstream{{ID: "u1", Nodes: map[string]int{"127.0.0.1:9000": 1}}},
	}
	cfg.SetDefaults()

	if cfg.Upstreams[0].SelectionPolicy != "round_robin" {
		t.Errorf("SelectionPolicy = %q, want %q", cfg.Upstreams[0].SelectionPolicy, "round_robin")
	}
	if cfg.Upstreams[0].Scheme != "http" {
		t.Errorf("Scheme = %q, want %q", cfg.Upstreams[0].Scheme, "http")
	}
}

func TestConfig_Registry_BuildsFromResourceLists(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	cfg.SetDefaults()

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry() error = %v", err)
	}
	if reg == nil {
		t.Fatal("Registry() returned nil")
	}
	if reg.Upstreams.Len() != 0 {
		t.Errorf("Upstreams.Len() = %d, want 0 for an empty config", reg.Upstreams.Len())
	}
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_MatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sentinel-gate.yaml")
	_ = os.WriteFile(cfgPath, []byte("access_point:\n  listeners:\n    - address: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_MatchesYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sentinel-gate.yml")
	_ = os.WriteFile(cfgPath, []byte("access_point:\n  listeners:\n    - address: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Simulate the binary: a file named "sentinel-gate" with no extension.
	_ = os.WriteFile(filepath.Join(dir, "sentinel-gate"), []byte("\x7fELF binary"), 0755)

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_PrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "sentinel-gate.yaml")
	ymlPath := filepath.Join(dir, "sentinel-gate.yml")
	_ = os.WriteFile(yamlPath, []byte("access_point:\n  listeners:\n    - address: :8080\n"), 0644)
	_ = os.WriteFile(ymlPath, []byte("access_point:\n  listeners:\n    - address: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != yamlPath {
		t.Errorf("findConfigFileInPaths = %q, want %q (.yaml preferred)", got, yamlPath)
	}
}
