package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeWorkspace(t *testing.T, root, content string) {
	t.Helper()
	wsDir := filepath.Join(root, WorkspaceDirName)
	if err := os.MkdirAll(wsDir, 0755); err != nil {
		t.Fatalf("failed to create workspace dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(wsDir, WorkspaceConfigFile), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write workspace config: %v", err)
	}
}

func TestDiscoverWorkspace_Found(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "server:\n  name: test\n")

	result, err := DiscoverWorkspace(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != tmpDir {
		t.Errorf("expected %q, got %q", tmpDir, result)
	}
}

func TestDiscoverWorkspace_WalkUp(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "server:\n  name: test\n")

	nested := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("failed to create nested dirs: %v", err)
	}

	result, err := DiscoverWorkspace(nested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != tmpDir {
		t.Errorf("expected %q, got %q", tmpDir, result)
	}
}

func TestDiscoverWorkspace_NotFound(t *testing.T) {
	result, err := DiscoverWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "" {
		t.Errorf("expected empty string, got %q", result)
	}
}

func TestDiscoverWorkspace_MaxDepth(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "server:\n  name: test\n")

	parts := make([]string, MaxSearchDepth+2)
	parts[0] = tmpDir
	for i := 1; i <= MaxSearchDepth+1; i++ {
		parts[i] = "d"
	}
	deepPath := filepath.Join(parts...)
	if err := os.MkdirAll(deepPath, 0755); err != nil {
		t.Fatalf("failed to create deep path: %v", err)
	}

	result, err := DiscoverWorkspace(deepPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "" {
		t.Errorf("expected empty string (beyond max depth), got %q", result)
	}
}

func TestLoadWithWorkspace_DefaultsOnly(t *testing.T) {
	cfg, wsDir, err := LoadWithWorkspace("", WorkspaceOptions{Disable: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wsDir != "" {
		t.Errorf("expected empty workspace dir, got %q", wsDir)
	}
	if cfg.Server.Name != "surfacemap-mcp" {
		t.Errorf("expected default server name, got %q", cfg.Server.Name)
	}
}

func TestLoadWithWorkspace_WorkspaceOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, `
target:
  root_url: "http://workspace.test"
  max_depth: 4
discovery:
  corpus_path: "data/ops.json"
`)

	cfg, resultDir, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resultDir != tmpDir {
		t.Errorf("expected workspace dir %q, got %q", tmpDir, resultDir)
	}
	if cfg.Target.MaxDepth != 4 {
		t.Errorf("expected max depth 4 from workspace, got %d", cfg.Target.MaxDepth)
	}
	want := filepath.Join(tmpDir, "data", "ops.json")
	if cfg.Discovery.CorpusPath != want {
		t.Errorf("expected corpus path resolved to %q, got %q", want, cfg.Discovery.CorpusPath)
	}
	if cfg.Server.Name != "surfacemap-mcp" {
		t.Errorf("expected default server name, got %q", cfg.Server.Name)
	}
}

func TestLoadWithWorkspace_ExplicitOverridesWorkspace(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, `
target:
  root_url: "http://workspace.test"
`)

	explicitPath := filepath.Join(tmpDir, "explicit.yaml")
	if err := os.WriteFile(explicitPath, []byte("target:\n  root_url: \"http://explicit.test\"\n"), 0644); err != nil {
		t.Fatalf("failed to write explicit config: %v", err)
	}

	cfg, _, err := LoadWithWorkspace(explicitPath, WorkspaceOptions{ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Target.RootURL != "http://explicit.test" {
		t.Errorf("expected explicit root url to win, got %q", cfg.Target.RootURL)
	}
}

func TestLoadWithWorkspace_EnvOverridesFiles(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "target:\n  max_depth: 1\n")
	t.Setenv("SURFACEMAP_MAX_DEPTH", "6")

	cfg, _, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Target.MaxDepth != 6 {
		t.Errorf("expected env depth 6, got %d", cfg.Target.MaxDepth)
	}
}

func TestLoadWithWorkspace_InvalidFails(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "target:\n  environment: remote\n")

	_, _, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: tmpDir})
	if err == nil {
		t.Error("expected validation error for remote without debugger_url")
	}
}

func TestResolveWorkspacePaths_Relative(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Config{
		Server:    ServerConfig{LogFile: "surfacemap.log"},
		Discovery: DiscoveryConfig{CorpusPath: "operations.json", TraceDir: "data/traces"},
		MCP:       MCPConfig{ToolsPath: "tools.yaml"},
	}

	resolved := resolveWorkspacePaths(cfg, tmpDir)

	checks := map[string]string{
		resolved.Server.LogFile:       filepath.Join(tmpDir, "surfacemap.log"),
		resolved.Discovery.CorpusPath: filepath.Join(tmpDir, "operations.json"),
		resolved.Discovery.TraceDir:   filepath.Join(tmpDir, "data", "traces"),
		resolved.MCP.ToolsPath:        filepath.Join(tmpDir, "tools.yaml"),
	}
	for got, want := range checks {
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}

func TestResolveWorkspacePaths_AbsoluteUntouched(t *testing.T) {
	wsDir := t.TempDir()

	absLog := "/var/log/surfacemap.log"
	if runtime.GOOS == "windows" {
		absLog = `C:\var\log\surfacemap.log`
	}

	cfg := Config{Server: ServerConfig{LogFile: absLog}}
	resolved := resolveWorkspacePaths(cfg, wsDir)

	if resolved.Server.LogFile != absLog {
		t.Errorf("expected absolute log file untouched %q, got %q", absLog, resolved.Server.LogFile)
	}
}

func TestInitWorkspace_Creates(t *testing.T) {
	tmpDir := t.TempDir()

	if err := InitWorkspace(tmpDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wsDir := filepath.Join(tmpDir, WorkspaceDirName)
	for _, name := range []string{WorkspaceConfigFile, "tools.yaml", ".gitignore"} {
		data, err := os.ReadFile(filepath.Join(wsDir, name))
		if err != nil {
			t.Fatalf("failed to read %s: %v", name, err)
		}
		if len(data) == 0 {
			t.Errorf("expected non-empty %s", name)
		}
	}
	if info, err := os.Stat(filepath.Join(wsDir, "data")); err != nil || !info.IsDir() {
		t.Errorf("expected data directory: %v", err)
	}

	// The generated template must load and validate.
	if _, _, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: tmpDir}); err != nil {
		t.Errorf("template config should load: %v", err)
	}
}

func TestInitWorkspace_AlreadyExists(t *testing.T) {
	tmpDir := t.TempDir()

	if err := InitWorkspace(tmpDir); err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	if err := InitWorkspace(tmpDir); err == nil {
		t.Error("expected error when workspace already exists")
	}
}
