package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level surfacemap config.
	WorkspaceDirName = ".surfacemap"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// Execution targets for the browser session.
const (
	EnvironmentLocal  = "local"
	EnvironmentRemote = "remote"
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up (--workspace-dir flag).
	ExplicitDir string
}

// Config captures all tunable settings for discovery and serving.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Target    TargetConfig    `yaml:"target"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Oracle    OracleConfig    `yaml:"oracle"`
	MCP       MCPConfig       `yaml:"mcp"`
	Mangle    MangleConfig    `yaml:"mangle"`
}

type ServerConfig struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222). Required for the remote environment.
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command for the local environment (e.g., ["chromium", "--no-sandbox"]).
	Launch []string `yaml:"launch"`
	// Headless controls whether Chrome runs in headless mode (default: true).
	Headless *bool `yaml:"headless"`
	// Default navigation timeout (e.g., "15s").
	DefaultNavigationTimeout string `yaml:"default_navigation_timeout"`
	ViewportWidth            int    `yaml:"viewport_width"`
	ViewportHeight           int    `yaml:"viewport_height"`
}

// TargetConfig describes the application under discovery.
type TargetConfig struct {
	RootURL  string `yaml:"root_url"`
	// LoginURL is visited before the root when credentials are configured (default: root_url).
	LoginURL string `yaml:"login_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	MaxDepth int    `yaml:"max_depth"`
	// Environment selects where the browser runs: local | remote.
	Environment string `yaml:"environment"`
}

// DiscoveryConfig tunes the traversal engine.
type DiscoveryConfig struct {
	CorpusPath string `yaml:"corpus_path"`
	TraceDir   string `yaml:"trace_dir"`
	// Settle allowance after an in-place step (e.g., "500ms").
	StepSettle string `yaml:"step_settle"`
	// Settle allowance after a step that opens a new state (e.g., "2s").
	StateSettle string `yaml:"state_settle"`
	// Max runes kept in an operation's text summary.
	SummaryLimit int `yaml:"summary_limit"`
}

// OracleConfig selects the language model behind the observe/act/choose oracles.
type OracleConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
	// ToolsPath points at the tool declaration artifact (YAML or JSON).
	ToolsPath string `yaml:"tools_path"`
}

// MangleConfig controls the embedded state-graph fact store.
type MangleConfig struct {
	Enable bool `yaml:"enable"`
	// Newest base facts kept; older ones are evicted along with what they derive.
	FactBufferLimit int `yaml:"fact_buffer_limit"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:     "surfacemap-mcp",
			Version:  "0.1.0",
			LogFile:  "surfacemap.log",
			LogLevel: "info",
		},
		Browser: BrowserConfig{
			DefaultNavigationTimeout: "15s",
			ViewportWidth:            1920,
			ViewportHeight:           1080,
		},
		Target: TargetConfig{
			RootURL:     "http://localhost:8000",
			MaxDepth:    2,
			Environment: EnvironmentLocal,
		},
		Discovery: DiscoveryConfig{
			CorpusPath:   "operations.json",
			TraceDir:     "data/traces",
			StepSettle:   "500ms",
			StateSettle:  "2s",
			SummaryLimit: 120,
		},
		Oracle: OracleConfig{
			Provider:  "claude",
			MaxTokens: 1024,
		},
		MCP: MCPConfig{
			SSEPort:   0,
			ToolsPath: "tools.yaml",
		},
		Mangle: MangleConfig{
			Enable:          true,
			FactBufferLimit: 4096,
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .surfacemap/config.yaml file.
// Returns the workspace root directory (parent of .surfacemap/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements multi-layer config merge:
//
//	DefaultConfig() <- .surfacemap/config.yaml <- explicit --config <- environment
//
// CLI flags are applied by the caller afterwards. Returns the merged config and the
// workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			raw, err := os.ReadFile(wsConfigPath)
			if err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, wsDir)
		}
	}

	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, wsDir, err
	}

	return cfg, wsDir, cfg.Validate()
}

// ApplyEnv overlays target settings from SURFACEMAP_* variables. Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("SURFACEMAP_ROOT_URL", &c.Target.RootURL)
	str("SURFACEMAP_LOGIN_URL", &c.Target.LoginURL)
	str("SURFACEMAP_USERNAME", &c.Target.Username)
	str("SURFACEMAP_PASSWORD", &c.Target.Password)
	str("SURFACEMAP_ENVIRONMENT", &c.Target.Environment)
	str("SURFACEMAP_DEBUGGER_URL", &c.Browser.DebuggerURL)
	str("SURFACEMAP_ORACLE_PROVIDER", &c.Oracle.Provider)
	str("SURFACEMAP_ORACLE_MODEL", &c.Oracle.Model)

	if v, ok := lookup("SURFACEMAP_MAX_DEPTH"); ok && v != "" {
		depth, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SURFACEMAP_MAX_DEPTH: %w", err)
		}
		c.Target.MaxDepth = depth
	}
	return nil
}

// InitWorkspace creates a .surfacemap/ directory with template files at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	dirs := []string{
		wsDir,
		filepath.Join(wsDir, "data"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	templateConfig := `# surfacemap project-level configuration
# Values here override defaults but are overridden by --config, SURFACEMAP_* and CLI flags.

target:
  root_url: "http://localhost:8000"
  # login_url: "http://localhost:8000/login"
  max_depth: 2
  environment: local

# discovery:
#   corpus_path: "data/operations.json"
#   trace_dir: "data/traces"

# oracle:
#   provider: claude
#   model: ""

# mcp:
#   tools_path: "tools.yaml"
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	toolsTemplate := `# Tool declarations served over MCP. Names must be unique.
- name: search_items
  description: Search the application for items matching a query.
  parameters:
    type: object
    properties:
      query:
        type: string
        description: Text to search for
    required: [query]
`
	if err := os.WriteFile(filepath.Join(wsDir, "tools.yaml"), []byte(toolsTemplate), 0644); err != nil {
		return fmt.Errorf("writing tools template: %w", err)
	}

	gitignoreContent := "# Runtime data (corpus, traces, logs) - do not version control\ndata/\n"
	if err := os.WriteFile(filepath.Join(wsDir, ".gitignore"), []byte(gitignoreContent), 0644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

// resolveWorkspacePaths resolves relative paths in the config against the workspace directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Server.LogFile = resolve(cfg.Server.LogFile)
	cfg.Discovery.CorpusPath = resolve(cfg.Discovery.CorpusPath)
	cfg.Discovery.TraceDir = resolve(cfg.Discovery.TraceDir)
	cfg.MCP.ToolsPath = resolve(cfg.MCP.ToolsPath)
	return cfg
}

// Validate ensures required fields exist so discovery and serving start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Target.RootURL == "" {
		return errors.New("target.root_url is required")
	}
	if c.Target.MaxDepth < 0 {
		return errors.New("target.max_depth must not be negative")
	}
	switch c.Target.Environment {
	case "", EnvironmentLocal:
	case EnvironmentRemote:
		if c.Browser.DebuggerURL == "" {
			return errors.New("browser.debugger_url is required for the remote environment")
		}
	default:
		return fmt.Errorf("target.environment must be %q or %q", EnvironmentLocal, EnvironmentRemote)
	}
	return nil
}

// HasCredentials reports whether both username and password are configured.
func (t TargetConfig) HasCredentials() bool {
	return t.Username != "" && t.Password != ""
}

// LoginAddress returns where authentication starts.
func (t TargetConfig) LoginAddress() string {
	if t.LoginURL != "" {
		return t.LoginURL
	}
	return t.RootURL
}

// IsRemote reports whether the browser runs on a remote execution target.
func (t TargetConfig) IsRemote() bool {
	return t.Environment == EnvironmentRemote
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	return parseDuration(b.DefaultNavigationTimeout, 15*time.Second)
}

// IsHeadless returns whether Chrome should run in headless mode (default: true).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1920
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 1080
	}
	return b.ViewportHeight
}

// StepSettleDuration is the wait after a step that reveals content in place.
func (d DiscoveryConfig) StepSettleDuration() time.Duration {
	return parseDuration(d.StepSettle, 500*time.Millisecond)
}

// StateSettleDuration is the wait after a step expected to open a new state.
func (d DiscoveryConfig) StateSettleDuration() time.Duration {
	return parseDuration(d.StateSettle, 2*time.Second)
}

// GetSummaryLimit returns the text summary limit with a sane default.
func (d DiscoveryConfig) GetSummaryLimit() int {
	if d.SummaryLimit <= 0 {
		return 120
	}
	return d.SummaryLimit
}

// GetMaxTokens returns the completion budget with a sane default.
func (o OracleConfig) GetMaxTokens() int {
	if o.MaxTokens <= 0 {
		return 1024
	}
	return o.MaxTokens
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
