// Package minaconfig loads build configuration for mina.
//
// Two formats are supported:
//   - mina.star: Starlark, must define configure() returning a dict
//   - mina.toml: declarative TOML
//
// Files are discovered by walking up from the working directory to the
// enclosing git root. MINA_CONFIG names a file explicitly and skips
// discovery. Relative paths inside a config file resolve against the
// directory of that file.
package minaconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config file names in priority order.
const (
	ConfigStar = "mina.star"
	ConfigTOML = "mina.toml"
)

// EnvConfig is the environment variable naming a config file.
const EnvConfig = "MINA_CONFIG"

// ErrConflict is returned when one directory holds more than one config file.
var ErrConflict = errors.New("multiple config files found in the same directory; use only one")

// Defaults.
const (
	DefaultContext         = "src"
	DefaultEntry           = "app.js"
	DefaultOutput          = "dist"
	DefaultStats           = "build/stats.json"
	DefaultAssetsChunkName = "__assets_chunk_name__"
	DefaultCustomTabBar    = "custom-tab-bar/index"
	DefaultDebounce        = 100 * time.Millisecond
)

// Config is the mina configuration.
type Config struct {
	Build BuildConfig `json:"build" toml:"build"`
	Watch WatchConfig `json:"watch" toml:"watch"`
}

// BuildConfig describes the project and where the build reads and writes.
type BuildConfig struct {
	// Context is the project root holding app.json.
	Context string `json:"context" toml:"context"`

	// Entry is the root entry script, relative to Context.
	Entry string `json:"entry" toml:"entry"`

	// Output is the directory the mini-program is written to.
	Output string `json:"output" toml:"output"`

	// Stats is the chunk-graph file written by the bundler. The generated
	// chunk files are read from its directory.
	Stats string `json:"stats" toml:"stats"`

	// Extensions are the script extensions probed for each entry.
	Extensions []string `json:"extensions" toml:"extensions"`

	AssetsChunkName string `json:"assets_chunk_name" toml:"assets_chunk_name"`
	CustomTabBar    string `json:"custom_tab_bar" toml:"custom_tab_bar"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	// Debounce is the quiet period before a rebuild starts.
	Debounce Duration `json:"debounce" toml:"debounce"`

	// Ignore holds doublestar patterns, relative to Context, that never
	// trigger a rebuild.
	Ignore []string `json:"ignore" toml:"ignore"`
}

// Duration wraps time.Duration for TOML string parsing.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	if dur < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", string(text))
	}
	d.Duration = dur
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	if d.Duration == 0 {
		return nil, nil
	}
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() *Config {
	return &Config{
		Build: BuildConfig{
			Context:         DefaultContext,
			Entry:           DefaultEntry,
			Output:          DefaultOutput,
			Stats:           DefaultStats,
			Extensions:      []string{".js"},
			AssetsChunkName: DefaultAssetsChunkName,
			CustomTabBar:    DefaultCustomTabBar,
		},
		Watch: WatchConfig{
			Debounce: Duration{DefaultDebounce},
			Ignore:   []string{"**/node_modules/**", "**/.git/**"},
		},
	}
}

// LoadConfig loads the file at path on top of the defaults. The format is
// chosen by extension.
func LoadConfig(path string) (*Config, error) {
	var (
		file *Config
		err  error
	)
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		file, err = LoadTOMLConfig(path)
	case ".star":
		file, err = LoadStarlarkConfig(path, DefaultStarlarkTimeout)
	default:
		return nil, fmt.Errorf("unsupported config file extension: %s (expected .star or .toml)", ext)
	}
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	file.resolvePaths(filepath.Dir(absPath))

	cfg := DefaultConfig()
	cfg.Merge(file)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// DiscoverConfig finds and loads the configuration for startDir.
//
// If MINA_CONFIG is set, that file is loaded. Otherwise each directory from
// startDir up to the git root is checked for mina.star and mina.toml; two in
// the same directory is an error. Without a config file the defaults are
// returned together with an empty path.
func DiscoverConfig(startDir string) (*Config, string, error) {
	if envPath := os.Getenv(EnvConfig); envPath != "" {
		cfg, err := LoadConfig(envPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading config from %s: %w", EnvConfig, err)
		}
		return cfg, envPath, nil
	}

	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("getting working directory: %w", err)
		}
	}

	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving path: %w", err)
	}
	gitRoot := findGitRoot(dir)

	for {
		configPath, err := findConfigInDir(dir)
		if err != nil {
			return nil, "", err
		}
		if configPath != "" {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return nil, "", err
			}
			return cfg, configPath, nil
		}

		if gitRoot != "" && dir == gitRoot {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return DefaultConfig(), "", nil
}

// findConfigInDir returns the config file in dir, or "" if there is none.
func findConfigInDir(dir string) (string, error) {
	var found []string
	for _, name := range []string{ConfigStar, ConfigTOML} {
		if fileExists(filepath.Join(dir, name)) {
			found = append(found, name)
		}
	}

	switch len(found) {
	case 0:
		return "", nil
	case 1:
		return filepath.Join(dir, found[0]), nil
	default:
		return "", fmt.Errorf("%w: found %s in %s", ErrConflict, strings.Join(found, ", "), dir)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// findGitRoot returns the closest directory at or above startDir holding a
// .git entry, or "".
func findGitRoot(startDir string) string {
	dir := startDir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// resolvePaths makes the relative paths of c absolute against dir.
func (c *Config) resolvePaths(dir string) {
	for _, p := range []*string{&c.Build.Context, &c.Build.Output, &c.Build.Stats} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, filepath.FromSlash(*p))
		}
	}
}

// Merge overlays the non-zero values of other onto c. Lists replace rather
// than extend.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	b, ob := &c.Build, other.Build
	if ob.Context != "" {
		b.Context = ob.Context
	}
	if ob.Entry != "" {
		b.Entry = ob.Entry
	}
	if ob.Output != "" {
		b.Output = ob.Output
	}
	if ob.Stats != "" {
		b.Stats = ob.Stats
	}
	if len(ob.Extensions) > 0 {
		b.Extensions = ob.Extensions
	}
	if ob.AssetsChunkName != "" {
		b.AssetsChunkName = ob.AssetsChunkName
	}
	if ob.CustomTabBar != "" {
		b.CustomTabBar = ob.CustomTabBar
	}

	if other.Watch.Debounce.Duration != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.Watch.Ignore != nil {
		c.Watch.Ignore = other.Watch.Ignore
	}
}

// Validate reports settings the build cannot work with.
func (c *Config) Validate() error {
	for _, ext := range c.Build.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("invalid extension %q: must start with a dot", ext)
		}
	}
	if strings.ContainsAny(c.Build.AssetsChunkName, `/\`) {
		return fmt.Errorf("invalid assets_chunk_name %q: must not contain path separators", c.Build.AssetsChunkName)
	}
	return nil
}
