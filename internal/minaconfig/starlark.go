package minaconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"time"

	"go.starlark.net/starlark"
)

// DefaultStarlarkTimeout bounds the execution of a mina.star file.
const DefaultStarlarkTimeout = 5 * time.Second

// ErrConfigureNotFound is returned when mina.star has no configure() function.
var ErrConfigureNotFound = errors.New("mina.star must define a configure() function")

// ErrConfigureReturnType is returned when configure() does not return a dict.
var ErrConfigureReturnType = errors.New("configure() must return a dict")

// LoadStarlarkConfig executes a Starlark config file and converts the dict
// returned by its configure() function. Execution has no filesystem or
// network access and is cancelled after timeout.
func LoadStarlarkConfig(path string, timeout time.Duration) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	thread := &starlark.Thread{Name: path}
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel("execution timeout")
	})
	defer stop()

	globals, err := starlark.ExecFile(thread, path, data, predeclared())
	if err != nil {
		return nil, fmt.Errorf("executing config %s: %w", path, err)
	}

	v, ok := globals["configure"]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrConfigureNotFound)
	}
	fn, ok := v.(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("%s: configure must be a function, got %s", path, v.Type())
	}

	result, err := starlark.Call(thread, fn, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: calling configure(): %w", path, err)
	}

	dict, ok := result.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("%s: %w, got %s", path, ErrConfigureReturnType, result.Type())
	}

	cfg, err := dictToConfig(dict)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"getenv":    starlark.NewBuiltin("getenv", builtinGetenv),
		"host_os":   starlark.String(runtime.GOOS),
		"host_arch": starlark.String(runtime.GOARCH),
		"duration":  starlark.NewBuiltin("duration", builtinDuration),
	}
}

// builtinGetenv implements getenv(name, default="") -> string.
func builtinGetenv(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var def starlark.String
	if err := starlark.UnpackArgs("getenv", args, kwargs, "name", &name, "default?", &def); err != nil {
		return nil, err
	}
	if val := os.Getenv(name); val != "" {
		return starlark.String(val), nil
	}
	return def, nil
}

// builtinDuration implements duration(s) -> string, failing on values Go
// cannot parse.
func builtinDuration(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackArgs("duration", args, kwargs, "s", &s); err != nil {
		return nil, err
	}
	if _, err := time.ParseDuration(s); err != nil {
		return nil, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return starlark.String(s), nil
}

func dictToConfig(d *starlark.Dict) (*Config, error) {
	cfg := &Config{}

	if err := checkKeys(d, "", "build", "watch"); err != nil {
		return nil, err
	}

	if build, err := section(d, "build"); err != nil {
		return nil, err
	} else if build != nil {
		if err := parseBuildConfig(build, &cfg.Build); err != nil {
			return nil, fmt.Errorf("parsing build config: %w", err)
		}
	}

	if watch, err := section(d, "watch"); err != nil {
		return nil, err
	} else if watch != nil {
		if err := parseWatchConfig(watch, &cfg.Watch); err != nil {
			return nil, fmt.Errorf("parsing watch config: %w", err)
		}
	}

	return cfg, nil
}

func parseBuildConfig(d *starlark.Dict, cfg *BuildConfig) error {
	if err := checkKeys(d, "build.", "context", "entry", "output", "stats", "extensions", "assets_chunk_name", "custom_tab_bar"); err != nil {
		return err
	}
	fields := []struct {
		key string
		dst *string
	}{
		{"context", &cfg.Context},
		{"entry", &cfg.Entry},
		{"output", &cfg.Output},
		{"stats", &cfg.Stats},
		{"assets_chunk_name", &cfg.AssetsChunkName},
		{"custom_tab_bar", &cfg.CustomTabBar},
	}
	for _, f := range fields {
		if err := getString(d, f.key, f.dst); err != nil {
			return err
		}
	}
	return getStringList(d, "extensions", &cfg.Extensions)
}

func parseWatchConfig(d *starlark.Dict, cfg *WatchConfig) error {
	if err := checkKeys(d, "watch.", "debounce", "ignore"); err != nil {
		return err
	}

	var debounce string
	if err := getString(d, "debounce", &debounce); err != nil {
		return err
	}
	if debounce != "" {
		if err := cfg.Debounce.UnmarshalText([]byte(debounce)); err != nil {
			return fmt.Errorf("debounce: %w", err)
		}
	}

	return getStringList(d, "ignore", &cfg.Ignore)
}

// section returns the dict stored under key, or nil if key is absent.
func section(d *starlark.Dict, key string) (*starlark.Dict, error) {
	v, found, _ := d.Get(starlark.String(key))
	if !found {
		return nil, nil
	}
	sub, ok := v.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("%s must be a dict, got %s", key, v.Type())
	}
	return sub, nil
}

func getString(d *starlark.Dict, key string, dst *string) error {
	v, found, _ := d.Get(starlark.String(key))
	if !found {
		return nil
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return fmt.Errorf("%s must be a string, got %s", key, v.Type())
	}
	*dst = s
	return nil
}

func getStringList(d *starlark.Dict, key string, dst *[]string) error {
	v, found, _ := d.Get(starlark.String(key))
	if !found {
		return nil
	}
	var seq starlark.Indexable
	switch v := v.(type) {
	case *starlark.List:
		seq = v
	case starlark.Tuple:
		seq = v
	default:
		return fmt.Errorf("%s must be a list, got %s", key, v.Type())
	}
	out := make([]string, 0, seq.Len())
	for i := range seq.Len() {
		s, ok := starlark.AsString(seq.Index(i))
		if !ok {
			return fmt.Errorf("%s[%d] must be a string", key, i)
		}
		out = append(out, s)
	}
	*dst = out
	return nil
}

// checkKeys rejects keys outside allowed.
func checkKeys(d *starlark.Dict, prefix string, allowed ...string) error {
	for _, k := range d.Keys() {
		s, ok := starlark.AsString(k)
		if !ok {
			return fmt.Errorf("%skeys must be strings, got %s", prefix, k.Type())
		}
		if !slices.Contains(allowed, s) {
			return fmt.Errorf("unknown key %q", prefix+s)
		}
	}
	return nil
}
