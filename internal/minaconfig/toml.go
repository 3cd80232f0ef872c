package minaconfig

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// LoadTOMLConfig reads a TOML config file. Keys missing from the file are
// left at their zero value.
func LoadTOMLConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing TOML config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing TOML config %s: unknown key %q", path, undecoded[0].String())
	}

	return &cfg, nil
}
