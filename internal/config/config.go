// Package config loads the addone command configuration with koanf.
//
// Sources are layered, later ones overriding earlier ones: built-in
// defaults, an optional YAML file, ADDONE_* environment variables, then
// the command line flags the user actually set.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dandyvica/wasm-add-one/internal/host"
	"github.com/dandyvica/wasm-add-one/internal/logging"
)

// EnvPrefix selects environment variables. ADDONE_LOG_LEVEL sets log.level.
const EnvPrefix = "ADDONE_"

const (
	KeyEngine    = "engine"
	KeyWasm      = "wasm"
	KeyLogLevel  = "log.level"
	KeyLogPretty = "log.pretty"
)

// Config is the resolved configuration.
type Config struct {
	// Engine names the host.Runtime to call add_one in.
	Engine string `koanf:"engine"`
	// Wasm is a path to the guest binary. Empty selects the built-in
	// reference module.
	Wasm string         `koanf:"wasm"`
	Log  logging.Config `koanf:"log"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		KeyEngine:    host.NameWazero,
		KeyWasm:      "",
		KeyLogLevel:  "info",
		KeyLogPretty: false,
	}
}

// Load resolves the configuration. path may be empty. flags holds only the
// flags set on the command line, keyed like the file.
func Load(path string, flags map[string]interface{}) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		// Strip the prefix, lowercase, and turn _ into the koanf delimiter.
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if len(flags) > 0 {
		if err := k.Load(confmap.Provider(flags, "."), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Engine == "" {
		return nil, fmt.Errorf("%s must not be empty", KeyEngine)
	}
	return &cfg, nil
}
