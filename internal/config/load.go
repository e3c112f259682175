package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MOAIDEBUG_"

// FileName is the configuration file looked up in the project root.
const FileName = "moaidebug.toml"

// Load reads the configuration at path on top of the defaults and applies
// environment overrides. A missing file is not an error. An empty path
// skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := Decode(path, data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses data into cfg, choosing the format from the path extension.
// Settings absent from data keep their current value.
func Decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return decodeTOML(path, data, cfg)
	case ".yaml", ".yml":
		return decodeYAML(path, data, cfg)
	default:
		return &ParseError{Path: path, Message: ErrUnsupportedFormat.Error(), Err: ErrUnsupportedFormat}
	}
}

func decodeTOML(path string, data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		perr := &ParseError{Path: path, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return perr
	}
	return nil
}

func decodeYAML(path string, data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return nil
}

// envSetters maps environment variables (without prefix) to setters.
var envSetters = map[string]func(c *Config, v string) error{
	"DEBUG_HOST": func(c *Config, v string) error {
		c.Debug.Host = v
		return nil
	},
	"DEBUG_PORT": func(c *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Debug.Port = port
		return nil
	},
	"DEBUG_SEND_TIMEOUT": func(c *Config, v string) error {
		return c.Debug.SendTimeout.UnmarshalText([]byte(v))
	},
	"ENGINE_PATH": func(c *Config, v string) error {
		c.Engine.Path = v
		return nil
	},
	"ENGINE_ENTRY": func(c *Config, v string) error {
		c.Engine.Entry = v
		return nil
	},
	"PROCESS_LAUNCH_TIMEOUT": func(c *Config, v string) error {
		return c.Process.LaunchTimeout.UnmarshalText([]byte(v))
	},
	"PROCESS_TERMINATE_TIMEOUT": func(c *Config, v string) error {
		return c.Process.TerminateTimeout.UnmarshalText([]byte(v))
	},
	"LOG_LEVEL": func(c *Config, v string) error {
		c.Logging.Level = strings.ToLower(v)
		return nil
	},
	"LOG_PRETTY": func(c *Config, v string) error {
		pretty, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Logging.Pretty = pretty
		return nil
	},
}

// ApplyEnv applies MOAIDEBUG_* overrides found through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for name, set := range envSetters {
		env := EnvPrefix + name
		v, ok := lookup(env)
		if !ok {
			continue
		}
		if err := set(cfg, v); err != nil {
			return &ParseError{Path: "env:" + env, Message: err.Error(), Err: err}
		}
	}
	return nil
}
