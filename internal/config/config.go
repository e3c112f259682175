package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultHost             = "127.0.0.1"
	DefaultPort             = 7018
	DefaultSendTimeout      = 5 * time.Second
	DefaultEngine           = "moai-lua"
	DefaultEntry            = "Main.lua"
	DefaultLaunchTimeout    = 10 * time.Second
	DefaultTerminateTimeout = 5 * time.Second
	DefaultLogLevel         = "info"
)

// Config is the complete moaidebug configuration.
type Config struct {
	Debug   DebugConfig   `toml:"debug" yaml:"debug"`
	Engine  EngineConfig  `toml:"engine" yaml:"engine"`
	Process ProcessConfig `toml:"process" yaml:"process"`
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
}

// DebugConfig configures the control channel.
type DebugConfig struct {
	// Host is the interface the controller listens on.
	Host string `toml:"host" yaml:"host"`
	// Port is the control channel port. 0 picks a free port.
	Port int `toml:"port" yaml:"port"`
	// SendTimeout bounds a single directive write.
	SendTimeout Duration `toml:"send_timeout" yaml:"send_timeout"`
}

// Addr returns the host:port listen address.
func (d DebugConfig) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// EngineConfig describes the target runtime.
type EngineConfig struct {
	// Path is the runtime executable, resolved through PATH when bare.
	Path string `toml:"path" yaml:"path"`
	// Entry is the script passed as the single argument.
	Entry string `toml:"entry" yaml:"entry"`
}

// ProcessConfig bounds process launch and termination.
type ProcessConfig struct {
	LaunchTimeout    Duration `toml:"launch_timeout" yaml:"launch_timeout"`
	TerminateTimeout Duration `toml:"terminate_timeout" yaml:"terminate_timeout"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Pretty bool   `toml:"pretty" yaml:"pretty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Debug: DebugConfig{
			Host:        DefaultHost,
			Port:        DefaultPort,
			SendTimeout: Duration(DefaultSendTimeout),
		},
		Engine: EngineConfig{
			Path:  DefaultEngine,
			Entry: DefaultEntry,
		},
		Process: ProcessConfig{
			LaunchTimeout:    Duration(DefaultLaunchTimeout),
			TerminateTimeout: Duration(DefaultTerminateTimeout),
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Pretty: true,
		},
	}
}

// Clone returns a copy of c.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var fields []FieldError
	add := func(path, msg string, v any) {
		fields = append(fields, FieldError{Path: path, Message: msg, Value: v})
	}

	if c.Debug.Host == "" {
		add("debug.host", "must not be empty", c.Debug.Host)
	}
	if c.Debug.Port < 0 || c.Debug.Port > 65535 {
		add("debug.port", "must be between 0 and 65535", c.Debug.Port)
	}
	if c.Debug.SendTimeout < 0 {
		add("debug.send_timeout", "must not be negative", c.Debug.SendTimeout)
	}
	if c.Engine.Path == "" {
		add("engine.path", "must not be empty", c.Engine.Path)
	}
	if c.Engine.Entry == "" {
		add("engine.entry", "must not be empty", c.Engine.Entry)
	}
	if c.Process.LaunchTimeout < 0 {
		add("process.launch_timeout", "must not be negative", c.Process.LaunchTimeout)
	}
	if c.Process.TerminateTimeout < 0 {
		add("process.terminate_timeout", "must not be negative", c.Process.TerminateTimeout)
	}
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		add("logging.level", "must be one of trace, debug, info, warn, error, disabled", c.Logging.Level)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Duration is a time.Duration written as a duration string.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a string", value.Line)
	}
	if err := d.UnmarshalText([]byte(value.Value)); err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	return nil
}
