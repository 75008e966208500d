// Package config handles simplang.toml tool configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "simplang.toml"

// ErrInvalid marks a configuration value that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config represents a simplang.toml file.
type Config struct {
	VM    VM    `toml:"vm"`
	Log   Log   `toml:"log"`
	Suite Suite `toml:"suite"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

// VM sizes the virtual machine.
type VM struct {
	StackSize     int   `toml:"stack-size"`
	CallStackSize int   `toml:"call-stack-size"`
	Gas           int64 `toml:"gas"` // 0 = unlimited
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"` // empty = stderr
}

// Suite configures the test-suite runner.
type Suite struct {
	Engine   string `toml:"engine"`
	Jobs     int    `toml:"jobs"`
	Examples string `toml:"examples"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		VM: VM{
			StackSize:     1 << 16,
			CallStackSize: 1024,
		},
		Suite: Suite{
			Engine:   "both",
			Jobs:     4,
			Examples: "../examples",
		},
	}
}

// Load parses the configuration file at path. Missing values keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Path = path

	if err := c.normalize(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a simplang.toml file and loads
// it. When there is none the defaults are returned.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

func (c *Config) normalize() error {
	def := Default()
	switch {
	case c.VM.StackSize < 0:
		return fmt.Errorf("%w: vm.stack-size %d", ErrInvalid, c.VM.StackSize)
	case c.VM.CallStackSize < 0:
		return fmt.Errorf("%w: vm.call-stack-size %d", ErrInvalid, c.VM.CallStackSize)
	case c.VM.Gas < 0:
		return fmt.Errorf("%w: vm.gas %d", ErrInvalid, c.VM.Gas)
	case c.Suite.Jobs < 0:
		return fmt.Errorf("%w: suite.jobs %d", ErrInvalid, c.Suite.Jobs)
	}
	if c.VM.StackSize == 0 {
		c.VM.StackSize = def.VM.StackSize
	}
	if c.VM.CallStackSize == 0 {
		c.VM.CallStackSize = def.VM.CallStackSize
	}
	if c.Suite.Jobs == 0 {
		c.Suite.Jobs = def.Suite.Jobs
	}
	switch c.Suite.Engine {
	case "":
		c.Suite.Engine = def.Suite.Engine
	case "interp", "vm", "both":
	default:
		return fmt.Errorf("%w: suite.engine %q", ErrInvalid, c.Suite.Engine)
	}
	if c.Suite.Examples == "" {
		c.Suite.Examples = def.Suite.Examples
	}
	return nil
}

// LogFile returns the configured log path, or nil for stderr.
func (c *Config) LogFile() *string {
	if c.Log.File == "" {
		return nil
	}
	p := c.Log.File
	if c.Path != "" && !filepath.IsAbs(p) {
		p = filepath.Join(filepath.Dir(c.Path), p)
	}
	return &p
}
