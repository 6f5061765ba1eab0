// Package manifest handles monkey.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/monkey/vm"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "monkey.toml"

// Engine limits accepted in the [engine] section.
const (
	MinStackSize   = 16
	MaxStackSize   = 1 << 20
	MaxGlobalsSize = 1 << 16 // global operands are 16 bits wide
	MaxMaxFrames   = 1 << 16
)

// ErrInvalidEngine is wrapped by Load when an [engine] value is out of range.
var ErrInvalidEngine = errors.New("invalid engine configuration")

// Manifest represents a monkey.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Engine  Engine      `toml:"engine"`
	Cache   CacheConfig `toml:"cache"`
	Repl    Repl        `toml:"repl"`
	Log     Log         `toml:"log"`

	// Dir is the directory containing the monkey.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// Engine sizes the virtual machine.
type Engine struct {
	StackSize   int  `toml:"stack-size"`
	GlobalsSize int  `toml:"globals-size"`
	MaxFrames   int  `toml:"max-frames"`
	Trace       bool `toml:"trace"`
}

// CacheConfig configures the compiled bytecode cache.
type CacheConfig struct {
	Enabled *bool  `toml:"enabled"`
	Path    string `toml:"path"`
}

// Repl configures the interactive prompt.
type Repl struct {
	Prompt  string `toml:"prompt"`
	History string `toml:"history"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no monkey.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

// Load parses a monkey.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := m.Engine.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.applyDefaults()

	return &m, nil
}

// FindAndLoad walks up from startDir to find a monkey.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (e Engine) validate() error {
	check := func(name string, v, lo, hi int) error {
		if v == 0 {
			return nil
		}
		if v < lo || v > hi {
			return fmt.Errorf("%w: %s = %d, must be between %d and %d", ErrInvalidEngine, name, v, lo, hi)
		}
		return nil
	}

	if err := check("stack-size", e.StackSize, MinStackSize, MaxStackSize); err != nil {
		return err
	}
	if err := check("globals-size", e.GlobalsSize, 1, MaxGlobalsSize); err != nil {
		return err
	}
	return check("max-frames", e.MaxFrames, 1, MaxMaxFrames)
}

func (m *Manifest) applyDefaults() {
	if m.Engine.StackSize == 0 {
		m.Engine.StackSize = vm.StackSize
	}
	if m.Engine.GlobalsSize == 0 {
		m.Engine.GlobalsSize = vm.GlobalsSize
	}
	if m.Engine.MaxFrames == 0 {
		m.Engine.MaxFrames = vm.MaxFrames
	}
	if m.Cache.Enabled == nil {
		enabled := true
		m.Cache.Enabled = &enabled
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".monkey", "cache.db")
	}
	if m.Repl.Prompt == "" {
		m.Repl.Prompt = ">> "
	}
	if m.Repl.History == "" {
		m.Repl.History = ".monkey_history"
	}
}

// VMConfig returns the engine settings as a VM configuration.
func (m *Manifest) VMConfig() vm.Config {
	cfg := vm.DefaultConfig()
	cfg.StackSize = m.Engine.StackSize
	cfg.GlobalsSize = m.Engine.GlobalsSize
	cfg.MaxFrames = m.Engine.MaxFrames
	cfg.Trace = m.Engine.Trace
	return cfg
}

// CacheEnabled reports whether compiled bytecode should be cached.
func (m *Manifest) CacheEnabled() bool {
	return m.Cache.Enabled == nil || *m.Cache.Enabled
}

// EntryPath returns the absolute path of the project entry file, or "" when
// none is configured.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	return m.resolve(m.Project.Entry)
}

// CachePath returns the absolute path of the cache database.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

// HistoryPath returns the absolute path of the REPL history file.
func (m *Manifest) HistoryPath() string {
	return m.resolve(m.Repl.History)
}

// LogFilePath returns the absolute path of the log file, or "" to log to
// stderr.
func (m *Manifest) LogFilePath() string {
	if m.Log.File == "" {
		return ""
	}
	return m.resolve(m.Log.File)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
