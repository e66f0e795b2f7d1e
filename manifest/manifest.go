// Package manifest handles pinky.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the manifest file.
const FileName = "pinky.toml"

// Defaults applied by Load for settings the file leaves out.
const (
	DefaultLogLevel       = "warning"
	DefaultServerAddr     = ":4567"
	DefaultServerMaxSteps = 1_000_000
)

// Manifest represents a pinky.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	Run     RunConfig    `toml:"run"`
	Build   BuildConfig  `toml:"build"`
	Server  ServerConfig `toml:"server"`

	// Dir is the directory containing the pinky.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"` // source file run when no file is given
}

// RunConfig configures local execution.
type RunConfig struct {
	MaxSteps int    `toml:"max-steps"` // 0 = unlimited
	LogLevel string `toml:"log-level"`
}

// BuildConfig configures object file output.
type BuildConfig struct {
	Output string `toml:"output"`
}

// ServerConfig configures the eval service.
type ServerConfig struct {
	Addr     string `toml:"addr"`
	MaxSteps int    `toml:"max-steps"`
}

// logLevels maps level names to commonlog verbosity values.
var logLevels = map[string]int{
	"none":     -4,
	"critical": -3,
	"error":    -2,
	"warning":  -1,
	"notice":   0,
	"info":     1,
	"debug":    2,
}

// Verbosity converts a log level name to a commonlog verbosity.
func Verbosity(level string) (int, error) {
	v, ok := logLevels[strings.ToLower(level)]
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", level)
	}
	return v, nil
}

// Default returns the manifest used when no pinky.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// Load parses a pinky.toml file from the given directory.
// Keys the manifest does not define are an error.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a pinky.toml file,
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

func (m *Manifest) applyDefaults() {
	if m.Run.LogLevel == "" {
		m.Run.LogLevel = DefaultLogLevel
	}
	if m.Build.Output == "" && m.Project.Name != "" {
		m.Build.Output = m.Project.Name + ".pkbc"
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultServerAddr
	}
	if m.Server.MaxSteps == 0 {
		m.Server.MaxSteps = DefaultServerMaxSteps
	}
}

// Validate checks value ranges.
func (m *Manifest) Validate() error {
	var errs []error
	if m.Run.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("run.max-steps must not be negative, got %d", m.Run.MaxSteps))
	}
	if m.Server.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("server.max-steps must not be negative, got %d", m.Server.MaxSteps))
	}
	if _, err := Verbosity(m.Run.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("run.log-level: %w", err))
	}
	return errors.Join(errs...)
}

// EntryPath returns the absolute path of the entry source file, or "" if
// none is configured.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	return m.resolve(m.Project.Entry)
}

// OutputPath returns the absolute path of the object file to build.
func (m *Manifest) OutputPath() string {
	if m.Build.Output == "" {
		return ""
	}
	return m.resolve(m.Build.Output)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// Write encodes m as dir/pinky.toml. It refuses to overwrite an existing file.
func Write(dir string, m *Manifest) error {
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(m); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return f.Close()
}
