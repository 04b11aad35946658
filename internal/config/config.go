// Package config loads the command-line tool's configuration: defaults,
// then an optional YAML file, then WEBBRIDGE_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cryguy/webbridge/internal/core"
)

// Config is the tool's configuration.
type Config struct {
	// Listen is the socket server address.
	Listen string `yaml:"listen"`
	// Capability is the transport headless pages expose: android, webkit
	// or legacy.
	Capability string `yaml:"capability"`
	// PromiseTimeout is the default wait for a promise call. Negative
	// waits forever.
	PromiseTimeout time.Duration `yaml:"promiseTimeout"`
	// AutoInjectBridge injects the bridge after every page load.
	AutoInjectBridge bool `yaml:"autoInjectBridge"`
	// ViewPort is the viewport meta content, or "false" to leave pages alone.
	ViewPort string `yaml:"viewPort"`
	// AppRoot is what "~/" expands to in resource and src paths.
	AppRoot string `yaml:"appRoot"`
	// MemoryLimitMB caps each headless page's JS heap.
	MemoryLimitMB int `yaml:"memoryLimitMB"`
	// EvalTimeout bounds one script evaluation.
	EvalTimeout time.Duration `yaml:"evalTimeout"`
	// ResourceDB is a SQLite file that keeps resource registrations.
	// Empty keeps them in memory.
	ResourceDB string `yaml:"resourceDB"`
	LogLevel   string `yaml:"logLevel"`

	// Resources are registered at startup, name → path.
	Resources map[string]string `yaml:"resources"`
	// AutoLoadScripts and AutoLoadStyleSheets are injected after every load.
	AutoLoadScripts     []string `yaml:"autoLoadScripts"`
	AutoLoadStyleSheets []string `yaml:"autoLoadStyleSheets"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	page := core.DefaultPageConfig()
	return Config{
		Listen:           "127.0.0.1:8080",
		Capability:       page.Capability.String(),
		PromiseTimeout:   500 * time.Millisecond,
		AutoInjectBridge: true,
		ViewPort:         "width=device-width, initial-scale=1.0",
		MemoryLimitMB:    page.MemoryLimitMB,
		EvalTimeout:      page.EvalTimeout,
		LogLevel:         "info",
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	mergeEnv(&cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeFile decodes the file over cfg. Unknown keys are rejected.
func mergeFile(cfg *Config, path string) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	capability, err := core.ParseCapability(c.Capability)
	if err != nil {
		return err
	}
	if capability == core.CapabilitySocket {
		return fmt.Errorf("capability %q is chosen by the browser, not configured", c.Capability)
	}
	if c.MemoryLimitMB <= 0 {
		return fmt.Errorf("memoryLimitMB must be positive, got %d", c.MemoryLimitMB)
	}
	if c.EvalTimeout <= 0 {
		return fmt.Errorf("evalTimeout must be positive, got %s", c.EvalTimeout)
	}
	if c.Listen == "" {
		return errors.New("listen address is empty")
	}
	return nil
}

// PageCapability returns the parsed capability. Validate must have passed.
func (c Config) PageCapability() core.Capability {
	capability, _ := core.ParseCapability(c.Capability)
	return capability
}
