// Package config resolves runner settings from defaults, an optional YAML
// file, CSVSCENARIO_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/koki-mus/csvscenario/internal/browser"
	"github.com/koki-mus/csvscenario/internal/capture"
	"github.com/koki-mus/csvscenario/internal/interpreter"
)

// EnvPrefix prefixes environment overrides: browser.timeout is read from
// CSVSCENARIO_BROWSER_TIMEOUT.
const EnvPrefix = "CSVSCENARIO"

// FileName is the config file looked up in the working directory when no
// explicit path is given.
const FileName = "csvscenario.yaml"

// Keys.
const (
	KeyHeadless      = "browser.headless"
	KeyChromePath    = "browser.chrome_path"
	KeyWindow        = "browser.window"
	KeyTimeout       = "browser.timeout"
	KeyScreenshotDir = "run.screenshot_dir"
	KeyLogPath       = "run.log_path"
	KeyDB            = "run.db"
	KeyOverlap       = "capture.overlap"
	KeySettle        = "capture.settle"
	KeyRestoreSettle = "capture.restore_settle"
	KeyNativeFull    = "capture.native_full_page"
)

// Config is the resolved configuration.
type Config struct {
	Browser BrowserConfig `mapstructure:"browser"`
	Run     RunConfig     `mapstructure:"run"`
	Capture CaptureConfig `mapstructure:"capture"`

	// File is the config file that was read, or "".
	File string `mapstructure:"-"`
}

type BrowserConfig struct {
	Headless   bool   `mapstructure:"headless"`
	ChromePath string `mapstructure:"chrome_path"`
	// Window is WIDTHxHEIGHT, or empty to start maximized.
	Window  string        `mapstructure:"window"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RunConfig holds output locations. Empty paths are derived from the
// script name at run time.
type RunConfig struct {
	ScreenshotDir string `mapstructure:"screenshot_dir"`
	LogPath       string `mapstructure:"log_path"`
	// DB is the SQLite run archive. Empty disables archiving.
	DB string `mapstructure:"db"`
}

type CaptureConfig struct {
	Overlap       int           `mapstructure:"overlap"`
	Settle        time.Duration `mapstructure:"settle"`
	RestoreSettle time.Duration `mapstructure:"restore_settle"`
	// NativeFullPage uses Chrome's own full-page capture instead of tiling.
	NativeFullPage bool `mapstructure:"native_full_page"`
}

// New returns a viper instance with defaults and environment binding set.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyHeadless, false)
	v.SetDefault(KeyChromePath, "")
	v.SetDefault(KeyWindow, "")
	v.SetDefault(KeyTimeout, interpreter.DefaultElementTimeout)
	v.SetDefault(KeyScreenshotDir, "")
	v.SetDefault(KeyLogPath, "")
	v.SetDefault(KeyDB, "")
	v.SetDefault(KeyOverlap, capture.DefaultOverlap)
	v.SetDefault(KeySettle, capture.DefaultSettle)
	v.SetDefault(KeyRestoreSettle, capture.DefaultRestoreSettle)
	v.SetDefault(KeyNativeFull, false)
}

// BindFlags binds flags to keys. Flags that are absent from fs are skipped.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for key, flag := range keys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", flag, err)
		}
	}
	return nil
}

// Load reads the config file and resolves v into a Config.
//
// An explicit path must exist. Without one, FileName is read from the
// working directory if present.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, ".yaml"))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := c.Browser.WindowSize(); err != nil {
		return err
	}
	if c.Browser.Timeout < 0 {
		return fmt.Errorf("%s must not be negative", KeyTimeout)
	}
	if c.Capture.Overlap < 0 {
		return fmt.Errorf("%s must not be negative", KeyOverlap)
	}
	if c.Capture.Settle < 0 || c.Capture.RestoreSettle < 0 {
		return fmt.Errorf("capture settle delays must not be negative")
	}
	return nil
}

// WindowSize parses Window. An empty value yields the zero Size.
func (b BrowserConfig) WindowSize() (browser.Size, error) {
	return ParseSize(b.Window)
}

// ParseSize parses WIDTHxHEIGHT.
func ParseSize(s string) (browser.Size, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return browser.Size{}, nil
	}
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return browser.Size{}, fmt.Errorf("invalid window size %q: want WIDTHxHEIGHT", s)
	}
	w, werr := strconv.Atoi(strings.TrimSpace(ws))
	h, herr := strconv.Atoi(strings.TrimSpace(hs))
	if werr != nil || herr != nil || w <= 0 || h <= 0 {
		return browser.Size{}, fmt.Errorf("invalid window size %q: want WIDTHxHEIGHT", s)
	}
	return browser.Size{Width: w, Height: h}, nil
}

// Apply copies the capture settings onto e.
func (c CaptureConfig) Apply(e *capture.Engine) {
	e.Overlap = c.Overlap
	e.Settle = c.Settle
	e.RestoreSettle = c.RestoreSettle
}
