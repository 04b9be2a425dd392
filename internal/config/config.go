package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/bigpipe/internal/errors"
	"github.com/vango-dev/bigpipe/pkg/pipe"
	"github.com/vango-dev/bigpipe/pkg/render"
	"github.com/vango-dev/bigpipe/pkg/useragent"
)

const (
	// ConfigFileName is the name of the default configuration file.
	ConfigFileName = "bigpipe.json"

	// DefaultPort is the default server port.
	DefaultPort = 3000

	// DefaultHost is the default server host.
	DefaultHost = "localhost"

	// DefaultMetricsPath is where Prometheus metrics are served.
	DefaultMetricsPath = "/metrics"
)

// configNames are the file names Load looks for, in order.
var configNames = []string{
	ConfigFileName,
	"bigpipe.yaml",
	"bigpipe.yml",
	"bigpipe.toml",
}

// Config represents the complete bigpipe configuration.
type Config struct {
	// Name is the site name, used as the page title of the demo.
	Name string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`

	// Server contains HTTP server configuration.
	Server ServerConfig `json:"server" yaml:"server" toml:"server"`

	// Pipe contains streaming engine configuration.
	Pipe PipeConfig `json:"pipe" yaml:"pipe" toml:"pipe"`

	// Assets contains asset manifest configuration.
	Assets AssetsConfig `json:"assets" yaml:"assets" toml:"assets"`

	// Metrics contains Prometheus configuration.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" toml:"metrics"`

	// Tracing contains OpenTelemetry configuration.
	Tracing TracingConfig `json:"tracing" yaml:"tracing" toml:"tracing"`

	// Log contains logging configuration.
	Log LogConfig `json:"log" yaml:"log" toml:"log"`

	// Demo contains settings for the built-in demo page.
	Demo DemoConfig `json:"demo" yaml:"demo" toml:"demo"`

	// configPath is the path where this config was loaded from.
	configPath string
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Host is the interface to bind.
	Host string `json:"host" yaml:"host" toml:"host"`

	// Port is the port to listen on.
	Port int `json:"port" yaml:"port" toml:"port"`

	// ShutdownTimeout bounds graceful shutdown (e.g. "10s").
	ShutdownTimeout string `json:"shutdownTimeout" yaml:"shutdownTimeout" toml:"shutdownTimeout"`
}

// PipeConfig configures pagelet streaming.
type PipeConfig struct {
	// Enabled is the feature flag. When false every response is rendered
	// synchronously unless the request overrides it.
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`

	// Threshold is the priority below which pagelets count as low
	// priority for the checkpoint metric.
	Threshold int `json:"threshold" yaml:"threshold" toml:"threshold"`

	// ClientScript is the URL of the client dispatcher.
	ClientScript string `json:"clientScript" yaml:"clientScript" toml:"clientScript"`

	// Browsers overrides the default browser allow-list.
	Browsers []BrowserRule `json:"browsers,omitempty" yaml:"browsers,omitempty" toml:"browsers,omitempty"`
}

// BrowserRule admits a browser family from a minimum major version on.
type BrowserRule struct {
	Browser    string `json:"browser" yaml:"browser" toml:"browser"`
	MinVersion int    `json:"minVersion" yaml:"minVersion" toml:"minVersion"`
}

// AssetsConfig configures asset resolution. The manifest is read from
// Manifest when set, otherwise from Bucket/Key on S3 when Bucket is set.
type AssetsConfig struct {
	// Manifest is the path of a JSON manifest file.
	Manifest string `json:"manifest,omitempty" yaml:"manifest,omitempty" toml:"manifest,omitempty"`

	// Bucket and Key locate the manifest on S3.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty" toml:"bucket,omitempty"`
	Key    string `json:"key,omitempty" yaml:"key,omitempty" toml:"key,omitempty"`

	// Region is the S3 region.
	Region string `json:"region,omitempty" yaml:"region,omitempty" toml:"region,omitempty"`

	// Prefix is prepended to resolved asset paths.
	Prefix string `json:"prefix" yaml:"prefix" toml:"prefix"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace" toml:"namespace"`
	Path      string `json:"path" yaml:"path" toml:"path"`
}

// TracingConfig configures OpenTelemetry tracing. Exporters are set up by
// the embedding program through the global tracer provider.
type TracingConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	TracerName string `json:"tracerName" yaml:"tracerName" toml:"tracerName"`
}

// LogConfig configures the default slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `json:"level" yaml:"level" toml:"level"`

	// Format is text or json.
	Format string `json:"format" yaml:"format" toml:"format"`
}

// DemoConfig configures the demo page.
type DemoConfig struct {
	// Counters is the number of delayed counter pagelets.
	Counters int `json:"counters" yaml:"counters" toml:"counters"`

	// Delay is how long each counter's producer sleeps (e.g. "100ms").
	Delay string `json:"delay" yaml:"delay" toml:"delay"`

	// Padding is the size in bytes of the comment written before the
	// pagelets, which makes browsers start rendering early.
	Padding int `json:"padding" yaml:"padding" toml:"padding"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Name: "BigPipe",
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ShutdownTimeout: "10s",
		},
		Pipe: PipeConfig{
			Enabled:      true,
			Threshold:    pipe.HighPriorityThreshold,
			ClientScript: render.DefaultClientScript,
		},
		Assets: AssetsConfig{
			Prefix: "/static/",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "bigpipe",
			Path:      DefaultMetricsPath,
		},
		Tracing: TracingConfig{
			TracerName: "bigpipe",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Demo: DemoConfig{
			Counters: 50,
			Delay:    "100ms",
			Padding:  1024,
		},
	}
}

// Load reads configuration from the specified directory. It uses the
// first of bigpipe.json, bigpipe.yaml, bigpipe.yml and bigpipe.toml that
// exists.
func Load(dir string) (*Config, error) {
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E141").
		WithDetail("No bigpipe.json, bigpipe.yaml or bigpipe.toml found in " + dir)
}

// LoadFile reads configuration from the specified file path. The format
// follows the file extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E141").
				WithDetail("No configuration file at " + path)
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := New()
	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	var err error
	switch format(path) {
	case "json":
		if err = json.Unmarshal(data, cfg); err != nil {
			var syntaxErr *json.SyntaxError
			if stderrors.As(err, &syntaxErr) {
				line := bytes.Count(data[:min(int(syntaxErr.Offset), len(data))], []byte("\n")) + 1
				return errors.New("E120").
					WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
					WithLocation(path, line, 0)
			}
		}
	case "yaml":
		err = yaml.Unmarshal(data, cfg)
	case "toml":
		if _, err = toml.Decode(string(data), cfg); err != nil {
			var parseErr toml.ParseError
			if stderrors.As(err, &parseErr) {
				return errors.New("E120").
					WithDetail("Failed to parse " + filepath.Base(path) + ": " + parseErr.Message).
					WithLocation(path, parseErr.Position.Line, 0)
			}
		}
	default:
		return errors.New("E123").WithDetail("Cannot read " + path + ": unknown extension")
	}

	if err != nil {
		return errors.New("E120").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithLocationFromError(path, err)
	}
	return nil
}

func format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return ""
	}
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path in the format its extension
// names.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	switch format(path) {
	case "json":
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	case "yaml":
		data, err = yaml.Marshal(c)
	case "toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(c)
		data = buf.Bytes()
	default:
		return errors.New("E123").WithDetail("Cannot write " + path + ": unknown extension")
	}
	if err != nil {
		return errors.New("E120").Wrap(err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New("E120").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in values a file may have blanked out.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Pipe.ClientScript == "" {
		c.Pipe.ClientScript = render.DefaultClientScript
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("E122").
			WithDetail("Port must be between 1 and 65535, got " + strconv.Itoa(c.Server.Port))
	}

	invalid := func(detail string) error {
		return errors.New("E121").WithDetail(detail)
	}
	if _, err := parseDuration(c.Server.ShutdownTimeout); err != nil {
		return invalid("server.shutdownTimeout: " + err.Error())
	}
	if _, err := parseDuration(c.Demo.Delay); err != nil {
		return invalid("demo.delay: " + err.Error())
	}
	if _, ok := logLevels[c.Log.Level]; !ok {
		return invalid("log.level must be one of debug, info, warn, error; got " + strconv.Quote(c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return invalid("log.format must be text or json; got " + strconv.Quote(c.Log.Format))
	}
	if c.Demo.Counters < 0 || c.Demo.Padding < 0 {
		return invalid("demo.counters and demo.padding must not be negative")
	}
	if c.Assets.Bucket != "" && c.Assets.Key == "" {
		return invalid("assets.key is required when assets.bucket is set")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path must start with /")
	}
	for _, rule := range c.Pipe.Browsers {
		if !slices.Contains(knownBrowsers, useragent.Browser(strings.ToLower(rule.Browser))) {
			return invalid("pipe.browsers: unknown browser " + strconv.Quote(rule.Browser))
		}
	}
	return nil
}

var knownBrowsers = []useragent.Browser{
	useragent.Firefox,
	useragent.Opera,
	useragent.IE,
	useragent.Chrome,
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// parseDuration accepts Go duration strings; empty means zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, stderrors.New("must not be negative")
	}
	return d, nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// URL returns the base URL of the server.
func (c *Config) URL() string {
	return "http://" + c.Address()
}

// ShutdownTimeout returns the parsed shutdown timeout. Invalid values
// yield zero; Validate reports them.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := parseDuration(c.Server.ShutdownTimeout)
	return d
}

// DemoDelay returns the parsed demo producer delay.
func (c *Config) DemoDelay() time.Duration {
	d, _ := parseDuration(c.Demo.Delay)
	return d
}

// LogLevel returns the configured slog level, info when unknown.
func (c *Config) LogLevel() slog.Level {
	if level, ok := logLevels[c.Log.Level]; ok {
		return level
	}
	return slog.LevelInfo
}

// BrowserRules returns the configured allow-list, or the default one.
func (c *Config) BrowserRules() []useragent.Rule {
	if len(c.Pipe.Browsers) == 0 {
		return useragent.DefaultRules
	}
	rules := make([]useragent.Rule, 0, len(c.Pipe.Browsers))
	for _, r := range c.Pipe.Browsers {
		rules = append(rules, useragent.Rule{
			Browser:    useragent.Browser(strings.ToLower(r.Browser)),
			MinVersion: r.MinVersion,
		})
	}
	return rules
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	for _, name := range configNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing a config file, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E141").
				WithDetail("No configuration file found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working
// directory or its closest parent that has one.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}
