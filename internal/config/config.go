// Package config loads the streamsql YAML configuration.
//
//	log:
//	  level: info        # debug | info | warn | error
//	  format: text       # text | json
//	eval:
//	  error_policy: fail # fail | null
//	  key_encoding: utf8 # utf8 | nfc
//	runtime:
//	  on_error: fail     # fail | skip | dead-letter
//	  dead_letter_topic: ${DLQ_TOPIC:-errors}
//	store:
//	  path: streamsql.db
//	  compression: none  # none | zstd
//
// ${VAR} and ${VAR:-default} are replaced from the environment before
// parsing.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/streamsql/internal/codegen"
	"github.com/roach88/streamsql/internal/runtime/memrt"
	"github.com/roach88/streamsql/internal/serde"
	"github.com/roach88/streamsql/internal/topicstore"
)

// Config is the full configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Eval    EvalConfig    `yaml:"eval"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Store   StoreConfig   `yaml:"store"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EvalConfig controls expression evaluation.
type EvalConfig struct {
	// ErrorPolicy is "fail" or "null"; null turns evaluation failures into
	// NULL results.
	ErrorPolicy string `yaml:"error_policy"`
	// KeyEncoding is "utf8" or "nfc"; nfc normalizes group-by keys.
	KeyEncoding string `yaml:"key_encoding"`
}

// RuntimeConfig controls the reference runtime.
type RuntimeConfig struct {
	OnError         string `yaml:"on_error"`
	DeadLetterTopic string `yaml:"dead_letter_topic"`
}

// StoreConfig locates the sink store. An empty path keeps sink output in
// memory.
type StoreConfig struct {
	Path        string `yaml:"path"`
	Compression string `yaml:"compression"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Level: "info", Format: "text"},
		Eval:    EvalConfig{ErrorPolicy: "fail", KeyEncoding: string(serde.KeyEncodingUTF8)},
		Runtime: RuntimeConfig{OnError: string(memrt.OnErrorFail)},
		Store:   StoreConfig{Compression: string(topicstore.CompressionNone)},
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Load reads path over the defaults and validates the result.
func Load(path string, getenv func(string) string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data, getenv)
}

// Parse decodes YAML config data over the defaults and validates it.
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	data = interpolateEnv(data, getenv)

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		value := getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err.Error())
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format: unknown format %q (want text or json)", c.Log.Format))
	}

	if _, err := codegen.ParseErrorPolicy(c.Eval.ErrorPolicy); err != nil {
		errs = append(errs, "eval.error_policy: "+err.Error())
	}
	if _, err := serde.ParseKeyEncoding(c.Eval.KeyEncoding); err != nil {
		errs = append(errs, "eval.key_encoding: "+err.Error())
	}

	policy, err := memrt.ParseOnError(c.Runtime.OnError)
	if err != nil {
		errs = append(errs, "runtime.on_error: "+err.Error())
	}
	if policy == memrt.OnErrorDeadLetter && c.Runtime.DeadLetterTopic == "" {
		errs = append(errs, "runtime.dead_letter_topic is required when on_error is dead-letter")
	}

	if _, err := topicstore.ParseCompression(c.Store.Compression); err != nil {
		errs = append(errs, "store.compression: "+err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ErrorPolicy returns the parsed eval.error_policy.
func (c *Config) ErrorPolicy() codegen.ErrorPolicy {
	p, _ := codegen.ParseErrorPolicy(c.Eval.ErrorPolicy)
	return p
}

// KeySerde returns the group-by key serde for eval.key_encoding.
func (c *Config) KeySerde() serde.KeySerde {
	enc, _ := serde.ParseKeyEncoding(c.Eval.KeyEncoding)
	return serde.NewKeySerde(enc)
}

// RuntimeOptions returns the memrt options for the runtime section.
func (c *Config) RuntimeOptions() []memrt.Option {
	policy, _ := memrt.ParseOnError(c.Runtime.OnError)
	return []memrt.Option{memrt.WithOnError(policy, c.Runtime.DeadLetterTopic)}
}

// StoreOptions returns the topicstore options for the store section.
func (c *Config) StoreOptions() []topicstore.Option {
	compression, _ := topicstore.ParseCompression(c.Store.Compression)
	return []topicstore.Option{topicstore.WithCompression(compression)}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level: unknown level %q", s)
}

// NewLogger builds the configured handler writing to w. verbose forces
// debug level.
func NewLogger(c *Config, w io.Writer, verbose bool) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
