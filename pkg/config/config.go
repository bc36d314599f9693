// Package config loads and holds the engine configuration.
//
// Configuration lives in <project>/.agentflow/config.json (or config.yaml).
// A missing file is created with defaults. Environment variables override
// file values after loading.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"agentflow/pkg/logx"
)

const (
	// ProjectConfigDir holds config, secrets, logs and audit files.
	ProjectConfigDir = ".agentflow"
	// ConfigFilename is the JSON config file name.
	ConfigFilename = "config.json"
	// YAMLConfigFilename is preferred over ConfigFilename when present.
	YAMLConfigFilename = "config.yaml"
)

// Oracle providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

const (
	defaultOllamaHost = "http://localhost:11434"
	defaultModel      = "qwen2.5-coder:14b"
)

// Duration is a time.Duration that marshals as a Go duration string.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n float64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return fmt.Errorf("duration must be a string or seconds: %w", err)
		}
		*d = Duration(n * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		secs, err2 := strconv.ParseFloat(node.Value, 64)
		if err2 != nil {
			return fmt.Errorf("invalid duration %q: %w", node.Value, err)
		}
		v = time.Duration(secs * float64(time.Second))
	}
	*d = Duration(v)
	return nil
}

// OracleConfig selects and tunes the text-generation endpoint.
type OracleConfig struct {
	Provider     string   `json:"provider" yaml:"provider"`
	Host         string   `json:"host,omitempty" yaml:"host,omitempty"`
	Model        string   `json:"model" yaml:"model"`
	Timeout      Duration `json:"timeout" yaml:"timeout"`
	RequestDelay Duration `json:"request_delay" yaml:"request_delay"`
	Temperature  float64  `json:"temperature" yaml:"temperature"`
}

// StageConfig is the per-stage model and token window.
type StageConfig struct {
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	NumCtx     int    `json:"num_ctx" yaml:"num_ctx"`
	NumPredict int    `json:"num_predict" yaml:"num_predict"`
}

// RetryConfig tunes transport retries against the oracle.
type RetryConfig struct {
	MaxAttempts   int      `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay  Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay      Duration `json:"max_delay" yaml:"max_delay"`
	BackoffFactor float64  `json:"backoff_factor" yaml:"backoff_factor"`
	Jitter        bool     `json:"jitter" yaml:"jitter"`
}

// IndexConfig controls workspace index regeneration.
type IndexConfig struct {
	Cooldown Duration `json:"cooldown" yaml:"cooldown"`
	MaxAge   Duration `json:"max_age" yaml:"max_age"`
	MaxFiles int      `json:"max_files" yaml:"max_files"`
}

// SummarizerConfig bounds the hierarchical summarizer.
type SummarizerConfig struct {
	Budget      int      `json:"budget" yaml:"budget"`
	MergeBudget int      `json:"merge_budget" yaml:"merge_budget"`
	Retries     int      `json:"retries" yaml:"retries"`
	Backoff     Duration `json:"backoff" yaml:"backoff"`
}

// ExecutorConfig bounds the final-answer payload of a task.
type ExecutorConfig struct {
	FinalMaxEntries   int `json:"final_max_entries" yaml:"final_max_entries"`
	FinalFieldLimit   int `json:"final_field_limit" yaml:"final_field_limit"`
	FinalPayloadLimit int `json:"final_payload_limit" yaml:"final_payload_limit"`
	FinalTailEntries  int `json:"final_tail_entries" yaml:"final_tail_entries"`
}

// QualityConfig bounds the post-write type-check loop.
type QualityConfig struct {
	MaxDebuggerRetries int `json:"max_debugger_retries" yaml:"max_debugger_retries"`
}

// JournalConfig toggles the sqlite run journal.
type JournalConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// MetricsConfig toggles the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// Config is the full engine configuration.
type Config struct {
	Oracle        OracleConfig           `json:"oracle" yaml:"oracle"`
	Stages        map[string]StageConfig `json:"stages" yaml:"stages"`
	Retry         RetryConfig            `json:"retry" yaml:"retry"`
	Index         IndexConfig            `json:"index" yaml:"index"`
	Summarizer    SummarizerConfig       `json:"summarizer" yaml:"summarizer"`
	Executor      ExecutorConfig         `json:"executor" yaml:"executor"`
	Quality       QualityConfig          `json:"quality" yaml:"quality"`
	Journal       JournalConfig          `json:"journal" yaml:"journal"`
	Metrics       MetricsConfig          `json:"metrics" yaml:"metrics"`
	ReplyLanguage string                 `json:"reply_language,omitempty" yaml:"reply_language,omitempty"`
}

var (
	config     *Config
	projectDir string
	mu         sync.RWMutex

	logger = logx.NewLogger("config")

	// ErrNotLoaded is returned by GetConfig before LoadConfig succeeded.
	ErrNotLoaded = errors.New("config not loaded")
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Oracle: OracleConfig{
			Provider:     ProviderOllama,
			Host:         defaultOllamaHost,
			Model:        defaultModel,
			Timeout:      Duration(5 * time.Minute),
			RequestDelay: Duration(2 * time.Second),
			Temperature:  0.2,
		},
		Stages: DefaultStages(),
		Retry: RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  Duration(time.Second),
			MaxDelay:      Duration(10 * time.Second),
			BackoffFactor: 2.0,
			Jitter:        true,
		},
		Index: IndexConfig{
			Cooldown: Duration(10 * time.Second),
			MaxAge:   Duration(60 * time.Second),
			MaxFiles: 5000,
		},
		Summarizer: SummarizerConfig{
			Budget:      12000,
			MergeBudget: 12000,
			Retries:     3,
			Backoff:     Duration(time.Second),
		},
		Executor: ExecutorConfig{
			FinalMaxEntries:   20,
			FinalFieldLimit:   600,
			FinalPayloadLimit: 14000,
			FinalTailEntries:  10,
		},
		Quality: QualityConfig{MaxDebuggerRetries: 3},
		Journal: JournalConfig{Enabled: true},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9464"},
	}
}

// LoadConfig reads, defaults, env-overrides, validates and installs the
// configuration for projectDir. A missing file is created.
func LoadConfig(dir string) error {
	cfg, path, err := readConfig(dir)
	if err != nil {
		return err
	}
	created := path == ""

	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if created {
		if err := saveConfig(dir, &cfg); err != nil {
			logger.Warn("could not write default config: %v", err)
		} else {
			logger.Info("created default config in %s", filepath.Join(dir, ProjectConfigDir))
		}
	}

	// Env overrides are applied after saving so they never leak into the file.
	applyEnvOverrides(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return fmt.Errorf("invalid config after env overrides: %w", err)
	}

	mu.Lock()
	config = &cfg
	projectDir = dir
	mu.Unlock()
	return nil
}

func readConfig(dir string) (Config, string, error) {
	base := filepath.Join(dir, ProjectConfigDir)
	for _, name := range []string{YAMLConfigFilename, ConfigFilename} {
		path := filepath.Join(base, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, "", fmt.Errorf("read %s: %w", path, err)
		}
		var cfg Config
		if strings.HasSuffix(name, ".yaml") {
			err = yaml.Unmarshal(data, &cfg)
		} else {
			err = json.Unmarshal(data, &cfg)
		}
		if err != nil {
			return Config{}, "", fmt.Errorf("parse %s: %w", path, err)
		}
		return cfg, path, nil
	}
	return Default(), "", nil
}

func saveConfig(dir string, cfg *Config) error {
	base := filepath.Join(dir, ProjectConfigDir)
	if err := os.MkdirAll(base, 0755); err != nil {
		return fmt.Errorf("create %s: %w", base, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(base, ConfigFilename), data, 0644)
}

// SaveConfig writes the installed configuration back to disk.
func SaveConfig() error {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return ErrNotLoaded
	}
	return saveConfig(projectDir, config)
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Oracle.Provider == "" {
		cfg.Oracle.Provider = def.Oracle.Provider
	}
	if cfg.Oracle.Model == "" {
		cfg.Oracle.Model = def.Oracle.Model
	}
	if cfg.Oracle.Host == "" && cfg.Oracle.Provider == ProviderOllama {
		cfg.Oracle.Host = def.Oracle.Host
	}
	if cfg.Oracle.Timeout <= 0 {
		cfg.Oracle.Timeout = def.Oracle.Timeout
	}
	if cfg.Stages == nil {
		cfg.Stages = map[string]StageConfig{}
	}
	for name, sc := range def.Stages {
		cur, ok := cfg.Stages[name]
		if !ok {
			cfg.Stages[name] = sc
			continue
		}
		if cur.NumCtx <= 0 {
			cur.NumCtx = sc.NumCtx
		}
		if cur.NumPredict <= 0 {
			cur.NumPredict = sc.NumPredict
		}
		cfg.Stages[name] = cur
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}
	if cfg.Index.Cooldown <= 0 {
		cfg.Index.Cooldown = def.Index.Cooldown
	}
	if cfg.Index.MaxAge <= 0 {
		cfg.Index.MaxAge = def.Index.MaxAge
	}
	if cfg.Index.MaxFiles <= 0 {
		cfg.Index.MaxFiles = def.Index.MaxFiles
	}
	if cfg.Summarizer.Budget <= 0 {
		cfg.Summarizer.Budget = def.Summarizer.Budget
	}
	if cfg.Summarizer.MergeBudget <= 0 {
		cfg.Summarizer.MergeBudget = def.Summarizer.MergeBudget
	}
	if cfg.Summarizer.Retries <= 0 {
		cfg.Summarizer.Retries = def.Summarizer.Retries
	}
	if cfg.Summarizer.Backoff <= 0 {
		cfg.Summarizer.Backoff = def.Summarizer.Backoff
	}
	if cfg.Executor.FinalMaxEntries <= 0 {
		cfg.Executor.FinalMaxEntries = def.Executor.FinalMaxEntries
	}
	if cfg.Executor.FinalFieldLimit <= 0 {
		cfg.Executor.FinalFieldLimit = def.Executor.FinalFieldLimit
	}
	if cfg.Executor.FinalPayloadLimit <= 0 {
		cfg.Executor.FinalPayloadLimit = def.Executor.FinalPayloadLimit
	}
	if cfg.Executor.FinalTailEntries <= 0 {
		cfg.Executor.FinalTailEntries = def.Executor.FinalTailEntries
	}
	if cfg.Quality.MaxDebuggerRetries <= 0 {
		cfg.Quality.MaxDebuggerRetries = def.Quality.MaxDebuggerRetries
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = def.Metrics.Addr
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTFLOW_PROVIDER"); v != "" {
		cfg.Oracle.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("AGENTFLOW_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" && cfg.Oracle.Provider == ProviderOllama {
		cfg.Oracle.Host = v
	}
	if v := os.Getenv("OLLAMA_REQUEST_DELAY"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
			cfg.Oracle.RequestDelay = Duration(secs * float64(time.Second))
		} else {
			logger.Warn("ignoring OLLAMA_REQUEST_DELAY=%q", v)
		}
	}
	if v := os.Getenv("AGENTFLOW_REPLY_LANGUAGE"); v != "" {
		cfg.ReplyLanguage = v
	}
	for name, sc := range cfg.Stages {
		key := "OLLAMA_" + strings.ToUpper(name)
		if n, ok := envInt(key + "_NUM_CTX"); ok {
			sc.NumCtx = n
		}
		if n, ok := envInt(key + "_NUM_PREDICT"); ok {
			sc.NumPredict = n
		}
		cfg.Stages[name] = sc
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logger.Warn("ignoring %s=%q", key, v)
		return 0, false
	}
	return n, true
}

func validateConfig(cfg *Config) error {
	switch cfg.Oracle.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
	default:
		return fmt.Errorf("unknown oracle provider %q", cfg.Oracle.Provider)
	}
	if cfg.Oracle.Temperature < 0 || cfg.Oracle.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", cfg.Oracle.Temperature)
	}
	if cfg.Oracle.RequestDelay < 0 {
		return fmt.Errorf("request_delay must not be negative")
	}
	if cfg.Retry.BackoffFactor < 1 {
		return fmt.Errorf("retry.backoff_factor must be >= 1, got %v", cfg.Retry.BackoffFactor)
	}
	for name, sc := range cfg.Stages {
		if sc.NumCtx <= 0 || sc.NumPredict <= 0 {
			return fmt.Errorf("stage %s: num_ctx and num_predict must be positive", name)
		}
	}
	return nil
}

// GetConfig returns a copy of the installed configuration.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, ErrNotLoaded
	}
	cfg := *config
	cfg.Stages = make(map[string]StageConfig, len(config.Stages))
	for k, v := range config.Stages {
		cfg.Stages[k] = v
	}
	return cfg, nil
}

// ProjectDir returns the directory passed to LoadConfig.
func ProjectDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return projectDir
}

// SetConfigForTesting installs cfg without touching disk. Pass nil to reset.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
}

// StageLimits returns the token window for a stage, falling back to the
// generic default for stages without an entry.
func (c *Config) StageLimits(stage string) StageConfig {
	if sc, ok := c.Stages[stage]; ok {
		if sc.Model == "" {
			sc.Model = c.Oracle.Model
		}
		return sc
	}
	return StageConfig{Model: c.Oracle.Model, NumCtx: defaultNumCtx, NumPredict: defaultNumPredict}
}

// GetAPIKey resolves the credential for a provider. For ollama it returns the host.
func GetAPIKey(provider string) (string, error) {
	switch provider {
	case ProviderOllama:
		if host := os.Getenv("OLLAMA_HOST"); host != "" {
			return host, nil
		}
		return defaultOllamaHost, nil
	case ProviderOpenAI:
		return GetSecret("OPENAI_API_KEY")
	case ProviderAnthropic:
		return GetSecret("ANTHROPIC_API_KEY")
	case ProviderGoogle:
		if v, err := GetSecret("GOOGLE_GENAI_API_KEY"); err == nil {
			return v, nil
		}
		return GetSecret("GEMINI_API_KEY")
	default:
		return "", fmt.Errorf("unknown provider %q", provider)
	}
}
