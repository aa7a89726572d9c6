package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	LLM          LLMConfig          `mapstructure:"llm" yaml:"llm"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Observer     ObserverConfig     `mapstructure:"observer" yaml:"observer"`
	Executors    ExecutorsConfig    `mapstructure:"executors" yaml:"executors"`
	Store        StoreConfig        `mapstructure:"store" yaml:"store"`
	EventLog     EventLogConfig     `mapstructure:"event_log" yaml:"event_log"`
}

// LoggerConfig configures the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// LLMProvider identifies a completion backend.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderOffline   LLMProvider = "offline" // Deterministic canned responses; used when no API key is set.
)

// LLMModelConfig defines the configuration for a single model.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float64       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerMinute throttles calls to this model; 0 disables the limiter.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// LLMConfig configures the model router: named model definitions plus which
// model serves each tier.
type LLMConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// ModelFor returns the configuration of the model assigned to the given tier
// name ("fast" or "powerful").
func (c *LLMConfig) ModelFor(name string) (LLMModelConfig, bool) {
	m, ok := c.Models[name]
	return m, ok
}

// OrchestratorConfig carries the default budgets and retry limits for tasks.
// Every value can be overridden per task via goal constraints.
type OrchestratorConfig struct {
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`
	MaxSteps           int           `mapstructure:"max_steps" yaml:"max_steps"`
	MaxDuration        time.Duration `mapstructure:"max_duration" yaml:"max_duration"`
	ActionRetries      int           `mapstructure:"action_retries" yaml:"action_retries"`
	CaptureRetries     int           `mapstructure:"capture_retries" yaml:"capture_retries"`
	PlannerRetries     int           `mapstructure:"planner_retries" yaml:"planner_retries"`
	ActionTimeout      time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	PlannerTimeout     time.Duration `mapstructure:"planner_timeout" yaml:"planner_timeout"`
	// HistoryWindow bounds how many trailing steps are handed to the planner.
	HistoryWindow int `mapstructure:"history_window" yaml:"history_window"`
	// VerifyCompletion runs a final observation check after a COMPLETE verdict
	// and records the verification note in the task summary.
	VerifyCompletion bool `mapstructure:"verify_completion" yaml:"verify_completion"`
}

// ObserverConfig configures screen capture and text extraction. The commands
// are templates; "{output}" and "{input}" are replaced with file paths.
type ObserverConfig struct {
	CaptureCommand string        `mapstructure:"capture_command" yaml:"capture_command"`
	ExtractCommand string        `mapstructure:"extract_command" yaml:"extract_command"`
	WindowCommand  string        `mapstructure:"window_command" yaml:"window_command"`
	CaptureTimeout time.Duration `mapstructure:"capture_timeout" yaml:"capture_timeout"`
	ShotDir        string        `mapstructure:"shot_dir" yaml:"shot_dir"`
	// KeepCaptures retains capture images after the step completes; otherwise
	// only the extracted text survives in history.
	KeepCaptures bool `mapstructure:"keep_captures" yaml:"keep_captures"`
}

// GUIConfig configures the desktop input executor.
type GUIConfig struct {
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	WaitTimeout   time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
}

// BrowserConfig configures the driven browser session.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	ScreenshotDir     string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// CodeConfig configures code generation and sandboxed execution.
type CodeConfig struct {
	WorkspaceDir string        `mapstructure:"workspace_dir" yaml:"workspace_dir"`
	ExecTimeout  time.Duration `mapstructure:"exec_timeout" yaml:"exec_timeout"`
	// Interpreters maps a language name to the interpreter binary used to run it.
	Interpreters map[string]string `mapstructure:"interpreters" yaml:"interpreters"`
	// VersionWorkspace commits each generated script to a git repository in
	// the workspace, building an auditable trail.
	VersionWorkspace bool `mapstructure:"version_workspace" yaml:"version_workspace"`
}

// FileConfig configures the sandboxed file executor.
type FileConfig struct {
	RootDir      string `mapstructure:"root_dir" yaml:"root_dir"`
	MaxReadBytes int64  `mapstructure:"max_read_bytes" yaml:"max_read_bytes"`
}

// SystemConfig configures the system command executor.
type SystemConfig struct {
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	// ExtraBlocked augments the built-in unsafe command blocklist.
	ExtraBlocked []string `mapstructure:"extra_blocked" yaml:"extra_blocked"`
}

// ExecutorsConfig groups the per-executor settings.
type ExecutorsConfig struct {
	GUI     GUIConfig     `mapstructure:"gui" yaml:"gui"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Code    CodeConfig    `mapstructure:"code" yaml:"code"`
	File    FileConfig    `mapstructure:"file" yaml:"file"`
	System  SystemConfig  `mapstructure:"system" yaml:"system"`
}

// StoreConfig configures the Postgres archive for terminal tasks.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
	// CompressMinBytes is the threshold above which observation text payloads
	// are stored brotli-compressed.
	CompressMinBytes int `mapstructure:"compress_min_bytes" yaml:"compress_min_bytes"`
}

// EventLogConfig configures the JSONL presentation feed.
type EventLogConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the defaults below.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deskpilot")
	v.SetDefault("logger.log_file", "deskpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "gemini-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-pro")
	v.SetDefault("llm.models.gemini-flash.provider", "gemini")
	v.SetDefault("llm.models.gemini-flash.model", "gemini-2.5-flash")
	v.SetDefault("llm.models.gemini-flash.api_timeout", "30s")
	v.SetDefault("llm.models.gemini-flash.temperature", 0.2)
	v.SetDefault("llm.models.gemini-pro.provider", "gemini")
	v.SetDefault("llm.models.gemini-pro.model", "gemini-2.5-pro")
	v.SetDefault("llm.models.gemini-pro.api_timeout", "60s")
	v.SetDefault("llm.models.gemini-pro.temperature", 0.2)

	// -- Orchestrator --
	v.SetDefault("orchestrator.max_concurrent_tasks", 2)
	v.SetDefault("orchestrator.max_steps", 25)
	v.SetDefault("orchestrator.max_duration", "10m")
	v.SetDefault("orchestrator.action_retries", 3)
	v.SetDefault("orchestrator.capture_retries", 3)
	v.SetDefault("orchestrator.planner_retries", 3)
	v.SetDefault("orchestrator.action_timeout", "45s")
	v.SetDefault("orchestrator.planner_timeout", "90s")
	v.SetDefault("orchestrator.history_window", 12)
	v.SetDefault("orchestrator.verify_completion", true)

	// -- Observer --
	v.SetDefault("observer.capture_timeout", "10s")
	v.SetDefault("observer.shot_dir", "")
	v.SetDefault("observer.keep_captures", false)

	// -- Executors --
	v.SetDefault("executors.gui.action_timeout", "15s")
	v.SetDefault("executors.gui.poll_interval", "500ms")
	v.SetDefault("executors.gui.wait_timeout", "30s")
	v.SetDefault("executors.browser.headless", false)
	v.SetDefault("executors.browser.navigation_timeout", "60s")
	v.SetDefault("executors.browser.action_timeout", "20s")
	v.SetDefault("executors.browser.screenshot_dir", "")
	v.SetDefault("executors.code.exec_timeout", "60s")
	v.SetDefault("executors.code.interpreters.python", "python3")
	v.SetDefault("executors.code.interpreters.javascript", "node")
	v.SetDefault("executors.code.interpreters.shell", "sh")
	v.SetDefault("executors.code.version_workspace", true)
	v.SetDefault("executors.file.max_read_bytes", 1<<20)
	v.SetDefault("executors.system.command_timeout", "30s")

	// -- Store --
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.compress_min_bytes", 4096)

	// -- Event log --
	v.SetDefault("event_log.path", "deskpilot-events.jsonl")
}

// NewConfigFromViper builds and validates a configuration from a viper
// instance that already has defaults, file and env sources applied.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("llm.models.gemini-flash.api_key", "GEMINI_API_KEY")
	v.BindEnv("llm.models.gemini-pro.api_key", "GEMINI_API_KEY")
	v.BindEnv("store.url", "DESKPILOT_STORE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Orchestrator.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("orchestrator.max_concurrent_tasks must be a positive integer")
	}
	if c.Orchestrator.MaxSteps <= 0 {
		return fmt.Errorf("orchestrator.max_steps must be a positive integer")
	}
	if c.Orchestrator.MaxDuration <= 0 {
		return fmt.Errorf("orchestrator.max_duration must be a positive duration")
	}
	if c.Orchestrator.ActionRetries < 1 {
		return fmt.Errorf("orchestrator.action_retries must be at least 1")
	}
	if c.Orchestrator.HistoryWindow < 1 {
		return fmt.Errorf("orchestrator.history_window must be at least 1")
	}
	if c.LLM.DefaultPowerfulModel == "" {
		return fmt.Errorf("llm.default_powerful_model is required")
	}
	for name, m := range c.LLM.Models {
		switch m.Provider {
		case ProviderGemini, ProviderAnthropic, ProviderOffline:
		default:
			return fmt.Errorf("llm.models.%s: unknown provider %q", name, m.Provider)
		}
	}
	if c.Store.Enabled && c.Store.URL == "" {
		return fmt.Errorf("store.url is required when the store is enabled")
	}
	return nil
}
