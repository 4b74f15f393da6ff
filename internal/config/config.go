package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Template kinds supported by the prompt renderer.
const (
	TemplateChatML = "chatml"
	TemplateLlama  = "llama"
	TemplateRaw    = "raw"
)

// ModelConfig describes one model to load at startup. Immutable after load.
type ModelConfig struct {
	// Unique model id used in requests.
	ID string `json:"id" yaml:"id" toml:"id"`
	// Path to the GGUF file. Supports a leading '~'.
	Path string `json:"path" yaml:"path" toml:"path"`
	// Chat template kind: chatml, llama or raw. Defaults to chatml.
	Template string `json:"template" yaml:"template" toml:"template"`
	// Default system prompt injected when the request carries none.
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt" toml:"system_prompt"`
	// Context window size in tokens.
	CtxSize int `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	// Batch size hint for the engine.
	BatchSize int `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	// CPU threads hint; 0 lets the engine decide.
	Threads int `json:"threads" yaml:"threads" toml:"threads"`
	// Default sampling temperature.
	Temperature float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	// Default nucleus sampling probability.
	TopP float64 `json:"top_p" yaml:"top_p" toml:"top_p"`
	// Default maximum new tokens per completion.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
}

// Config holds runtime parameters for the gateway.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	AuthToken string `json:"auth_token" yaml:"auth_token" toml:"auth_token"`

	// Shared store. Empty RedisURL selects the in-memory store, which is
	// only safe for a single gateway process.
	RedisURL  string `json:"redis_url" yaml:"redis_url" toml:"redis_url"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" toml:"key_prefix"`

	// Admission control. MaxConcurrent <= 0 disables admission entirely.
	MaxConcurrent int           `json:"max_concurrent" yaml:"max_concurrent" toml:"max_concurrent"`
	AdmitWait     Duration `json:"admit_wait" yaml:"admit_wait" toml:"admit_wait"`
	LeaseTTL      Duration `json:"lease_ttl" yaml:"lease_ttl" toml:"lease_ttl"`
	ReapInterval  Duration `json:"reap_interval" yaml:"reap_interval" toml:"reap_interval"`

	// Per-model dispatch wait before reporting busy.
	DispatchWait Duration `json:"dispatch_wait" yaml:"dispatch_wait" toml:"dispatch_wait"`

	// Session transcripts expire after this TTL in the store.
	SessionTTL Duration `json:"session_ttl" yaml:"session_ttl" toml:"session_ttl"`

	// History budget in estimated tokens; 0 derives it from the model's
	// ctx_size minus max_tokens.
	HistoryBudgetTokens int `json:"history_budget_tokens" yaml:"history_budget_tokens" toml:"history_budget_tokens"`

	DefaultModel string        `json:"default_model" yaml:"default_model" toml:"default_model"`
	Models       []ModelConfig `json:"models" yaml:"models" toml:"models"`

	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`

	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultAddr         = ":8080"
	DefaultKeyPrefix    = "llmgate"
	DefaultAdmitWait    = 120 * time.Second
	DefaultLeaseTTL     = 5 * time.Minute
	DefaultReapInterval = 15 * time.Second
	DefaultDispatchWait = 30 * time.Second
	DefaultSessionTTL   = time.Hour
	DefaultMaxBody      = int64(1 << 20)
	DefaultCtxSize      = 4096
	DefaultBatchSize    = 512
	DefaultTemperature  = 0.7
	DefaultTopP         = 0.95
	DefaultMaxTokens    = 512
)

// ApplyDefaults fills unset fields, including per-model defaults.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.AdmitWait <= 0 {
		c.AdmitWait = Duration(DefaultAdmitWait)
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = Duration(DefaultLeaseTTL)
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = Duration(DefaultReapInterval)
	}
	if c.DispatchWait <= 0 {
		c.DispatchWait = Duration(DefaultDispatchWait)
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = Duration(DefaultSessionTTL)
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBody
	}
	for i := range c.Models {
		m := &c.Models[i]
		if m.Template == "" {
			m.Template = TemplateChatML
		}
		if m.CtxSize <= 0 {
			m.CtxSize = DefaultCtxSize
		}
		if m.BatchSize <= 0 {
			m.BatchSize = DefaultBatchSize
		}
		if m.Temperature <= 0 {
			m.Temperature = DefaultTemperature
		}
		if m.TopP <= 0 {
			m.TopP = DefaultTopP
		}
		if m.MaxTokens <= 0 {
			m.MaxTokens = DefaultMaxTokens
		}
	}
}

// Validate checks cross-field consistency after defaults are applied.
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("no models configured")
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return fmt.Errorf("model with empty id")
		}
		lower := strings.ToLower(id)
		if seen[lower] {
			return fmt.Errorf("duplicate model id: %s", id)
		}
		seen[lower] = true
		if strings.TrimSpace(m.Path) == "" {
			return fmt.Errorf("model %s: empty path", id)
		}
		switch m.Template {
		case TemplateChatML, TemplateLlama, TemplateRaw:
		default:
			return fmt.Errorf("model %s: unknown template %q", id, m.Template)
		}
	}
	if c.DefaultModel != "" && !seen[strings.ToLower(c.DefaultModel)] {
		return fmt.Errorf("default model %q is not configured", c.DefaultModel)
	}
	return nil
}

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
