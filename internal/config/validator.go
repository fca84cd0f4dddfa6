package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates individual configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProvider validates a reasoning provider name
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case "openai", "anthropic":
		return nil
	}
	return fmt.Errorf("invalid provider: %s (must be one of: openai, anthropic)", provider)
}

// ValidateAPIKey validates an API key format. baseURL selects the
// OpenRouter key format for OpenAI-compatible providers.
func (v *Validator) ValidateAPIKey(key, provider, baseURL string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch {
	case provider == "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case strings.Contains(baseURL, "openrouter.ai"):
		if !strings.HasPrefix(key, "sk-or-v1-") {
			return fmt.Errorf("invalid OpenRouter API key format (should start with sk-or-v1-)")
		}
	case provider == "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if strings.ContainsAny(model, " \t\n") {
		return fmt.Errorf("model name cannot contain whitespace: %q", model)
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSchedule validates a cron schedule or descriptor such as @hourly
func (v *Validator) ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

// ValidateConfig performs value-level checks beyond Config.Validate. The
// returned problems are advisory; keys are only checked when set.
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if err := v.ValidateModel(cfg.LLM.Model); err != nil {
		errs = append(errs, fmt.Errorf("llm: %w", err))
	}
	if err := v.ValidateTemperature(cfg.LLM.Temperature); err != nil {
		errs = append(errs, fmt.Errorf("llm: %w", err))
	}
	if err := v.ValidateMaxTokens(cfg.LLM.MaxTokens); err != nil {
		errs = append(errs, fmt.Errorf("llm: %w", err))
	}
	if cfg.LLM.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.LLM.APIKey, cfg.LLM.Provider, cfg.LLM.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("llm: %w", err))
		}
	}

	if cfg.Fallback.Enabled {
		if err := v.ValidateModel(cfg.Fallback.Model); err != nil {
			errs = append(errs, fmt.Errorf("fallback: %w", err))
		}
		if err := v.ValidateMaxTokens(cfg.Fallback.MaxTokens); err != nil {
			errs = append(errs, fmt.Errorf("fallback: %w", err))
		}
		if cfg.Fallback.APIKey != "" {
			if err := v.ValidateAPIKey(cfg.Fallback.APIKey, "openai", cfg.Fallback.BaseURL); err != nil {
				errs = append(errs, fmt.Errorf("fallback: %w", err))
			}
		}
	}

	if cfg.Workspace.Retention > 0 {
		if err := v.ValidateSchedule(cfg.Workspace.PruneSchedule); err != nil {
			errs = append(errs, fmt.Errorf("workspace: %w", err))
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errs
}
