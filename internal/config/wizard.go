package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from in and prompting on out
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run asks for the settings a first run needs, starting from base (or the
// defaults when base is nil). Empty answers keep the current value.
func (w *Wizard) Run(base *Config) (*Config, error) {
	cfg := DefaultConfig()
	if base != nil {
		copied := *base
		cfg = &copied
	}
	validator := NewValidator()

	w.printf("=== Nava Configuration Wizard ===\n\n")

	// Reasoning provider
	for {
		provider, err := w.ask("Reasoning provider (openai/anthropic)", cfg.LLM.Provider)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateProvider(provider); err != nil {
			w.printf("Error: %v\n", err)
			continue
		}
		if provider != cfg.LLM.Provider && provider == "anthropic" {
			cfg.LLM.BaseURL = ""
			cfg.LLM.Model = "claude-sonnet-4-5"
		}
		cfg.LLM.Provider = provider
		break
	}

	if cfg.LLM.Provider == "openai" {
		baseURL, err := w.ask("OpenAI-compatible base URL", cfg.LLM.BaseURL)
		if err != nil {
			return nil, err
		}
		cfg.LLM.BaseURL = baseURL
	}

	for {
		model, err := w.ask("Model", cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateModel(model); err != nil {
			w.printf("Error: %v\n", err)
			continue
		}
		cfg.LLM.Model = model
		break
	}

	for {
		w.printf("API key (press Enter to read it from the environment): ")
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if key == "" {
			break
		}
		if err := validator.ValidateAPIKey(key, cfg.LLM.Provider, cfg.LLM.BaseURL); err != nil {
			w.printf("Error: %v\n", err)
			continue
		}
		cfg.LLM.APIKey = key
		break
	}

	w.printf("\n")

	// Fallback
	enable, err := w.ask("Enable direct completion fallback on authentication failures? (y/n)", yesNo(cfg.Fallback.Enabled))
	if err != nil {
		return nil, err
	}
	cfg.Fallback.Enabled = strings.EqualFold(enable, "y") || strings.EqualFold(enable, "yes")

	if cfg.Fallback.Enabled {
		for {
			w.printf("OpenRouter API key for the fallback (press Enter to use OPENROUTER_API_KEY): ")
			key, err := w.readLine()
			if err != nil {
				return nil, err
			}
			if key == "" {
				break
			}
			if err := validator.ValidateAPIKey(key, "openai", cfg.Fallback.BaseURL); err != nil {
				w.printf("Error: %v\n", err)
				continue
			}
			cfg.Fallback.APIKey = key
			break
		}
	}

	w.printf("\n")

	// Workspace and server
	path, err := w.ask("Workspace directory", cfg.Workspace.Path)
	if err != nil {
		return nil, err
	}
	cfg.Workspace.Path = path

	for {
		port, err := w.ask("Gateway port", strconv.Itoa(cfg.Gateway.Port))
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			w.printf("Error: invalid port %q\n", port)
			continue
		}
		cfg.Gateway.Port = n
		break
	}

	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		w.printf("Warning: %v, keeping %s\n", err, cfg.Logging.Level)
	} else {
		cfg.Logging.Level = level
	}

	w.printf("\nConfiguration complete!\n")

	return cfg, nil
}

// ask prompts with a default shown in brackets and returns the answer or the default.
func (w *Wizard) ask(prompt, def string) (string, error) {
	w.printf("%s [%s]: ", prompt, def)
	answer, err := w.readLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func (w *Wizard) printf(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format, args...)
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}
