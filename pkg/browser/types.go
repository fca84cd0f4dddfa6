package browser

import "time"

// Config controls how the browser is launched and what it may visit.
type Config struct {
	Headless        bool           `json:"headless" mapstructure:"headless"`
	NoSandbox       bool           `json:"no_sandbox" mapstructure:"no_sandbox"`
	ChromePath      string         `json:"chrome_path,omitempty" mapstructure:"chrome_path"`
	NavigateTimeout time.Duration  `json:"navigate_timeout" mapstructure:"navigate_timeout"`
	MaxTextLength   int            `json:"max_text_length" mapstructure:"max_text_length"`
	Security        SecurityConfig `json:"security" mapstructure:"security"`
}

// DefaultConfig returns a headless configuration with a 30s navigation timeout.
func DefaultConfig() Config {
	return Config{
		Headless:        true,
		NavigateTimeout: 30 * time.Second,
		MaxTextLength:   8000,
	}
}

// SecurityConfig restricts navigation targets.
type SecurityConfig struct {
	AllowFileURLs      bool     `json:"allow_file_urls" mapstructure:"allow_file_urls"`
	AllowLocalhostURLs bool     `json:"allow_localhost_urls" mapstructure:"allow_localhost_urls"`
	AllowedDomains     []string `json:"allowed_domains,omitempty" mapstructure:"allowed_domains"`
	BlockedDomains     []string `json:"blocked_domains,omitempty" mapstructure:"blocked_domains"`
}

// State is a snapshot of the active tab.
type State struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// BrowserError is returned by browser operations.
type BrowserError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *BrowserError) Error() string {
	return e.Message
}

const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNavigation      = "NAVIGATION_ERROR"
	ErrCodeScriptExecution = "SCRIPT_EXECUTION_ERROR"
	ErrCodeSecurity        = "SECURITY_ERROR"
	ErrCodeBrowserCrash    = "BROWSER_CRASH"
)
