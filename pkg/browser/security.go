package browser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// SecurityValidator validates navigation targets against a SecurityConfig.
type SecurityValidator struct {
	config SecurityConfig
}

// NewSecurityValidator creates a new security validator
func NewSecurityValidator(config SecurityConfig) *SecurityValidator {
	return &SecurityValidator{config: config}
}

// ValidateURL validates a URL and checks security policies
func (sv *SecurityValidator) ValidateURL(urlStr string) error {
	parsedURL, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil || parsedURL.Scheme == "" {
		return &BrowserError{Code: ErrCodeValidation, Message: fmt.Sprintf("Invalid URL format: %s", urlStr)}
	}

	switch parsedURL.Scheme {
	case "http", "https":
	case "file":
		if !sv.config.AllowFileURLs {
			sv.logSecurityViolation("file_url_blocked", urlStr)
			return &BrowserError{Code: ErrCodeSecurity, Message: "file:// URLs are not allowed"}
		}
	default:
		return &BrowserError{Code: ErrCodeValidation, Message: fmt.Sprintf("Unsupported URL scheme: %s", parsedURL.Scheme)}
	}

	host := hostname(parsedURL)

	if isLocalhost(host) && !sv.config.AllowLocalhostURLs {
		sv.logSecurityViolation("localhost_url_blocked", urlStr)
		return &BrowserError{Code: ErrCodeSecurity, Message: "localhost URLs are not allowed"}
	}

	if len(sv.config.AllowedDomains) > 0 && !matchAny(host, sv.config.AllowedDomains) {
		sv.logSecurityViolation("domain_not_allowed", urlStr)
		return &BrowserError{Code: ErrCodeSecurity, Message: fmt.Sprintf("Domain not in allowed list: %s", host)}
	}

	if matchAny(host, sv.config.BlockedDomains) {
		sv.logSecurityViolation("domain_blocked", urlStr)
		return &BrowserError{Code: ErrCodeSecurity, Message: fmt.Sprintf("Domain is blocked: %s", host)}
	}

	return nil
}

func (sv *SecurityValidator) logSecurityViolation(violationType, details string) {
	log.Warn().Str("violation", violationType).Str("url", details).Msg("Browser navigation blocked")
}

func hostname(u *url.URL) string {
	return strings.ToLower(u.Hostname())
}

func isLocalhost(host string) bool {
	return host == "localhost" ||
		host == "::1" ||
		host == "0.0.0.0" ||
		strings.HasPrefix(host, "127.") ||
		strings.HasSuffix(host, ".localhost")
}

func matchAny(host string, patterns []string) bool {
	for _, p := range patterns {
		if matchDomain(host, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// matchDomain supports exact hosts, "*.example.com" and ".example.com".
func matchDomain(host, pattern string) bool {
	if host == pattern {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[2:]
		return strings.HasSuffix(host, "."+suffix) || host == suffix
	}
	if strings.HasPrefix(pattern, ".") {
		return strings.HasSuffix(host, pattern) || host == pattern[1:]
	}
	return false
}
