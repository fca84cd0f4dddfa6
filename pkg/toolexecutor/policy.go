package toolexecutor

import (
	"fmt"
	"path"

	"github.com/rs/zerolog/log"
)

// Policy filters which tools an agent may keep. Patterns use path.Match
// syntax, so "mcp_*" matches every remote tool.
type Policy struct {
	Allow []string `json:"allow" mapstructure:"allow"` // empty means all
	Deny  []string `json:"deny" mapstructure:"deny"`   // overrides allow
}

// IsAllowed reports whether name passes the policy.
func (p *Policy) IsAllowed(name string) bool {
	if p == nil {
		return true
	}

	for _, pattern := range p.Deny {
		if matches(pattern, name) {
			return false
		}
	}

	if len(p.Allow) == 0 {
		return true
	}
	for _, pattern := range p.Allow {
		if matches(pattern, name) {
			return true
		}
	}
	return false
}

// Validate rejects malformed patterns.
func (p *Policy) Validate() error {
	if p == nil {
		return nil
	}
	for _, pattern := range append(append([]string{}, p.Allow...), p.Deny...) {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid tool pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// ApplyPolicy removes every tool the policy rejects and returns the count.
func (r *Registry) ApplyPolicy(p *Policy) int {
	if p == nil {
		return 0
	}
	removed := r.RemoveWhere(func(t Tool) bool { return !p.IsAllowed(t.Name()) })
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Tools filtered by policy")
	}
	return removed
}

func matches(pattern, name string) bool {
	if pattern == "*" || pattern == name {
		return true
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}
