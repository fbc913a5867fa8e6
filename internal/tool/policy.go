package tool

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy disables tools by "owner/tool" glob patterns, e.g. "crm/create*"
// or "*/delete*". Core chat tools use the owner "core".
type Policy struct {
	disabled []string
}

// NewPolicy validates the patterns and builds a Policy.
func NewPolicy(disabled []string) (*Policy, error) {
	for _, p := range disabled {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid tool pattern %q", p)
		}
	}
	return &Policy{disabled: disabled}, nil
}

// Allowed reports whether owner/name is not disabled. A nil Policy allows
// everything.
func (p *Policy) Allowed(owner, name string) bool {
	if p == nil {
		return true
	}
	key := owner + "/" + name
	for _, pattern := range p.disabled {
		if ok, _ := doublestar.Match(pattern, key); ok {
			return false
		}
	}
	return true
}
