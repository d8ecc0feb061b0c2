package normalize

import (
	"fmt"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// RoleOther is assigned when no rule matches.
const RoleOther = "Other"

// RoleRule maps a role label to its trigger phrases.
type RoleRule struct {
	Role     string
	Patterns []string
}

type roleMatcher struct {
	role    string
	matcher *ahocorasick.Matcher
}

// RoleClassifier labels postings using an ordered rule table. Earlier rules
// take precedence over later ones.
type RoleClassifier struct {
	rules []roleMatcher
}

// NewRoleClassifier compiles one matcher per rule, keeping declaration order.
func NewRoleClassifier(rules []RoleRule) (*RoleClassifier, error) {
	c := &RoleClassifier{rules: make([]roleMatcher, 0, len(rules))}
	for i, rule := range rules {
		role := strings.TrimSpace(rule.Role)
		if role == "" {
			return nil, fmt.Errorf("role rule %d has no role", i)
		}
		patterns := make([]string, 0, len(rule.Patterns))
		for _, p := range rule.Patterns {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" {
				patterns = append(patterns, p)
			}
		}
		if len(patterns) == 0 {
			return nil, fmt.Errorf("role %q has no patterns", role)
		}
		c.rules = append(c.rules, roleMatcher{
			role:    role,
			matcher: ahocorasick.NewStringMatcher(patterns),
		})
	}
	return c, nil
}

// Classify returns the first role whose patterns appear in title or in
// description, compared case-insensitively, or RoleOther. The fields are
// matched separately so a pattern never spans the boundary between them.
func (c *RoleClassifier) Classify(title, description string) string {
	t := []byte(strings.ToLower(title))
	d := []byte(strings.ToLower(description))
	for _, r := range c.rules {
		if len(r.matcher.Match(t)) > 0 || len(r.matcher.Match(d)) > 0 {
			return r.role
		}
	}
	return RoleOther
}

// Roles lists the configured role labels in precedence order.
func (c *RoleClassifier) Roles() []string {
	out := make([]string, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.role
	}
	return out
}
