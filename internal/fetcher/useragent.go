package fetcher

import "math/rand/v2"

// UserAgentPool hands out a random User-Agent per attempt.
type UserAgentPool struct {
	agents []string
	pick   func(n int) int
}

// NewUserAgentPool builds a pool; an empty list yields "" (the transport default).
func NewUserAgentPool(agents []string) *UserAgentPool {
	cp := make([]string, 0, len(agents))
	for _, a := range agents {
		if a != "" {
			cp = append(cp, a)
		}
	}
	return &UserAgentPool{agents: cp, pick: rand.IntN}
}

// Next returns one agent from the pool.
func (p *UserAgentPool) Next() string {
	if p == nil || len(p.agents) == 0 {
		return ""
	}
	return p.agents[p.pick(len(p.agents))]
}
