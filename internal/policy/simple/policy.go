// Package simple holds host-list policies for browser escalation.
package simple

import (
	"strings"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

// Policy refuses browser rendering for a fixed set of hosts. A host also
// matches its subdomains.
type Policy struct {
	plainOnly map[string]struct{}
}

// New creates a Policy. With no hosts it allows every escalation.
func New(plainOnlyHosts ...string) *Policy {
	p := &Policy{plainOnly: make(map[string]struct{}, len(plainOnlyHosts))}
	for _, h := range plainOnlyHosts {
		h = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "www.")
		if h != "" {
			p.plainOnly[h] = struct{}{}
		}
	}
	return p
}

// AllowHeadless reports whether rawURL may be fetched with a browser.
func (p *Policy) AllowHeadless(rawURL string) bool {
	if p == nil || len(p.plainOnly) == 0 {
		return true
	}
	host := strings.TrimPrefix(leadership.HostOf(rawURL), "www.")
	for host != "" {
		if _, ok := p.plainOnly[host]; ok {
			return false
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return true
}
