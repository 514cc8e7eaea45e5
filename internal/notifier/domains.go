package notifier

import "strings"

// MatchDomain reports whether host matches any pattern.
//
//	"*"             any host
//	"*.example.com" example.com and every subdomain
//	"example.com"   example.com only
//
// Patterns may carry a scheme, port or path; only the host part is compared.
func MatchDomain(host string, patterns []string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return false
	}
	for _, p := range patterns {
		p = normalizePattern(p)
		switch {
		case p == "":
			continue
		case p == "*":
			return true
		case strings.HasPrefix(p, "*."):
			base := p[2:]
			if host == base || strings.HasSuffix(host, "."+base) {
				return true
			}
		case host == p:
			return true
		}
	}
	return false
}

func normalizePattern(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if i := strings.Index(p, "://"); i >= 0 {
		p = p[i+3:]
	}
	if i := strings.IndexAny(p, "/?#"); i >= 0 {
		p = p[:i]
	}
	if i := strings.LastIndex(p, ":"); i >= 0 && !strings.Contains(p, "]") {
		p = p[:i]
	}
	return strings.TrimSuffix(p, ".")
}
