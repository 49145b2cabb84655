package capture

import (
	"regexp"
	"strings"
)

var displayFilterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`==|!=|\b(eq|ne|gt|lt|ge|le|contains|matches)\b`),
	regexp.MustCompile(`\b(eth|frame|ip|ipv6|tcp|udp|sctp|icmp|arp|dns|http|tls|ssl|sip|vlan)\.[a-z_][a-z0-9_.]*`),
}

// LooksLikeDisplayFilter guesses whether expr was written in display-filter
// syntax. It only decorates the error for a rejected capture filter.
func LooksLikeDisplayFilter(expr string) bool {
	e := strings.ToLower(strings.TrimSpace(expr))
	if e == "" {
		return false
	}
	for _, re := range displayFilterPatterns {
		if re.MatchString(e) {
			return true
		}
	}
	return false
}
