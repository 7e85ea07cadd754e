package proxy

import (
	"net"
	"regexp"
	"strings"
	"sync"
)

func isPlainHostName(host string) bool {
	return !strings.Contains(host, ".")
}

func dnsDomainIs(host, domain string) bool {
	return strings.HasSuffix(strings.ToLower(host), strings.ToLower(domain))
}

func localHostOrDomainIs(host, hostdom string) bool {
	host, hostdom = strings.ToLower(host), strings.ToLower(hostdom)
	if host == hostdom {
		return true
	}
	return !strings.Contains(host, ".") && strings.HasPrefix(hostdom, host+".")
}

func dnsDomainLevels(host string) int {
	return strings.Count(host, ".")
}

// isInNet reports whether ip, masked with mask, equals pattern masked the same way. IPv4 only.
func isInNet(ip, pattern, mask string) bool {
	addr := net.ParseIP(ip).To4()
	pat := net.ParseIP(pattern).To4()
	m := net.ParseIP(mask).To4()
	if addr == nil || pat == nil || m == nil {
		return false
	}
	for i := range 4 {
		if addr[i]&m[i] != pat[i]&m[i] {
			return false
		}
	}
	return true
}

var (
	globCacheMu sync.Mutex
	globCache   = map[string]*regexp.Regexp{}
)

// shExpMatch matches str against a shell expression where * is any run of characters and ? one character.
func shExpMatch(str, expr string) bool {
	globCacheMu.Lock()
	re, ok := globCache[expr]
	if !ok {
		var b strings.Builder
		b.WriteString("^")
		for _, r := range expr {
			switch r {
			case '*':
				b.WriteString(".*")
			case '?':
				b.WriteString(".")
			default:
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		b.WriteString("$")
		re = regexp.MustCompile("(?s)" + b.String())
		if len(globCache) > 256 {
			clear(globCache)
		}
		globCache[expr] = re
	}
	globCacheMu.Unlock()
	return re.MatchString(str)
}
