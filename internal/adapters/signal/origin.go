package signal

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may open a panel socket.
// With no allowed origins only the relay's own host is accepted; "*" accepts any.
// Requests without an Origin header come from non-browser clients and pass.
type OriginPolicy struct {
	allowed []string
}

func NewOriginPolicy(allowed []string) OriginPolicy {
	p := OriginPolicy{}
	for _, a := range allowed {
		if a == "*" {
			p.allowed = append(p.allowed, a)
			continue
		}
		if norm, _, ok := normalizeOrigin(a); ok {
			p.allowed = append(p.allowed, norm)
		}
	}
	return p
}

// Check is suitable as websocket.Upgrader.CheckOrigin.
func (p OriginPolicy) Check(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Origin"))
	if header == "" {
		return true
	}
	norm, host, ok := normalizeOrigin(header)
	if !ok {
		return false
	}
	if len(p.allowed) > 0 {
		for _, a := range p.allowed {
			if a == "*" || a == norm {
				return true
			}
		}
		return false
	}
	// scheme is not compared, TLS may end at a proxy in front of the relay
	reqHost, ok := normalizeHost(r.Host, strings.SplitN(norm, "://", 2)[0])
	return ok && reqHost == host
}

// normalizeOrigin returns scheme://host[:port] and host[:port], dropping default ports.
func normalizeOrigin(raw string) (origin, host string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}
	host, ok = normalizeHost(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

func normalizeHost(raw, scheme string) (string, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", false
	}
	hostname, port, err := net.SplitHostPort(raw)
	if err != nil {
		// no port
		hostname, port = strings.Trim(raw, "[]"), ""
	}
	if hostname == "" {
		return "", false
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port == "" {
		if strings.Contains(hostname, ":") {
			return "[" + hostname + "]", true
		}
		return hostname, true
	}
	return net.JoinHostPort(hostname, port), true
}
