package ws

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy: пустой список или "*" пропускают любой Origin.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{allowed: make(map[string]struct{})}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			p.allowAll = true
			continue
		}
		norm, ok := normalizeOrigin(o)
		if !ok {
			slog.Warn("ignoring invalid origin in configuration", slog.String("origin", o))
			continue
		}
		p.allowed[norm] = struct{}{}
	}
	if len(p.allowed) == 0 {
		p.allowAll = true
	}
	return p
}

func (p originPolicy) check(r *http.Request) bool {
	if p.allowAll {
		return true
	}
	origin := r.Header.Get("Origin")
	norm, ok := normalizeOrigin(origin)
	if ok {
		if _, exists := p.allowed[norm]; exists {
			return true
		}
	}
	slog.Warn("ws origin blocked", slog.String("origin", origin))
	return false
}

func normalizeOrigin(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}
