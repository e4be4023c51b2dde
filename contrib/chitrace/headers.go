package chitrace

import (
	"net/http"
	"strings"

	"github.com/zoobzio/apmz"
)

// storeHeaders tags span with the whitelisted headers found in h.
func storeHeaders(span *apmz.ActiveSpan, prefix string, h http.Header, whitelist []string) {
	if len(whitelist) == 0 {
		return
	}

	tags := make(map[apmz.Tag]string, len(whitelist))
	for _, name := range whitelist {
		values := h.Values(name)
		if len(values) == 0 {
			continue
		}
		tags[prefix+"."+normalizeHeader(name)] = strings.Join(values, ",")
	}
	if len(tags) > 0 {
		span.SetTags(tags)
	}
}

// normalizeHeader lowercases name and replaces characters outside [a-z0-9-] with '_'.
func normalizeHeader(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(name))
}
