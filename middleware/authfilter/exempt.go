package authfilter

import "strings"

type exemptRule struct {
	method string
	prefix string
}

type exemptions []exemptRule

func parseExemptions(entries []string) exemptions {
	out := make(exemptions, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		rule := exemptRule{prefix: entry}
		if method, path, ok := strings.Cut(entry, " "); ok {
			rule.method = strings.ToUpper(method)
			rule.prefix = strings.TrimSpace(path)
		}
		out = append(out, rule)
	}
	return out
}

func (e exemptions) match(method, path string) bool {
	for _, rule := range e {
		if rule.method != "" && rule.method != method {
			continue
		}
		if matchPrefix(rule.prefix, path) {
			return true
		}
	}
	return false
}

// matchPrefix matches whole path segments: "/api/files/all" covers
// "/api/files/all/2" but not "/api/files/allowed".
func matchPrefix(prefix, path string) bool {
	if prefix == "/" {
		return path == "/"
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}
