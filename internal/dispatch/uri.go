package dispatch

import (
	"fmt"
	"net/url"
	"strings"
)

// uriTemplate matches URIs against a template with {name} placeholders,
// one per path segment. Placeholder values are percent-decoded. When the
// template has a single placeholder in its last segment, that placeholder
// also absorbs any further segments, so unencoded URLs still resolve.
type uriTemplate struct {
	raw      string
	segments []string
	vars     []string
	greedy   bool
}

func parseURITemplate(raw string) (*uriTemplate, error) {
	t := &uriTemplate{raw: raw, segments: strings.Split(raw, "/")}
	seen := map[string]bool{}
	for _, seg := range t.segments {
		name, ok := placeholder(seg)
		if !ok {
			if strings.ContainsAny(seg, "{}") {
				return nil, fmt.Errorf("uri template %q: placeholders must fill a whole segment", raw)
			}
			continue
		}
		if name == "" || seen[name] {
			return nil, fmt.Errorf("uri template %q: empty or duplicate placeholder %q", raw, name)
		}
		seen[name] = true
		t.vars = append(t.vars, name)
	}
	if len(t.vars) == 0 {
		return nil, fmt.Errorf("uri template %q has no placeholders", raw)
	}
	_, lastIsVar := placeholder(t.segments[len(t.segments)-1])
	t.greedy = len(t.vars) == 1 && lastIsVar
	return t, nil
}

func placeholder(seg string) (string, bool) {
	if len(seg) >= 2 && seg[0] == '{' && seg[len(seg)-1] == '}' {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}

// match returns the placeholder values for uri, or false.
func (t *uriTemplate) match(uri string) (map[string]string, bool) {
	parts := strings.Split(uri, "/")
	if len(parts) < len(t.segments) || (!t.greedy && len(parts) != len(t.segments)) {
		return nil, false
	}
	vars := make(map[string]string, len(t.vars))
	for i, seg := range t.segments {
		name, isVar := placeholder(seg)
		if !isVar {
			if parts[i] != seg {
				return nil, false
			}
			continue
		}
		raw := parts[i]
		if t.greedy && i == len(t.segments)-1 {
			raw = strings.Join(parts[i:], "/")
		}
		val, err := url.PathUnescape(raw)
		if err != nil {
			return nil, false
		}
		vars[name] = val
	}
	return vars, true
}
