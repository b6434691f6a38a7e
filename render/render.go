// Package render implements the template variable substitution step.
//
// Templates use square-bracket tokens: "Hi [firstName]" rendered with
// {"firstName": "Ada"} yields "Hi Ada". Tokens with no matching binding
// are left verbatim in the output. Rendering is deterministic, has no
// side effects, and never fails — a degraded-but-sent message is always
// preferred over a dropped one.
package render

import "strings"

// Render replaces every [token] occurrence in template with the
// corresponding binding value. Unknown tokens are left in place.
func Render(template string, bindings map[string]string) string {
	if !strings.ContainsRune(template, '[') {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	s := template
	for {
		start := strings.IndexByte(s, '[')
		if start < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.IndexByte(s[start:], ']')
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}

		key := s[start+1 : start+end]

		// "[a[b]" — restart the scan at the innermost opening bracket so
		// a valid token following a stray bracket still resolves.
		if inner := strings.LastIndexByte(key, '['); inner >= 0 {
			b.WriteString(s[:start+1+inner])
			s = s[start+1+inner:]
			continue
		}

		b.WriteString(s[:start])
		if v, ok := bindings[key]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[start : start+end+1])
		}
		s = s[start+end+1:]
	}
}

// Merge combines binding maps into a new map. Later maps take precedence
// over earlier ones; inputs are never mutated.
func Merge(maps ...map[string]string) map[string]string {
	size := 0
	for _, m := range maps {
		size += len(m)
	}

	merged := make(map[string]string, size)
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}
