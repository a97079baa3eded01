// Package utils holds the console path matcher shared by the route table and
// the gateway.
package utils

import "strings"

// MatchPath reports whether a request path matches a route pattern.
// Patterns may include:
//   - ':name' segments matching exactly one non-empty path segment.
//   - '*' matching one segment, or everything below when it is the last
//     segment ("/files/*").
//
// A single trailing slash on the path is ignored, so "/leads/" matches "/leads".
func MatchPath(path, pattern string) bool {
	_, ok := match(path, pattern)
	return ok
}

// Params extracts ':name' segments from path. ok is false when the path does
// not match.
func Params(path, pattern string) (map[string]string, bool) {
	return match(path, pattern)
}

func match(path, pattern string) (map[string]string, bool) {
	path = normalize(path)
	pattern = normalize(pattern)
	if pattern == "/*" || pattern == "*" {
		return map[string]string{}, true
	}

	vals := split(path)
	pats := split(pattern)
	params := map[string]string{}
	for i, p := range pats {
		if p == "*" && i == len(pats)-1 {
			return params, len(vals) >= len(pats)
		}
		if i >= len(vals) {
			return nil, false
		}
		v := vals[i]
		switch {
		case p == "*":
			if v == "" {
				return nil, false
			}
		case strings.HasPrefix(p, ":"):
			if v == "" {
				return nil, false
			}
			params[p[1:]] = v
		default:
			if p != v {
				return nil, false
			}
		}
	}
	if len(vals) != len(pats) {
		return nil, false
	}
	return params, true
}

// Specificity ranks patterns so literal segments beat parameters and
// wildcards when several patterns match one path.
func Specificity(pattern string) int {
	score := 0
	for _, seg := range split(normalize(pattern)) {
		switch {
		case seg == "*":
		case strings.HasPrefix(seg, ":"):
			score++
		default:
			score += 2
		}
	}
	return score
}

func normalize(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func split(p string) []string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
