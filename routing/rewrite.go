package routing

import (
	"fmt"
	"path"
	"strings"
)

// Rule rewrites the leading part of a request path. When From is empty, the
// rule leaves every path unchanged.
type Rule struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// StripPrefix returns a rule removing prefix from the request path.
func StripPrefix(prefix string) Rule {
	return Rule{From: normalizePrefix(prefix)}
}

// ReplacePrefix returns a rule replacing from with to in the request path.
func ReplacePrefix(from, to string) Rule {
	return Rule{From: normalizePrefix(from), To: strings.TrimSuffix(to, "/")}
}

// ParseRule parses the "from:to" representation of a rule. An empty "to"
// part strips the prefix.
func ParseRule(s string) (Rule, error) {
	if s == "" {
		return Rule{}, nil
	}

	from, to, _ := strings.Cut(s, ":")
	if !strings.HasPrefix(from, "/") || (to != "" && !strings.HasPrefix(to, "/")) {
		return Rule{}, fmt.Errorf("%w: %q", errInvalidRewrite, s)
	}

	return ReplacePrefix(from, to), nil
}

// String returns the "from:to" representation of the rule.
func (r Rule) String() string {
	if r.From == "" {
		return ""
	}

	return r.From + ":" + r.To
}

// Apply returns the rewritten path. Paths not starting with the From
// prefix at a segment boundary are returned unchanged.
func (r Rule) Apply(path string) string {
	if r.From == "" || !hasPathPrefix(path, r.From) {
		return path
	}

	p := r.To + strings.TrimPrefix(path, r.From)
	if p == "" {
		return "/"
	}

	if p[0] != '/' {
		p = "/" + p
	}

	return p
}

// CleanPath returns the canonical form of a request path, with the dot
// segments and repeated slashes resolved. A trailing slash is kept.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}

	if p[0] != '/' {
		p = "/" + p
	}

	cp := path.Clean(p)
	if p[len(p)-1] == '/' && cp != "/" {
		cp += "/"
	}

	return cp
}

func normalizePrefix(p string) string {
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}

	return p
}

// hasPathPrefix reports whether prefix matches path on a segment boundary.
func hasPathPrefix(path, prefix string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}

	if !strings.HasPrefix(path, prefix) {
		return false
	}

	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
