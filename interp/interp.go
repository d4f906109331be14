// Package interp implements the $VAR / ${VAR} interpolation used by
// JailConfig Exec templates and Jailfile directives.
package interp

import (
	"fmt"
	"strings"
)

// String is a template that may reference environment variables via
// $VAR or ${VAR}. It is parsed once and applied many times.
type String struct {
	raw   string
	parts []part
}

type part struct {
	lit string // literal text, if ref == ""
	ref string // variable name, if non-empty
}

// Parse compiles raw into a String, identifying $VAR and ${VAR} references.
func Parse(raw string) *String {
	s := &String{raw: raw}
	i := 0
	var lit strings.Builder
	flushLit := func() {
		if lit.Len() > 0 {
			s.parts = append(s.parts, part{lit: lit.String()})
			lit.Reset()
		}
	}
	for i < len(raw) {
		c := raw[i]
		if c != '$' || i+1 >= len(raw) {
			lit.WriteByte(c)
			i++
			continue
		}
		// c == '$'
		if raw[i+1] == '{' {
			end := strings.IndexByte(raw[i+2:], '}')
			if end < 0 {
				lit.WriteByte(c)
				i++
				continue
			}
			name := raw[i+2 : i+2+end]
			flushLit()
			s.parts = append(s.parts, part{ref: name})
			i = i + 2 + end + 1
			continue
		}
		// bare $VAR: consume alnum/underscore run; must start with a letter
		// or underscore, else it's not a variable reference (e.g. "$5").
		if !isIdentStart(raw[i+1]) {
			lit.WriteByte(c)
			i++
			continue
		}
		j := i + 1
		for j < len(raw) && isIdentByte(raw[j]) {
			j++
		}
		flushLit()
		s.parts = append(s.parts, part{ref: raw[i+1 : j]})
		i = j
	}
	flushLit()
	return s
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Deps returns the set of variable names this template references.
func (s *String) Deps() map[string]struct{} {
	deps := make(map[string]struct{})
	for _, p := range s.parts {
		if p.ref != "" {
			deps[p.ref] = struct{}{}
		}
	}
	return deps
}

// Apply substitutes every reference using env, returning an error naming the
// first undefined variable encountered.
func (s *String) Apply(env map[string]string) (string, error) {
	var out strings.Builder
	for _, p := range s.parts {
		if p.ref == "" {
			out.WriteString(p.lit)
			continue
		}
		v, ok := env[p.ref]
		if !ok {
			return "", fmt.Errorf("interp: undefined variable %q in %q", p.ref, s.raw)
		}
		out.WriteString(v)
	}
	return out.String(), nil
}

// MustApply is Apply but substitutes the empty string for undefined
// variables instead of failing; used for best-effort diagnostics.
func (s *String) MustApply(env map[string]string) string {
	var out strings.Builder
	for _, p := range s.parts {
		if p.ref == "" {
			out.WriteString(p.lit)
			continue
		}
		out.WriteString(env[p.ref])
	}
	return out.String()
}

func (s *String) String() string { return s.raw }

// Apply is a convenience one-shot helper equivalent to Parse(raw).Apply(env).
func Apply(raw string, env map[string]string) (string, error) {
	return Parse(raw).Apply(env)
}
