// Package imgref parses and formats OCI-style image references per the PEG
// grammar in spec.md §6:
//
//	reference = (hostname "/")? name ( ":" tag | "@" digest )
package imgref

import (
	"fmt"
	"regexp"
	"strings"
)

// Algorithm is a supported digest algorithm.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

// Digest is a content digest of the form "<algo>:<hex>".
type Digest struct {
	Algorithm Algorithm
	Hex       string
}

func (d Digest) String() string { return string(d.Algorithm) + ":" + d.Hex }

var digestLengths = map[Algorithm]int{
	SHA256: 64,
	SHA512: 128,
}

// ParseDigest validates and parses a "sha256:<hex>" or "sha512:<hex>" string.
func ParseDigest(s string) (Digest, error) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return Digest{}, fmt.Errorf("imgref: malformed digest %q: missing algorithm separator", s)
	}
	algo := Algorithm(s[:idx])
	hex := s[idx+1:]
	wantLen, ok := digestLengths[algo]
	if !ok {
		return Digest{}, fmt.Errorf("imgref: unsupported digest algorithm %q", algo)
	}
	if len(hex) != wantLen || !isLowerHex(hex) {
		return Digest{}, fmt.Errorf("imgref: digest %q has invalid length or casing for %s", s, algo)
	}
	return Digest{Algorithm: algo, Hex: hex}, nil
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// Tag identifies an image by mutable name.
type Tag string

// Reference is a fully parsed image reference.
type Reference struct {
	Hostname string // may be empty (no registry host given)
	Name     string
	Tag      Tag     // set iff Digest is zero
	Digest   *Digest // set iff Tag is empty
}

const (
	component = `[A-Za-z0-9]+(?:(?:_|\.|__|-+)[A-Za-z0-9]+)*`
	hostcomp  = `[A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?`
)

var (
	nameRE     = regexp.MustCompile(`^` + component + `(?:/` + component + `)*$`)
	hostnameRE = regexp.MustCompile(`^(?:localhost|` + hostcomp + `(?:\.` + hostcomp + `)+)(?::[0-9]{1,5})?$`)
	tagRE      = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]{0,127}$`)
)

// Parse parses s per the grammar in spec.md §6. On success,
// Format(Parse(s)) == s (round-trip invariant).
func Parse(s string) (Reference, error) {
	rest := s
	var ref Reference

	// Split off an optional "hostname/" prefix. The grammar is ambiguous
	// between a hostname and the first path component of name, so we only
	// treat a leading segment as a hostname if it matches hostnameRE AND
	// looksLikeHost accepts it.
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		candidate := rest[:idx]
		if hostnameRE.MatchString(candidate) && looksLikeHost(candidate) {
			ref.Hostname = candidate
			rest = rest[idx+1:]
		}
	}

	// Split off "@digest" at the first '@', otherwise ":tag" at the last
	// ':'. Name components may not contain ':' or '@'.
	if idx := strings.IndexByte(rest, '@'); idx >= 0 {
		name := rest[:idx]
		digestStr := rest[idx+1:]
		if !nameRE.MatchString(name) {
			return Reference{}, fmt.Errorf("imgref: invalid name %q", name)
		}
		d, err := ParseDigest(digestStr)
		if err != nil {
			return Reference{}, err
		}
		ref.Name = name
		ref.Digest = &d
		return ref, nil
	}
	if idx := strings.LastIndexByte(rest, ':'); idx >= 0 {
		name := rest[:idx]
		tag := rest[idx+1:]
		if nameRE.MatchString(name) && tagRE.MatchString(tag) {
			ref.Name = name
			ref.Tag = Tag(tag)
			return ref, nil
		}
	}

	return Reference{}, fmt.Errorf("imgref: reference %q is missing a tag or digest", s)
}

// looksLikeHost disambiguates a "hostname/name" split from a bare
// multi-component name by requiring either a dot, a colon (port), or the
// literal "localhost" — a single bare word like "node" is a name component,
// not a host.
func looksLikeHost(s string) bool {
	if s == "localhost" {
		return true
	}
	return strings.ContainsAny(s, ".:")
}

// Format renders ref back to its canonical string form.
func Format(ref Reference) string {
	var b strings.Builder
	if ref.Hostname != "" {
		b.WriteString(ref.Hostname)
		b.WriteByte('/')
	}
	b.WriteString(ref.Name)
	if ref.Digest != nil {
		b.WriteByte('@')
		b.WriteString(ref.Digest.String())
	} else if ref.Tag != "" {
		b.WriteByte(':')
		b.WriteString(string(ref.Tag))
	}
	return b.String()
}

func (r Reference) String() string { return Format(r) }
