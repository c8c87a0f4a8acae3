package permission

import (
	"fmt"
	"strings"
)

// Wildcard is the path segment meaning "every field for this action".
const Wildcard = "*"

// Category is a closed enum of permission categories that are accepted in
// role definitions without a literal catalog entry. Category permissions are
// synthesized from discovered sensitivity flags; the catalog stores only base
// and wildcard rows. This acceptance is a compatibility accommodation for
// DB-backed catalogs, not a core invariant.
type Category string

const (
	CategoryBase      Category = "base"
	CategoryPII       Category = "pii"
	CategoryPHI       Category = "phi"
	CategoryFinancial Category = "financial"
	CategorySensitive Category = "sensitive"
	CategoryWildcard  Category = "wildcard"
)

// ParseCategory returns the category for s, if s names one.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryBase, CategoryPII, CategoryPHI, CategoryFinancial, CategorySensitive, CategoryWildcard:
		return Category(s), true
	}
	return "", false
}

// Key is a parsed permission key. The wire format is dot-delimited:
// app.resource.action.fieldPath, where fieldPath may itself contain dots for
// nested fields and a trailing "[]" for array elements. "*" as the path
// grants every field for the action.
type Key struct {
	App      string
	Resource string
	Action   string
	Path     string
}

// Parse canonicalizes and parses a permission key string. Frontend-style
// keys using ":" as the separator are normalized to ".". A bare "*" parses
// to a key matching everything.
func Parse(s string) (Key, error) {
	s = Normalize(s)
	if s == "" {
		return Key{}, fmt.Errorf("empty permission key")
	}
	if s == Wildcard {
		return Key{App: Wildcard}, nil
	}

	parts := strings.SplitN(s, ".", 4)
	k := Key{App: parts[0]}
	if k.App == "" {
		return Key{}, fmt.Errorf("permission key %q: empty app segment", s)
	}
	if len(parts) > 1 {
		k.Resource = parts[1]
	}
	if len(parts) > 2 {
		k.Action = parts[2]
	}
	if len(parts) > 3 {
		k.Path = parts[3]
	}
	return k, nil
}

// Normalize converts frontend-style ":"-separated keys to the canonical
// "."-separated form and trims surrounding whitespace.
func Normalize(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ":", ".")
}

// String renders the key in canonical wire format.
func (k Key) String() string {
	segs := make([]string, 0, 4)
	for _, s := range []string{k.App, k.Resource, k.Action, k.Path} {
		if s == "" {
			break
		}
		segs = append(segs, s)
	}
	return strings.Join(segs, ".")
}

// IsWildcard reports whether the key's final segment is "*".
func (k Key) IsWildcard() bool {
	return k.App == Wildcard || k.Resource == Wildcard || k.Action == Wildcard ||
		k.Path == Wildcard || strings.HasSuffix(k.Path, "."+Wildcard)
}

// CategorySuffix returns the category named by the key's third segment, if
// the key has at least three segments and the third is a recognized
// category name.
func (k Key) CategorySuffix() (Category, bool) {
	if k.Action == "" {
		return "", false
	}
	return ParseCategory(k.Action)
}

// WildcardAncestors returns the wildcard keys covering s, ordered most to
// least specific. For "a.b.c" it returns ["a.b.*", "a.*", "*"].
func WildcardAncestors(s string) []string {
	s = Normalize(s)
	var out []string
	for {
		idx := strings.LastIndex(s, ".")
		if idx < 0 {
			out = append(out, Wildcard)
			return out
		}
		s = s[:idx]
		out = append(out, s+"."+Wildcard)
	}
}

// Covers reports whether the granted key string covers the requested key
// string: either an exact match, or granted is a wildcard ancestor of
// requested.
func Covers(granted, requested string) bool {
	granted = Normalize(granted)
	requested = Normalize(requested)
	if granted == requested {
		return true
	}
	if granted == Wildcard {
		return true
	}
	if prefix, ok := strings.CutSuffix(granted, "."+Wildcard); ok {
		return requested == prefix || strings.HasPrefix(requested, prefix+".")
	}
	return false
}

// MatchesAny reports whether key is covered by the set: present exactly, or
// covered by any wildcard ancestor present in the set. Ancestors are checked
// from most to least specific.
func MatchesAny(set map[string]struct{}, key string) bool {
	key = Normalize(key)
	if _, ok := set[key]; ok {
		return true
	}
	for _, anc := range WildcardAncestors(key) {
		if _, ok := set[anc]; ok {
			return true
		}
	}
	return false
}
