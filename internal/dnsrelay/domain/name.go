package domain

import (
	"strings"

	"golang.org/x/net/idna"
)

// Name is an ordered sequence of DNS labels, root-last-omitted (e.g.
// "www.example.com" -> [www, example, com]). Equality is label-by-label;
// comparison is lexicographic on labels.
type Name []string

var idnaProfile = idna.New(idna.MapForLookup(), idna.Transitional(true))

// canonicalLabel lowercases and IDNA-normalizes a single label, falling
// back to a plain lowercase if the label isn't valid IDNA input (e.g. a
// wildcard "*" or an already-ASCII label with punctuation idna rejects).
func canonicalLabel(label string) string {
	lower := strings.ToLower(label)
	ascii, err := idnaProfile.ToASCII(lower)
	if err != nil {
		return lower
	}
	return ascii
}

// ParseName splits a dotted domain name string into a canonicalized Name.
// A trailing root dot is ignored; empty input yields an empty Name (the
// root).
func ParseName(s string) Name {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return Name{}
	}
	parts := strings.Split(s, ".")
	labels := make(Name, 0, len(parts))
	for _, p := range parts {
		labels = append(labels, canonicalLabel(p))
	}
	return labels
}

// String renders the Name back into dotted form.
func (n Name) String() string {
	return strings.Join(n, ".")
}

// Equal reports whether two Names have identical labels in the same order.
func (n Name) Equal(o Name) bool {
	if len(n) != len(o) {
		return false
	}
	for i := range n {
		if n[i] != o[i] {
			return false
		}
	}
	return true
}

// HasSuffix reports whether suffix's labels equal the trailing |suffix|
// labels of n, label-by-label. An empty suffix matches nothing: a server
// with zones = ∅ does not match any query.
func (n Name) HasSuffix(suffix Name) bool {
	if len(suffix) == 0 || len(suffix) > len(n) {
		return false
	}
	offset := len(n) - len(suffix)
	for i, label := range suffix {
		if n[offset+i] != label {
			return false
		}
	}
	return true
}

// Compare orders Names lexicographically on their labels.
func (n Name) Compare(o Name) int {
	for i := 0; i < len(n) && i < len(o); i++ {
		if n[i] != o[i] {
			return strings.Compare(n[i], o[i])
		}
	}
	return len(n) - len(o)
}
