package manifest

import (
	goversion "github.com/hashicorp/go-version"
)

// Greater reports whether version a should be considered newer than b.
type Greater func(a, b string) bool

// OrdinalGreater compares version strings byte-wise. This is the
// default because manifests already in the field rely on it, including
// its quirk that "2.0" sorts above "10.0". Opt into SemanticGreater for
// multi-digit components.
func OrdinalGreater(a, b string) bool {
	return a > b
}

// SemanticGreater compares versions with semver semantics via
// hashicorp/go-version. A version that does not parse is never
// considered newer.
func SemanticGreater(a, b string) bool {
	va, err := goversion.NewVersion(a)
	if err != nil {
		return false
	}
	vb, err := goversion.NewVersion(b)
	if err != nil {
		return false
	}
	return va.GreaterThan(vb)
}
