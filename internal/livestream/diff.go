package livestream

import (
	"strings"

	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"
)

// graphemeClusters splits s into user-perceived characters after NFC
// normalization, so combining marks that differ only in representation
// (e.g. precomposed vs. base+combining) never split a cluster across a
// diff boundary.
func graphemeClusters(s string) []string {
	normalized := norm.NFC.String(s)
	var out []string
	g := uniseg.NewGraphemes(normalized)
	for g.Next() {
		out = append(out, g.Str())
	}
	return out
}

// diffFromEnd computes the longest common prefix of old and new in
// grapheme clusters, then returns how many trailing clusters of old must
// be deleted and what new text must be typed to turn old into new.
//
//   - identical strings: (0, "")
//   - pure append: (0, suffix)
//   - empty to X: (0, X); X to empty: (len(X), "")
func diffFromEnd(old, newText string) (deleteChars int, typed string) {
	oldClusters := graphemeClusters(old)
	newClusters := graphemeClusters(newText)

	p := 0
	for p < len(oldClusters) && p < len(newClusters) && oldClusters[p] == newClusters[p] {
		p++
	}

	deleteChars = len(oldClusters) - p
	typed = strings.Join(newClusters[p:], "")
	return deleteChars, typed
}
