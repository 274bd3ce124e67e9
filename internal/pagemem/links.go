package pagemem

import "strings"

// ExtractLinks scans HTML for internal links of the form href="/...".
// Targets containing a fragment or query are skipped, and duplicates are
// dropped preserving first-seen order. This is deliberately not an HTML
// parser; it only needs to catch the nav and related-page links the
// generator is instructed to produce.
func ExtractLinks(html string) []string {
	const marker = `href="/`

	seen := make(map[string]bool)
	var links []string

	for i := 0; ; {
		j := strings.Index(html[i:], marker)
		if j < 0 {
			break
		}
		start := i + j + len(marker) - 1 // position of the leading "/"
		i = start + 1

		end := strings.Index(html[start:], `"`)
		if end < 0 {
			break
		}
		target := html[start : start+end]
		i = start + end + 1

		if strings.ContainsAny(target, "#?") {
			continue
		}
		if !seen[target] {
			seen[target] = true
			links = append(links, target)
		}
	}
	return links
}
