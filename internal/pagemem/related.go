package pagemem

import (
	"sort"
	"strings"
)

// stopTokens are path tokens too generic to indicate relatedness.
var stopTokens = map[string]bool{"api": true, "data": true, "json": true}

// RelatedPage pairs a path with its memory record in a relatedness result.
type RelatedPage struct {
	Path   string
	Record Record
}

// Related ranks the pages most related to path against a point-in-time
// snapshot.
//
// Scoring: shared path tokens (split on "/" and "-", lower-cased, stop
// tokens dropped on the query side only) plus half the number of backlinks
// pointing at the query path. The backlink term is keyed by the query path
// and therefore identical for every candidate; that shape is kept verbatim
// from the original scoring. Ties break by ascending lexical path order.
func Related(snapshot map[string]Record, path string, limit int) []RelatedPage {
	if len(snapshot) == 0 || limit <= 0 {
		return nil
	}

	tokens := make(map[string]bool)
	for _, t := range tokenize(path) {
		if !stopTokens[t] {
			tokens[t] = true
		}
	}

	backlinks := make(map[string]int)
	for _, rec := range snapshot {
		for _, link := range rec.Links {
			backlinks[link]++
		}
	}
	backlinkBoost := 0.5 * float64(backlinks[path])

	type scored struct {
		path  string
		score float64
	}
	var candidates []scored

	for p := range snapshot {
		if p == "/" || p == path {
			continue
		}
		tokenScore := 0
		for _, t := range tokenize(p) {
			if tokens[t] {
				tokenScore++
			}
		}
		score := float64(tokenScore) + backlinkBoost
		if score > 0 {
			candidates = append(candidates, scored{path: p, score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].path < candidates[j].path
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]RelatedPage, len(candidates))
	for i, c := range candidates {
		result[i] = RelatedPage{Path: c.path, Record: snapshot[c.path]}
	}
	return result
}

// tokenize splits a path on "/" and "-", lower-cased, dropping empties.
// Duplicate tokens collapse: token overlap is set intersection.
func tokenize(path string) []string {
	parts := strings.FieldsFunc(strings.ToLower(path), func(r rune) bool {
		return r == '/' || r == '-'
	})
	seen := make(map[string]bool, len(parts))
	var out []string
	for _, p := range parts {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
