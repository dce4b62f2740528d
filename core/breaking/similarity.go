package breaking

import (
	"sort"

	"github.com/emenda-labs/agentver/core/symbols"
)

const (
	// MinNameSimilarity is the minimum normalized Levenshtein similarity for
	// suggesting a replacement for a removed function.
	MinNameSimilarity = 0.7

	// MinParamOverlap is the minimum Jaccard overlap on parameter shapes for
	// suggesting a replacement.
	MinParamOverlap = 0.8

	// ShortNameLength is the threshold below which stricter name similarity is required.
	ShortNameLength = 4

	// ShortNameMinSimilarity is the stricter threshold for names shorter than ShortNameLength.
	ShortNameMinSimilarity = 0.85
)

// scoredPair holds a candidate replacement with its composite score.
type scoredPair struct {
	oldName string
	newName string
	score   float64
}

// matchReplacements pairs removed functions with added ones that look like
// renames. Each added function is used at most once; the best scores win.
func matchReplacements(removed, added []symbols.Function) map[string]symbols.Function {
	var candidates []scoredPair
	addedByName := make(map[string]symbols.Function, len(added))
	for _, newFn := range added {
		addedByName[newFn.Name] = newFn
	}

	for _, oldFn := range removed {
		for _, newFn := range added {
			nameSim := nameSimilarity(oldFn.Name, newFn.Name)
			overlap := paramOverlap(paramShape(oldFn), paramShape(newFn))

			nameThreshold := MinNameSimilarity
			if max(len(oldFn.Name), len(newFn.Name)) < ShortNameLength {
				nameThreshold = ShortNameMinSimilarity
			}

			if nameSim >= nameThreshold && overlap >= MinParamOverlap {
				candidates = append(candidates, scoredPair{
					oldName: oldFn.Name,
					newName: newFn.Name,
					score:   nameSim * overlap,
				})
			}
		}
	}

	// Sort by descending score, tie-break by names.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].oldName != candidates[j].oldName {
			return candidates[i].oldName < candidates[j].oldName
		}
		return candidates[i].newName < candidates[j].newName
	})

	matched := make(map[string]symbols.Function)
	used := make(map[string]bool)
	for _, pair := range candidates {
		if _, ok := matched[pair.oldName]; ok || used[pair.newName] {
			continue
		}
		matched[pair.oldName] = addedByName[pair.newName]
		used[pair.newName] = true
	}
	return matched
}

// paramShape lists the comparable parts of a function: each parameter's
// declared type, or its name when untyped, followed by the return type.
func paramShape(fn symbols.Function) []string {
	shape := make([]string, 0, len(fn.Params)+1)
	for _, p := range fn.Params {
		if p.Type != "" {
			shape = append(shape, p.Type)
		} else {
			shape = append(shape, p.Name)
		}
	}
	if fn.Returns != "" {
		shape = append(shape, "->"+fn.Returns)
	}
	return shape
}

// levenshteinDistance computes the edit distance between two strings.
func levenshteinDistance(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	// Use two rows instead of full matrix.
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)

	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[lb]
}

// nameSimilarity returns the normalized Levenshtein similarity between two strings.
// Returns a value in [0.0, 1.0] where 1.0 means identical.
func nameSimilarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	maxLen := max(len(a), len(b))
	return 1.0 - float64(levenshteinDistance(a, b))/float64(maxLen)
}

// paramOverlap computes the Jaccard similarity of two multisets.
// Two empty shapes overlap fully.
func paramOverlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	aSet := make(map[string]int)
	for _, t := range a {
		aSet[t]++
	}
	bSet := make(map[string]int)
	for _, t := range b {
		bSet[t]++
	}

	// Jaccard on multisets: intersection = sum of min counts, union = sum of max counts.
	var intersection, union int
	for k, ac := range aSet {
		bc := bSet[k]
		intersection += min(ac, bc)
		union += max(ac, bc)
	}
	for k, bc := range bSet {
		if _, ok := aSet[k]; !ok {
			union += bc
		}
	}

	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}
