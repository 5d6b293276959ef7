// Package match implements group code normalization and fuzzy lookup.
package match

import (
	"regexp"
	"sort"
	"strings"

	"schedule_bot/internal/model"
)

// MinScore is the similarity threshold below which candidates are dropped.
const MinScore = 0.6

var codeShape = regexp.MustCompile(`^([A-Z]+)(\d+[A-Z]*)$`)

// Normalize canonicalizes free-text group input: "ise 74r" -> "ISE-74R".
// Upper-cases, strips spaces, converts underscores to hyphens, and if no
// hyphen is present inserts one at the letters/digits boundary. Inputs
// that do not match the expected shape are left without an inserted
// hyphen.
func Normalize(input string) string {
	text := strings.ToUpper(strings.TrimSpace(input))
	text = strings.ReplaceAll(text, " ", "")
	text = strings.ReplaceAll(text, "_", "-")

	if !strings.Contains(text, "-") {
		if m := codeShape.FindStringSubmatch(text); m != nil {
			text = m[1] + "-" + m[2]
		}
	}
	return text
}

// Similarity scores two strings in [0, 1] using Levenshtein distance:
// 1 - distance/max(len). Identical strings score 1.0; if either string
// is empty the score is 0.0.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0.0
	}

	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}

	maxLen := max(la, lb)
	return 1.0 - float64(prev[lb])/float64(maxLen)
}

// Candidate is one approximate match against the known group list.
type Candidate struct {
	FileName string
	Code     string
	Score    float64
}

// Result is the outcome of a group search.
type Result struct {
	// Exact is the matching file name when the normalized query equals
	// a known group code, empty otherwise.
	Exact string
	// Candidates holds approximate matches with Score >= MinScore,
	// sorted descending by score (ties keep list order). Populated only
	// when Exact is empty.
	Candidates []Candidate
}

// Search matches a raw query against the known schedule file names.
func Search(raw string, fileNames []string) Result {
	query := Normalize(raw)

	for _, name := range fileNames {
		if model.GroupFromFileName(name) == query {
			return Result{Exact: name}
		}
	}

	var candidates []Candidate
	for _, name := range fileNames {
		code := model.GroupFromFileName(name)
		score := Similarity(query, code)
		if score >= MinScore {
			candidates = append(candidates, Candidate{FileName: name, Code: code, Score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return Result{Candidates: candidates}
}

// GroupByDirection buckets file names by their direction prefix:
// "ISE-74R.pdf" goes under "ISE". Files without the direction-code
// shape are skipped. Direction keys are returned sorted separately by
// Directions.
func GroupByDirection(fileNames []string) map[string][]string {
	grouped := make(map[string][]string)
	for _, name := range fileNames {
		code := model.GroupFromFileName(name)
		dir, _, ok := strings.Cut(code, "-")
		if !ok || dir == "" {
			continue
		}
		grouped[dir] = append(grouped[dir], name)
	}
	return grouped
}

// Directions returns the sorted direction keys of a grouped listing.
func Directions(grouped map[string][]string) []string {
	dirs := make([]string, 0, len(grouped))
	for d := range grouped {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}
