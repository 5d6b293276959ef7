package match

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase with digits", "ise74r", "ISE-74R"},
		{"already canonical", "ISE-74R", "ISE-74R"},
		{"underscore separator", "ise_74r", "ISE-74R"},
		{"internal space", "ise 74r", "ISE-74R"},
		{"surrounding whitespace", "  bma71u\t", "BMA-71U"},
		{"digits only, no boundary", "1234", "1234"},
		{"letters only, no boundary", "ISE", "ISE"},
		{"digits before letters", "74ISE", "74ISE"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Normalize(tt.input)); diff != "" {
				t.Errorf("Normalize(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"ise74r", "ISE-74R", "acc_71u", "x", "", "74ise", "a b c 1"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("Normalize not idempotent for %q (-once +twice):\n%s", in, diff)
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "ISE-74R", "ISE-74R", 1.0},
		{"empty left", "", "x", 0.0},
		{"empty right", "x", "", 0.0},
		{"both empty", "", "", 1.0},
		{"one substitution", "ISE-74R", "ISE-74X", 1.0 - 1.0/7.0},
		{"completely different", "abc", "xyz", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("Similarity(%q, %q) mismatch (-want +got):\n%s", tt.a, tt.b, diff)
			}
		})
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	pairs := [][2]string{
		{"ISE-74R", "ISE-75R"},
		{"ACC-71U", "BMA-71U"},
		{"short", "a considerably longer string"},
	}
	for _, p := range pairs {
		ab := Similarity(p[0], p[1])
		ba := Similarity(p[1], p[0])
		if diff := cmp.Diff(ab, ba, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
			t.Errorf("Similarity(%q, %q) not symmetric (-ab +ba):\n%s", p[0], p[1], diff)
		}
	}
}

func TestSearchExact(t *testing.T) {
	names := []string{"ISE-74R.pdf", "ISE-75R.pdf"}

	got := Search("ise74r", names)
	want := Result{Exact: "ISE-74R.pdf"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("exact search mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchFuzzy(t *testing.T) {
	names := []string{"ISE-74R.pdf", "ISE-75R.pdf"}

	got := Search("ise74x", names)
	if got.Exact != "" {
		t.Fatalf("expected no exact match, got %q", got.Exact)
	}
	if len(got.Candidates) == 0 {
		t.Fatal("expected at least one candidate")
	}

	found := false
	for _, c := range got.Candidates {
		if c.FileName == "ISE-74R.pdf" {
			found = true
			if c.Score < MinScore {
				t.Errorf("candidate score %.2f below threshold", c.Score)
			}
		}
	}
	if !found {
		t.Errorf("ISE-74R.pdf missing from candidates: %v", got.Candidates)
	}
}

func TestSearchSortsDescendingStable(t *testing.T) {
	names := []string{"ISE-74U.pdf", "ISE-74X.pdf", "BMA-11A.pdf"}

	got := Search("ise74r", names)
	if got.Exact != "" {
		t.Fatalf("expected no exact match, got %q", got.Exact)
	}

	// Both ISE entries score equally against ISE-74R; stable sort keeps
	// list order, and BMA is below the threshold.
	want := []string{"ISE-74U.pdf", "ISE-74X.pdf"}
	var files []string
	for _, c := range got.Candidates {
		files = append(files, c.FileName)
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("candidate order mismatch (-want +got):\n%s", diff)
	}
	for i := 1; i < len(got.Candidates); i++ {
		if got.Candidates[i].Score > got.Candidates[i-1].Score {
			t.Errorf("candidates not sorted descending at %d", i)
		}
	}
}

func TestSearchEmptyList(t *testing.T) {
	got := Search("ise74r", nil)
	if got.Exact != "" || len(got.Candidates) != 0 {
		t.Errorf("expected empty result, got %+v", got)
	}
}

func TestGroupByDirection(t *testing.T) {
	names := []string{"ISE-74R.pdf", "ISE-75R.pdf", "ACC-71U.pdf", "weird.pdf"}

	grouped := GroupByDirection(names)
	want := map[string][]string{
		"ISE": {"ISE-74R.pdf", "ISE-75R.pdf"},
		"ACC": {"ACC-71U.pdf"},
	}
	if diff := cmp.Diff(want, grouped); diff != "" {
		t.Errorf("grouping mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"ACC", "ISE"}, Directions(grouped)); diff != "" {
		t.Errorf("directions mismatch (-want +got):\n%s", diff)
	}
}

type fakeLister struct {
	names []string
	err   error
	calls int
}

func (f *fakeLister) ListGroups(_ context.Context, _, _ string) ([]string, error) {
	f.calls++
	return f.names, f.err
}

func TestSearcherCachesListings(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{names: []string{"ISE-74R.pdf"}}
	s := NewSearcher(lister)

	for n := 0; n < 3; n++ {
		res, err := s.Search(ctx, "ise74r", "daytime", "4")
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if res.Exact != "ISE-74R.pdf" {
			t.Fatalf("unexpected result: %+v", res)
		}
	}

	if diff := cmp.Diff(1, lister.calls); diff != "" {
		t.Errorf("lister call count mismatch (-want +got):\n%s", diff)
	}
}

func TestSearcherClearCacheForcesRefetch(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{names: []string{"ISE-74R.pdf"}}
	s := NewSearcher(lister)

	if _, err := s.Groups(ctx, "daytime", "4"); err != nil {
		t.Fatalf("groups: %v", err)
	}
	if diff := cmp.Diff(1, s.ClearCache()); diff != "" {
		t.Errorf("clear count mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.Groups(ctx, "daytime", "4"); err != nil {
		t.Fatalf("groups: %v", err)
	}
	if diff := cmp.Diff(2, lister.calls); diff != "" {
		t.Errorf("lister call count mismatch (-want +got):\n%s", diff)
	}
}

func TestSearcherListerError(t *testing.T) {
	lister := &fakeLister{err: errors.New("drive unavailable")}
	s := NewSearcher(lister)

	if _, err := s.Search(context.Background(), "ise74r", "daytime", "4"); err == nil {
		t.Fatal("expected error from failing lister")
	}
}
