package match

import (
	"context"
	"fmt"
	"time"

	"schedule_bot/internal/cache"
)

// GroupLister fetches the schedule file names for an education/course pair.
type GroupLister interface {
	ListGroups(ctx context.Context, educationType, course string) ([]string, error)
}

// GroupCacheTTL is how long a fetched group list stays usable.
const GroupCacheTTL = 30 * time.Minute

// Searcher resolves free-text group queries against Drive-backed group
// lists, caching each (education, course) listing.
type Searcher struct {
	lister GroupLister
	groups *cache.TTL[[]string]
}

// NewSearcher creates a Searcher around the given lister.
func NewSearcher(lister GroupLister) *Searcher {
	return &Searcher{
		lister: lister,
		groups: cache.New[[]string](GroupCacheTTL),
	}
}

// Groups returns the cached group list for the pair, refreshing it from
// the lister when absent or expired.
func (s *Searcher) Groups(ctx context.Context, educationType, course string) ([]string, error) {
	key := educationType + "_" + course
	if names, ok := s.groups.Get(key); ok {
		return names, nil
	}

	names, err := s.lister.ListGroups(ctx, educationType, course)
	if err != nil {
		return nil, fmt.Errorf("list groups %s: %w", key, err)
	}
	s.groups.Put(key, names)
	return names, nil
}

// Search looks up a raw group query for the pair.
func (s *Searcher) Search(ctx context.Context, raw, educationType, course string) (Result, error) {
	names, err := s.Groups(ctx, educationType, course)
	if err != nil {
		return Result{}, err
	}
	return Search(raw, names), nil
}

// ClearCache drops all cached group lists and reports how many there were.
func (s *Searcher) ClearCache() int {
	return s.groups.Clear()
}
