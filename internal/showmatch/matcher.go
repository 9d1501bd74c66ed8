package showmatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/flexcoop/archivist/internal/errs"
)

// AutoLinkThreshold and SuggestionThreshold are spec.md §4.7's fixed score
// cutoffs.
const (
	AutoLinkThreshold   = 0.70
	SuggestionThreshold = 0.10
	cacheTTL            = 5 * time.Minute
)

// ShowLister fetches the full current show list from upstream (C9).
type ShowLister interface {
	ListShows(ctx context.Context) ([]Show, error)
}

// Match is one scored candidate.
type Match struct {
	Show  Show
	Score float64
}

// Matcher ranks upstream shows against recordings, grounded on xg2g's
// epg cache refresh pattern: a singleflight-guarded list with a fixed TTL
// so concurrent match requests never trigger redundant upstream fetches.
type Matcher struct {
	lister ShowLister
	group  singleflight.Group

	mu        sync.Mutex
	cached    []Show
	cachedAt  time.Time
}

// New constructs a Matcher backed by lister.
func New(lister ShowLister) *Matcher {
	return &Matcher{lister: lister}
}

func (m *Matcher) shows(ctx context.Context) ([]Show, error) {
	m.mu.Lock()
	if time.Since(m.cachedAt) < cacheTTL && m.cached != nil {
		shows := m.cached
		m.mu.Unlock()
		return shows, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do("shows", func() (interface{}, error) {
		shows, err := m.lister.ListShows(ctx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.cached = shows
		m.cachedAt = time.Now()
		m.mu.Unlock()
		return shows, nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindUpstreamUnavailable, "fetch show list", err)
	}
	return v.([]Show), nil
}

// rank scores every candidate show and returns them sorted best-first, with
// ties broken by most recent show date then upstream id (spec.md §4.7).
func rank(rec Extracted, knownDuration time.Duration, shows []Show) []Match {
	matches := make([]Match, 0, len(shows))
	for _, s := range shows {
		matches = append(matches, Match{Show: s, Score: Score(rec, knownDuration, s)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if !matches[i].Show.Date.Equal(matches[j].Show.Date) {
			return matches[i].Show.Date.After(matches[j].Show.Date)
		}
		return matches[i].Show.ID < matches[j].Show.ID
	})
	return matches
}

// BestMatch returns the single best-scoring show for path, if its score
// meets AutoLinkThreshold. The bool return reports whether a qualifying
// match was found.
func (m *Matcher) BestMatch(ctx context.Context, path string, knownDuration time.Duration) (Match, bool, error) {
	rec := ExtractFromFilename(path)
	shows, err := m.shows(ctx)
	if err != nil {
		return Match{}, false, err
	}
	ranked := rank(rec, knownDuration, shows)
	if len(ranked) == 0 || ranked[0].Score < AutoLinkThreshold {
		return Match{}, false, nil
	}
	return ranked[0], true, nil
}

// Suggest returns up to topK candidates scoring at least SuggestionThreshold,
// best first, for operator review when no auto-link was possible.
func (m *Matcher) Suggest(ctx context.Context, path string, knownDuration time.Duration, topK int) ([]Match, error) {
	rec := ExtractFromFilename(path)
	shows, err := m.shows(ctx)
	if err != nil {
		return nil, err
	}
	ranked := rank(rec, knownDuration, shows)

	out := make([]Match, 0, topK)
	for _, r := range ranked {
		if r.Score < SuggestionThreshold {
			continue
		}
		out = append(out, r)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}
