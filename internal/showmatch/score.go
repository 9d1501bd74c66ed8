package showmatch

import (
	"math"
	"strings"
	"time"
)

// Show is the subset of an Upstream Show (spec.md §3) the matcher scores
// against.
type Show struct {
	ID          string
	Title       string
	Description string
	Date        time.Time
	DurationS   int
}

// scoreDate implements spec.md §4.7's date weight (0.40).
func scoreDate(recDate time.Time, hasDate bool, showDate time.Time) float64 {
	if !hasDate || showDate.IsZero() {
		return 0
	}
	delta := recDate.Sub(showDate)
	if delta < 0 {
		delta = -delta
	}
	days := delta.Hours() / 24
	switch {
	case days == 0:
		return 0.40
	case days <= 1:
		return 0.30
	case days <= 7:
		return 0.10
	default:
		return 0
	}
}

// scoreTitle implements spec.md §4.7's title-similarity weight (0.35) via a
// Ratcliff/Obershelp-style matching-blocks ratio: find the longest common
// substring, recurse on the unmatched left/right remainders, and sum matched
// length over total length. The teacher has no direct equivalent (grounded
// only on epg.fuzzy.go's lowercasing convention), so this function is
// implemented against the standard library.
func scoreTitle(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	matched := matchingBlockLength(a, b)
	ratio := 2.0 * float64(matched) / float64(len(a)+len(b))
	return ratio * 0.35
}

// matchingBlockLength sums the lengths of the recursively-found longest
// common substrings of a and b (Ratcliff/Obershelp's "matching blocks").
func matchingBlockLength(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	i, j, length := longestCommonSubstring(a, b)
	if length == 0 {
		return 0
	}
	return length +
		matchingBlockLength(a[:i], b[:j]) +
		matchingBlockLength(a[i+length:], b[j+length:])
}

// longestCommonSubstring returns the start indices in a and b and the
// length of their longest common contiguous substring.
func longestCommonSubstring(a, b string) (ai, bi, length int) {
	la, lb := len(a), len(b)
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	best := 0
	bestAI, bestBI := 0, 0

	for x := 1; x <= la; x++ {
		for y := 1; y <= lb; y++ {
			if a[x-1] == b[y-1] {
				curr[y] = prev[y-1] + 1
				if curr[y] > best {
					best = curr[y]
					bestAI = x - best
					bestBI = y - best
				}
			} else {
				curr[y] = 0
			}
		}
		prev, curr = curr, prev
		for y := range curr {
			curr[y] = 0
		}
	}
	return bestAI, bestBI, best
}

// scoreDuration implements spec.md §4.7's duration-proximity weight (0.15).
func scoreDuration(knownDuration time.Duration, showDurationS int) float64 {
	if knownDuration <= 0 || showDurationS <= 0 {
		return 0
	}
	delta := math.Abs(knownDuration.Seconds() - float64(showDurationS))
	switch {
	case delta < 30:
		return 0.15
	case delta < 120:
		return 0.10
	case delta < 300:
		return 0.05
	default:
		return 0
	}
}

// scoreDescription implements spec.md §4.7's description weight (0.10).
func scoreDescription(title, description string) float64 {
	title = strings.ToLower(strings.TrimSpace(title))
	description = strings.ToLower(description)
	if title == "" || description == "" {
		return 0
	}
	if strings.Contains(description, title) {
		return 0.10
	}
	return 0
}

// Score computes the total weighted score of show against the extracted
// recording features, clamped to [0, 1.0] per spec.md §4.7.
func Score(rec Extracted, knownDuration time.Duration, show Show) float64 {
	total := scoreDate(rec.Date, rec.HasDate, show.Date) +
		scoreTitle(rec.Title, show.Title) +
		scoreDuration(knownDuration, show.DurationS) +
		scoreDescription(rec.Title, show.Description)
	if total > 1.0 {
		total = 1.0
	}
	if total < 0 {
		total = 0
	}
	return total
}
