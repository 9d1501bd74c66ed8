package showmatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScore_NearMissScenario(t *testing.T) {
	// Mirrors spec.md's "Matcher near-miss" scenario: filename
	// council_20240115.mp4 (5398s) against two candidate shows.
	rec := ExtractFromFilename("council_20240115.mp4")
	knownDuration := 5398 * time.Second

	show42 := Show{ID: "42", Title: "Council", Date: date(2024, 1, 16), DurationS: 5400}
	show43 := Show{ID: "43", Title: "Council Workshop", Date: date(2024, 1, 15), DurationS: 3600}

	score42 := Score(rec, knownDuration, show42)
	score43 := Score(rec, knownDuration, show43)

	assert.InDelta(t, 0.80, score42, 0.02)
	assert.InDelta(t, 0.60, score43, 0.02)
	assert.Greater(t, score42, score43)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestScoreDate_Buckets(t *testing.T) {
	rec := date(2024, 1, 15)
	assert.Equal(t, 0.40, scoreDate(rec, true, date(2024, 1, 15)))
	assert.Equal(t, 0.30, scoreDate(rec, true, date(2024, 1, 16)))
	assert.Equal(t, 0.10, scoreDate(rec, true, date(2024, 1, 20)))
	assert.Equal(t, 0.0, scoreDate(rec, true, date(2024, 2, 1)))
	assert.Equal(t, 0.0, scoreDate(rec, false, date(2024, 1, 15)))
}

func TestScoreTitle_IdenticalIsFullWeight(t *testing.T) {
	assert.InDelta(t, 0.35, scoreTitle("Council Meeting", "council meeting"), 1e-9)
}

func TestScoreTitle_EmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, scoreTitle("", "council"))
	assert.Equal(t, 0.0, scoreTitle("council", ""))
}

func TestScoreDuration_Buckets(t *testing.T) {
	assert.Equal(t, 0.15, scoreDuration(100*time.Second, 110))
	assert.Equal(t, 0.10, scoreDuration(100*time.Second, 200))
	assert.Equal(t, 0.05, scoreDuration(100*time.Second, 350))
	assert.Equal(t, 0.0, scoreDuration(100*time.Second, 1000))
	assert.Equal(t, 0.0, scoreDuration(0, 100))
}

func TestScoreDescription_SubstringMatch(t *testing.T) {
	assert.Equal(t, 0.10, scoreDescription("Council", "Weekly meeting of the city council board"))
	assert.Equal(t, 0.0, scoreDescription("Council", "Weekly budget workshop"))
}
