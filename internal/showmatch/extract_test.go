package showmatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFromFilename_ISODate(t *testing.T) {
	e := ExtractFromFilename("/mnt/flex-1/2024-01-15 Council.mp4")
	require.True(t, e.HasDate)
	assert.Equal(t, 2024, e.Date.Year())
	assert.Equal(t, time.January, e.Date.Month())
	assert.Equal(t, 15, e.Date.Day())
	assert.Equal(t, "Council", e.Title)
}

func TestExtractFromFilename_CompactDate(t *testing.T) {
	e := ExtractFromFilename("council_20240115.mp4")
	require.True(t, e.HasDate)
	assert.Equal(t, 2024, e.Date.Year())
	assert.Equal(t, 1, int(e.Date.Month()))
	assert.Equal(t, 15, e.Date.Day())
}

func TestExtractFromFilename_NoDate(t *testing.T) {
	e := ExtractFromFilename("budget_workshop.mp4")
	assert.False(t, e.HasDate)
	assert.Equal(t, "budget workshop", e.Title)
}

func TestExtractFromFilename_SeparatorsCollapsed(t *testing.T) {
	e := ExtractFromFilename("city_council__special-session.mov")
	assert.Equal(t, "city council special session", e.Title)
}
