package linkstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexcoop/archivist/internal/errs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "links.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLink_CreatesRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Link(ctx, "trans-1", "show-42", "Council", 5400))

	l, ok, err := s.GetLink(ctx, "trans-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "show-42", l.ShowID)
	assert.Equal(t, "Council", l.TitleSnapshot)
	assert.Equal(t, 5400, l.DurationSnapshot)
}

func TestLink_DuplicateFailsWithLinkConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Link(ctx, "trans-1", "show-42", "Council", 5400))

	err := s.Link(ctx, "trans-1", "show-99", "Other", 100)
	require.Error(t, err)
	kind, ok := errs.OfKind(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindLinkConflict, kind)
}

func TestUnlink_IsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Unlink(ctx, "never-linked"))

	require.NoError(t, s.Link(ctx, "trans-1", "show-42", "Council", 5400))
	require.NoError(t, s.Unlink(ctx, "trans-1"))
	require.NoError(t, s.Unlink(ctx, "trans-1"))

	_, ok, err := s.GetLink(ctx, "trans-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLinksForShow_ReturnsOnlyThatShowsLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Link(ctx, "trans-1", "show-42", "Council", 5400))
	require.NoError(t, s.Link(ctx, "trans-2", "show-42", "Council (rebroadcast)", 5400))
	require.NoError(t, s.Link(ctx, "trans-3", "show-99", "Other", 100))

	links, err := s.LinksForShow(ctx, "show-42")
	require.NoError(t, err)
	require.Len(t, links, 2)
	ids := []string{links[0].TranscriptionID, links[1].TranscriptionID}
	assert.ElementsMatch(t, []string{"trans-1", "trans-2"}, ids)
}

func TestLinksForShow_NoneFound(t *testing.T) {
	s := newTestStore(t)
	links, err := s.LinksForShow(context.Background(), "show-404")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestMirrorShow_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MirrorShow(ctx, "42", "Council", "Weekly meeting", 5400, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, s.MirrorShow(ctx, "42", "Council (updated)", "Weekly meeting", 5400, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
}

func TestMirrorVOD_WithChaptersIsTransactional(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chapters := []Chapter{
		{Title: "Intro", StartS: 0, EndS: 30},
		{Title: "Agenda", StartS: 30, EndS: 600},
	}
	require.NoError(t, s.MirrorVOD(ctx, "vod-7", "show-42", "ready", 100, "s", "e", "w", chapters))

	latest, ok, err := s.LatestVODForShow(ctx, "show-42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "vod-7", latest)
}

func TestLatestVODForShow_NoneFound(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.LatestVODForShow(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}
