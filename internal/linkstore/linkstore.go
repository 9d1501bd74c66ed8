// Package linkstore implements C8: durable linkage between transcriptions
// and upstream shows, plus mirrored show/VOD/chapter rows, on SQLite.
// Grounded on xg2g's internal/library.Store (NewStore/migrate shape, pure-Go
// modernc.org/sqlite driver, WAL + busy_timeout pragmas).
package linkstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flexcoop/archivist/internal/errs"
)

// Store provides SQLite persistence for link records and mirrored upstream
// rows (spec.md §4.8).
type Store struct {
	db *sql.DB
}

// NewStore opens dbPath (creating it if absent) and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open link store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping link store: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate link store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS links (
		transcription_id TEXT PRIMARY KEY,
		show_id TEXT NOT NULL,
		title_snapshot TEXT NOT NULL,
		duration_snapshot INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS shows_mirror (
		upstream_id TEXT UNIQUE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		duration_s INTEGER NOT NULL DEFAULT 0,
		show_date TEXT,
		synced_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vods_mirror (
		upstream_id TEXT PRIMARY KEY,
		show_id TEXT NOT NULL,
		state TEXT NOT NULL,
		percent INTEGER NOT NULL DEFAULT 0,
		stream_url TEXT,
		embed_url TEXT,
		webvtt_url TEXT,
		synced_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chapters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vod_id TEXT NOT NULL,
		title TEXT NOT NULL,
		start_s REAL NOT NULL,
		end_s REAL NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS audit_alerts (
		city_id TEXT NOT NULL,
		vod_id TEXT NOT NULL,
		alert_date TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (city_id, vod_id, alert_date)
	);

	CREATE INDEX IF NOT EXISTS idx_vods_mirror_show ON vods_mirror(show_id);
	CREATE INDEX IF NOT EXISTS idx_chapters_vod ON chapters(vod_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AlertedToday reports whether an audit alert was already recorded for
// (cityID, vodID) on day (formatted "2006-01-02"), enforcing spec.md §7's
// "at most one alert per (city, vod) per day".
func (s *Store) AlertedToday(ctx context.Context, cityID, vodID, day string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_alerts WHERE city_id = ? AND vod_id = ? AND alert_date = ?`,
		cityID, vodID, day,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query audit alert: %w", err)
	}
	return count > 0, nil
}

// RecordAlert marks (cityID, vodID) as alerted for day. Inserting a
// duplicate for the same day is a no-op, since AlertedToday is always
// consulted first.
func (s *Store) RecordAlert(ctx context.Context, cityID, vodID, day string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_alerts (city_id, vod_id, alert_date, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(city_id, vod_id, alert_date) DO NOTHING
	`, cityID, vodID, day, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record audit alert: %w", err)
	}
	return nil
}

// Link is spec.md §3's "Link Record" entity.
type Link struct {
	TranscriptionID  string
	ShowID           string
	TitleSnapshot    string
	DurationSnapshot int
	CreatedAt        time.Time
}

// Link creates a new link record, failing with LinkConflict if one already
// exists for transcriptionID (spec.md §4.8 contract).
func (s *Store) Link(ctx context.Context, transcriptionID, showID, titleSnapshot string, durationSnapshot int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT transcription_id FROM links WHERE transcription_id = ?`, transcriptionID).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		// no existing link, proceed
	case err != nil:
		return fmt.Errorf("check existing link: %w", err)
	default:
		return errs.New(errs.KindLinkConflict, "a link already exists for this transcription")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO links (transcription_id, show_id, title_snapshot, duration_snapshot, created_at) VALUES (?, ?, ?, ?, ?)`,
		transcriptionID, showID, titleSnapshot, durationSnapshot, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	return tx.Commit()
}

// Unlink removes any link record for transcriptionID. Idempotent: removing
// an absent link is not an error (spec.md §4.8 contract).
func (s *Store) Unlink(ctx context.Context, transcriptionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM links WHERE transcription_id = ?`, transcriptionID)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return nil
}

// GetLink returns the link record for transcriptionID, if any.
func (s *Store) GetLink(ctx context.Context, transcriptionID string) (Link, bool, error) {
	var l Link
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT transcription_id, show_id, title_snapshot, duration_snapshot, created_at FROM links WHERE transcription_id = ?`,
		transcriptionID,
	).Scan(&l.TranscriptionID, &l.ShowID, &l.TitleSnapshot, &l.DurationSnapshot, &createdAt)
	if err == sql.ErrNoRows {
		return Link{}, false, nil
	}
	if err != nil {
		return Link{}, false, fmt.Errorf("query link: %w", err)
	}
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return l, true, nil
}

// LinksForShow returns every link record bound to showID, newest first —
// the reverse-lookup counterpart to GetLink, grounded on the original
// pipeline's get_linked_transcriptions. It is exposed as a query surface
// for the external admin UI/dashboard collaborator (spec.md §1 non-goals);
// nothing in this module's own pipeline needs a reverse lookup.
func (s *Store) LinksForShow(ctx context.Context, showID string) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT transcription_id, show_id, title_snapshot, duration_snapshot, created_at FROM links WHERE show_id = ? ORDER BY created_at DESC`,
		showID,
	)
	if err != nil {
		return nil, fmt.Errorf("query links for show: %w", err)
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		var l Link
		var createdAt string
		if err := rows.Scan(&l.TranscriptionID, &l.ShowID, &l.TitleSnapshot, &l.DurationSnapshot, &createdAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, l)
	}
	return out, rows.Err()
}

// MirrorShow upserts a shows_mirror row.
func (s *Store) MirrorShow(ctx context.Context, upstreamID, title, description string, durationS int, showDate time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shows_mirror (upstream_id, title, description, duration_s, show_date, synced_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(upstream_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			duration_s = excluded.duration_s,
			show_date = excluded.show_date,
			synced_at = excluded.synced_at
	`, upstreamID, title, description, durationS, showDate.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("mirror show: %w", err)
	}
	return nil
}

// MirrorVOD upserts a vods_mirror row, and — together with any chapter
// writes the caller performs in the same call — runs as a single
// transaction so a failed enrichment never leaves orphaned partial records
// (spec.md §4.8 contract).
func (s *Store) MirrorVOD(ctx context.Context, upstreamID, showID, state string, percent int, streamURL, embedURL, webvttURL string, chapters []Chapter) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vods_mirror (upstream_id, show_id, state, percent, stream_url, embed_url, webvtt_url, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(upstream_id) DO UPDATE SET
			show_id = excluded.show_id,
			state = excluded.state,
			percent = excluded.percent,
			stream_url = excluded.stream_url,
			embed_url = excluded.embed_url,
			webvtt_url = excluded.webvtt_url,
			synced_at = excluded.synced_at
	`, upstreamID, showID, state, percent, streamURL, embedURL, webvttURL, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("mirror vod: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chapters WHERE vod_id = ?`, upstreamID); err != nil {
		return fmt.Errorf("clear stale chapters: %w", err)
	}
	for _, c := range chapters {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chapters (vod_id, title, start_s, end_s, description) VALUES (?, ?, ?, ?, ?)`,
			upstreamID, c.Title, c.StartS, c.EndS, c.Description,
		); err != nil {
			return fmt.Errorf("insert chapter: %w", err)
		}
	}
	return tx.Commit()
}

// Chapter mirrors an upstream chapter row.
type Chapter struct {
	Title       string
	StartS      float64
	EndS        float64
	Description string
}

// LatestVODForShow returns the most recently synced VOD row mirrored for
// showID, used by C13's caption audit.
func (s *Store) LatestVODForShow(ctx context.Context, showID string) (upstreamID string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT upstream_id FROM vods_mirror WHERE show_id = ? ORDER BY synced_at DESC LIMIT 1`, showID,
	).Scan(&upstreamID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query latest vod: %w", err)
	}
	return upstreamID, true, nil
}
