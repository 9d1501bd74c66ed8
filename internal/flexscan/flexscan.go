// Package flexscan implements C1: surface-level discovery of newest
// uncaptioned videos on each city's flex-server mount, grounded on xg2g's
// internal/library.Scanner (symlink-safe confinement, context-aware walk)
// but restricted to a single directory level per spec.md §4.1's "never
// recurses" contract.
package flexscan

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flexcoop/archivist/internal/config"
	"github.com/flexcoop/archivist/internal/log"
)

// VideoAsset is spec.md §3's "Video Asset" entity.
type VideoAsset struct {
	Path         string
	Size         int64
	ModTime      time.Time
	CityID       string
}

var defaultExtensions = []string{".mp4", ".mkv", ".mov", ".ts", ".mpeg"}

const (
	minAssetSize = 1 << 20 // 1 MiB, per spec.md §4.1
	defaultScanLimit = 50
)

// Scanner discovers candidate recordings on flex-server mounts.
type Scanner struct {
	servers    map[string]config.FlexServer
	extensions []string
	// mountDeadline bounds a single readdir call against a stalled NFS mount
	// (spec.md §5: "mount readdir ... can stall on hung NFS").
	mountDeadline time.Duration
}

// New builds a Scanner over the given flex servers (keyed by city id).
func New(servers map[string]config.FlexServer) *Scanner {
	return &Scanner{
		servers:       servers,
		extensions:    defaultExtensions,
		mountDeadline: 10 * time.Second,
	}
}

func hasAllowedExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// Discover lists files directly in the city's mount root, newest first,
// bounded by scanLimit. A missing/unreadable mount yields an empty result
// and a warning log, never an error (spec.md §4.1).
func (s *Scanner) Discover(ctx context.Context, cityID string, scanLimit int) ([]VideoAsset, error) {
	logger := log.FromContext(ctx).With().Str("component", "flexscan").Str("city_id", cityID).Logger()

	fs, ok := s.servers[cityID]
	if !ok {
		logger.Warn().Msg("unknown city id; skipping")
		return nil, nil
	}
	if scanLimit <= 0 {
		scanLimit = defaultScanLimit
	}

	done := make(chan struct{})
	var entries []os.DirEntry
	var readErr error
	go func() {
		entries, readErr = os.ReadDir(fs.MountPath)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.mountDeadline):
		logger.Warn().Str("mount", fs.MountPath).Msg("mount readdir timed out; treating as unreadable")
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if readErr != nil {
		logger.Warn().Err(readErr).Str("mount", fs.MountPath).Msg("flex mount not present or unreadable")
		return nil, nil
	}

	assets := make([]VideoAsset, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !hasAllowedExt(e.Name(), s.extensions) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			logger.Debug().Err(err).Str("name", e.Name()).Msg("stat failed; skipping entry")
			continue
		}
		if info.Size() <= minAssetSize {
			continue
		}
		assets = append(assets, VideoAsset{
			Path:    filepath.Join(fs.MountPath, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			CityID:  cityID,
		})
	}

	sort.Slice(assets, func(i, j int) bool {
		if !assets[i].ModTime.Equal(assets[j].ModTime) {
			return assets[i].ModTime.After(assets[j].ModTime)
		}
		return assets[i].Path < assets[j].Path // deterministic tiebreak
	})

	if len(assets) > scanLimit {
		assets = assets[:scanLimit]
	}
	return assets, nil
}

// CaptionPath returns the expected sidecar path for a video asset
// (spec.md §3 "Caption Artifact": same directory, same base name, .scc).
func CaptionPath(videoPath string) string {
	ext := filepath.Ext(videoPath)
	return strings.TrimSuffix(videoPath, ext) + ".scc"
}

func hasCaptionFile(videoPath string) bool {
	_, err := os.Stat(CaptionPath(videoPath))
	return err == nil
}

// FindUntranscribed returns Discover's results filtered to those lacking a
// co-located .scc file.
func (s *Scanner) FindUntranscribed(ctx context.Context, cityID string, scanLimit int) ([]VideoAsset, error) {
	all, err := s.Discover(ctx, cityID, scanLimit)
	if err != nil {
		return nil, err
	}
	out := make([]VideoAsset, 0, len(all))
	for _, a := range all {
		if !hasCaptionFile(a.Path) {
			out = append(out, a)
		}
	}
	return out, nil
}

// PickResult reports what PickNewestUncaptioned found per city, including
// how many candidates were already captioned, for counter reporting.
type PickResult struct {
	Picks            map[string][]VideoAsset
	ScannedTotal     int
	SkippedCaptioned int
}

// cityPick holds one city's Discover/filter outcome, collected by
// PickNewestUncaptioned's per-city fan-out before the results are merged
// back in deterministic city-id order.
type cityPick struct {
	cityID           string
	scanned          int
	skippedCaptioned int
	picks            []VideoAsset
}

// PickNewestUncaptioned is the convenience combinator from spec.md §4.1:
// for every configured city, the newest maxPerCity uncaptioned videos.
// Each city's mount is scanned concurrently via errgroup (one slow or
// hung mount must not delay the other eight — spec.md §5's per-call
// deadline already bounds a single Discover, this bounds the whole
// sweep), with results merged back in sorted city-id order so counters
// stay deterministic regardless of completion order.
func (s *Scanner) PickNewestUncaptioned(ctx context.Context, maxPerCity, scanLimit int) (PickResult, error) {
	result := PickResult{Picks: make(map[string][]VideoAsset, len(s.servers))}

	cityIDs := make([]string, 0, len(s.servers))
	for id := range s.servers {
		cityIDs = append(cityIDs, id)
	}
	sort.Strings(cityIDs) // deterministic iteration order

	picks := make([]cityPick, len(cityIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, cityID := range cityIDs {
		i, cityID := i, cityID
		g.Go(func() error {
			all, err := s.Discover(gctx, cityID, scanLimit)
			if err != nil {
				return err
			}

			cp := cityPick{cityID: cityID, scanned: len(all)}
			untranscribed := make([]VideoAsset, 0, len(all))
			for _, a := range all {
				if hasCaptionFile(a.Path) {
					cp.skippedCaptioned++
					continue
				}
				untranscribed = append(untranscribed, a)
			}
			if len(untranscribed) > maxPerCity {
				untranscribed = untranscribed[:maxPerCity]
			}
			cp.picks = untranscribed
			picks[i] = cp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	for _, cp := range picks {
		result.ScannedTotal += cp.scanned
		result.SkippedCaptioned += cp.skippedCaptioned
		if len(cp.picks) > 0 {
			result.Picks[cp.cityID] = cp.picks
		}
	}
	return result, nil
}
