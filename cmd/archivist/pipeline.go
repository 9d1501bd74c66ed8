package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/flexcoop/archivist/internal/caption"
	"github.com/flexcoop/archivist/internal/errs"
	"github.com/flexcoop/archivist/internal/flexscan"
	"github.com/flexcoop/archivist/internal/jobqueue"
	"github.com/flexcoop/archivist/internal/linkstore"
	"github.com/flexcoop/archivist/internal/showmatch"
	"github.com/flexcoop/archivist/internal/upstream"
)

// buildProcessFunc assembles C3/C4/C7/C8/C10's caption pipeline into a
// single jobqueue.ProcessFunc, the way xg2g's pipeline_wiring.go composes
// ffmpeg/enigma2 collaborators into one sessionports.MediaPipeline. Each
// stage's failure mode follows spec.md §4.5's checkpoint progress model:
// transcription and encoding failures are hard (the job fails and retries);
// show matching and VOD enrichment failures are soft (logged, the caption
// file still exists on disk, and the job still succeeds).
func buildProcessFunc(app *App) jobqueue.ProcessFunc {
	return func(ctx context.Context, job jobqueue.Job, progress jobqueue.ProgressFunc) error {
		logger := app.Logger.With().Str("job_id", job.ID).Str("video_path", job.VideoPath).Logger()

		progress(5)
		transcript, err := app.Model.Transcribe(ctx, job.VideoPath, caption.TranscribeOptions{
			Language:    app.Config.CaptionModel.Language,
			ComputeHint: app.Config.CaptionModel.ComputeHint,
			BatchHint:   app.Config.CaptionModel.BatchHint,
		})
		if err != nil {
			return err
		}

		progress(40)
		sccPath := flexscan.CaptionPath(job.VideoPath)
		if err := caption.WriteSCCFile(ctx, sccPath, transcript.Segments); err != nil {
			return err
		}

		progress(55)
		knownDuration := time.Duration(transcript.Duration * float64(time.Second))
		match, matched, err := app.Matcher.BestMatch(ctx, job.VideoPath, knownDuration)
		if err != nil {
			logger.Warn().Err(err).Msg("show match lookup failed; caption written without a show link")
			matched = false
		}

		progress(70)
		if matched && match.Score >= showmatch.AutoLinkThreshold {
			linkAndEnrich(ctx, app, job, match, transcript, sccPath, logger)
		} else if matched {
			logger.Info().Float64("score", match.Score).Str("show_id", match.Show.ID).
				Msg("show match below auto-link threshold; left for manual review")
		}

		progress(100)
		return nil
	}
}

// linkAndEnrich implements C8's link creation, C10's sidecar attach, and
// the show/VOD mirror refresh, treating all three as best-effort: a
// LinkConflict or upstream hiccup here is logged and the caption job
// still succeeds, matching vodenrich's own "metadata update is non-fatal"
// contract. The mirror writes (grounded on the original pipeline's
// sync_shows_from_cablecast/sync_vods_from_cablecast) are what keep
// linkstore.LatestVODForShow answerable — without them C13's audit has
// no local VOD to check for any city.
func linkAndEnrich(ctx context.Context, app *App, job jobqueue.Job, match showmatch.Match, transcript caption.Transcript, sccPath string, logger zerolog.Logger) {
	if err := app.Links.Link(ctx, job.ID, match.Show.ID, match.Show.Title, int(transcript.Duration)); err != nil {
		if kind, ok := errs.OfKind(err); ok && kind == errs.KindLinkConflict {
			logger.Info().Str("show_id", match.Show.ID).Msg("job already linked to a show; skipping re-link")
		} else {
			logger.Warn().Err(err).Str("show_id", match.Show.ID).Msg("failed to record show link")
		}
	}

	if err := app.Links.MirrorShow(ctx, match.Show.ID, match.Show.Title, match.Show.Description, match.Show.DurationS, match.Show.Date); err != nil {
		logger.Warn().Err(err).Str("show_id", match.Show.ID).Msg("failed to refresh mirrored show row")
	}

	vods, err := app.Upstream.GetVODs(ctx, match.Show.ID)
	if err != nil {
		logger.Warn().Err(err).Str("show_id", match.Show.ID).Msg("failed to list VODs for matched show; skipping sidecar attach")
		return
	}
	if len(vods) == 0 {
		logger.Info().Str("show_id", match.Show.ID).Msg("matched show has no upstream VOD yet; sidecar attach deferred")
		return
	}

	vod := pickTargetVOD(vods)
	if err := app.Enrich.AttachSidecar(ctx, vod.ID, sccPath, transcript); err != nil {
		logger.Warn().Err(err).Str("vod_id", vod.ID).Msg("caption sidecar attach reported a problem")
	}

	mirrorVOD(ctx, app, vod.ID, match.Show.ID, logger)
}

// mirrorVOD re-fetches vodID's current state and chapters and refreshes
// linkstore's local mirror, the way the original pipeline's
// sync_vods_from_cablecast kept its own VOD table current after an
// enrichment call.
func mirrorVOD(ctx context.Context, app *App, vodID, showID string, logger zerolog.Logger) {
	fresh, err := app.Upstream.GetVOD(ctx, vodID)
	if err != nil {
		logger.Warn().Err(err).Str("vod_id", vodID).Msg("failed to refetch vod for mirror refresh")
		return
	}
	chapters, err := app.Upstream.GetVODChapters(ctx, vodID)
	if err != nil {
		logger.Warn().Err(err).Str("vod_id", vodID).Msg("failed to fetch vod chapters for mirror refresh")
	}
	lsChapters := make([]linkstore.Chapter, 0, len(chapters))
	for _, c := range chapters {
		lsChapters = append(lsChapters, linkstore.Chapter{
			Title: c.Title, StartS: c.StartS, EndS: c.EndS, Description: c.Description,
		})
	}
	if err := app.Links.MirrorVOD(ctx, vodID, showID, string(fresh.State), fresh.Percent, fresh.StreamURL, fresh.EmbedURL, fresh.WebVTTURL, lsChapters); err != nil {
		logger.Warn().Err(err).Str("vod_id", vodID).Msg("failed to refresh mirrored vod row")
	}
}

// pickTargetVOD prefers a Ready or Completed VOD (spec.md §3: a sidecar
// can only be attached once encoding has produced a stable asset), falling
// back to the first entry upstream returned.
func pickTargetVOD(vods []upstream.VOD) upstream.VOD {
	for _, v := range vods {
		if v.State == upstream.VODReady || v.State == upstream.VODCompleted {
			return v
		}
	}
	return vods[0]
}
