// Package vodenrich implements C10: attaching a caption sidecar to an
// upstream VOD and augmenting its metadata, grounded on xg2g's
// mapper.normalize.go text-normalization helpers for the key-phrase
// extraction step.
package vodenrich

import (
	"context"
	"sort"
	"strings"

	"github.com/flexcoop/archivist/internal/caption"
	"github.com/flexcoop/archivist/internal/errs"
	"github.com/flexcoop/archivist/internal/log"
	"github.com/flexcoop/archivist/internal/upstream"
)

// VODUpdater is the subset of the upstream client Enrichment needs.
type VODUpdater interface {
	UploadVODCaption(ctx context.Context, id, captionPath string) error
	UpdateVODMetadata(ctx context.Context, id string, fields map[string]interface{}) (upstream.VOD, error)
}

// Enrichment attaches SCC sidecars and transcription metadata to VODs.
type Enrichment struct {
	client VODUpdater
}

// New constructs an Enrichment backed by client.
func New(client VODUpdater) *Enrichment {
	return &Enrichment{client: client}
}

// topKPhrases is spec.md §4.10's default key-phrase count.
const topKPhrases = 10

// stopWords is the fixed list filtered out of key-phrase extraction.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "with": true,
	"this": true, "from": true, "have": true, "were": true, "they": true,
	"their": true, "about": true, "which": true, "will": true, "said": true,
	"into": true, "also": true, "been": true, "when": true, "what": true,
	"there": true, "would": true, "could": true, "should": true, "than": true,
}

// KeyPhrases counts tokens longer than 3 characters across a transcript's
// segments, filters the fixed stop-word list, and returns the top K by
// frequency (ties broken by first appearance).
func KeyPhrases(t caption.Transcript, topK int) []string {
	if topK <= 0 {
		topK = topKPhrases
	}
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, seg := range t.Segments {
		for _, tok := range strings.Fields(strings.ToLower(seg.Text)) {
			tok = strings.Trim(tok, ".,!?;:\"'()")
			if len(tok) <= 3 || stopWords[tok] {
				continue
			}
			if counts[tok] == 0 {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > topK {
		order = order[:topK]
	}
	return order
}

// wordsPerMinute computes a rounded wpm figure from a transcript.
func wordsPerMinute(t caption.Transcript) float64 {
	if t.Duration <= 0 {
		return 0
	}
	words := 0
	for _, seg := range t.Segments {
		words += len(strings.Fields(seg.Text))
	}
	return float64(words) / (t.Duration / 60)
}

// AttachSidecar uploads sccPath as vodID's caption sidecar, then updates
// VOD metadata per spec.md §4.10. Partial failure (upload ok, metadata
// update fails) is surfaced as a warning-carrying error rather than a hard
// failure — the caller's job still succeeds and a later retry reconciles
// metadata.
func (e *Enrichment) AttachSidecar(ctx context.Context, vodID, sccPath string, transcript caption.Transcript) error {
	logger := log.WithComponent("vodenrich")

	if err := e.client.UploadVODCaption(ctx, vodID, sccPath); err != nil {
		return errs.Wrap(errs.KindUpstreamRejected, "upload caption sidecar", err)
	}

	words := 0
	for _, seg := range transcript.Segments {
		words += len(strings.Fields(seg.Text))
	}

	fields := map[string]interface{}{
		"transcription_available":  true,
		"accessibility_features":   []string{"captions", "transcript"},
		"content_type":             "transcribed_video",
		"source_system":            "archivist",
		"transcription_metadata": map[string]interface{}{
			"segments":    len(transcript.Segments),
			"duration_s":  transcript.Duration,
			"words":       words,
			"wpm":         wordsPerMinute(transcript),
			"top_phrases": KeyPhrases(transcript, topKPhrases),
		},
	}

	if _, err := e.client.UpdateVODMetadata(ctx, vodID, fields); err != nil {
		logger.Warn().Str("vod_id", vodID).Err(err).Msg("caption uploaded but metadata update failed; will reconcile on retry")
		return errs.Wrap(errs.KindUpstreamRejected, "metadata update after caption upload (non-fatal)", err)
	}
	return nil
}
