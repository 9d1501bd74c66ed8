// Package caption implements C3 (the speech-to-text model adapter) and C4
// (the SCC encoder/parser). The model half is a narrow interface over a
// pluggable transcription backend, grounded on xg2g's lazy process-wide
// singletons (see internal/config.ffprobe_resolve.go's sync.Once-cached
// binary resolution) adapted to cache a loaded model instead of a path.
package caption

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/flexcoop/archivist/internal/errs"
	"github.com/flexcoop/archivist/internal/log"
)

// Segment is one timestamped transcript line (spec.md §4.3).
type Segment struct {
	StartS float64
	EndS   float64
	Text   string
}

// Transcript is the model adapter's full result.
type Transcript struct {
	Segments []Segment
	Duration float64
	Language string
}

// TranscribeOptions configures a single transcription call (spec.md §6's
// CAPTION_MODEL/COMPUTE_HINT/BATCH_HINT/LANGUAGE).
type TranscribeOptions struct {
	Language    string
	ComputeHint string
	BatchHint   string
}

// ModelAdapter is the C3 contract: one-shot transcription of a local file.
type ModelAdapter interface {
	Transcribe(ctx context.Context, path string, opts TranscribeOptions) (Transcript, error)
}

// modelRunnerResult is the JSON shape emitted on stdout by the external
// model runtime binary (spec.md §1: "invokes one through a narrow
// interface" — the ASR model itself is external).
type modelRunnerResult struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Duration float64 `json:"duration"`
	Language string  `json:"language"`
}

// CommandAdapter shells out to a configured model-runtime binary, the way
// xg2g's ffmpeg.Runner wraps an external process and parses its output.
// The binary is expected to accept "<bin> --path <file> --language <lang>"
// and emit a single modelRunnerResult JSON document on stdout.
type CommandAdapter struct {
	BinaryPath string

	once     sync.Once
	loadErr  error
}

// NewCommandAdapter constructs an adapter for the given model runtime
// binary. The binary is not invoked (and therefore not required to exist)
// until the first Transcribe call, per spec.md §4.3's "model load is lazy".
func NewCommandAdapter(binaryPath string) *CommandAdapter {
	return &CommandAdapter{BinaryPath: binaryPath}
}

// loadOnce verifies the model runtime is reachable, caching the result
// process-wide (spec.md §4.3: "Model load is lazy and cached process-wide").
func (c *CommandAdapter) loadOnce(ctx context.Context) error {
	c.once.Do(func() {
		if c.BinaryPath == "" {
			c.loadErr = errs.New(errs.KindModelLoadFailed, "no model binary configured")
			return
		}
		if _, err := exec.LookPath(c.BinaryPath); err != nil {
			if _, statErr := os.Stat(c.BinaryPath); statErr != nil {
				c.loadErr = errs.Wrap(errs.KindModelLoadFailed, "model runtime binary not found", err)
			}
		}
	})
	return c.loadErr
}

// Transcribe implements ModelAdapter.
func (c *CommandAdapter) Transcribe(ctx context.Context, path string, opts TranscribeOptions) (Transcript, error) {
	logger := log.FromContext(ctx).With().Str("component", "caption.model").Str("path", path).Logger()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Transcript{}, errs.Wrap(errs.KindInputNotFound, "video file missing", err)
		}
		return Transcript{}, errs.Wrap(errs.KindInputUnreadable, "video file unreadable", err)
	}

	if err := c.loadOnce(ctx); err != nil {
		return Transcript{}, err
	}

	args := []string{"--path", path}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if opts.ComputeHint != "" {
		args = append(args, "--compute", opts.ComputeHint)
	}
	if opts.BatchHint != "" {
		args = append(args, "--batch", opts.BatchHint)
	}

	cmd := exec.CommandContext(ctx, c.BinaryPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Transcript{}, errs.Wrap(errs.KindTranscribeFailed, "start model runtime", err)
	}
	if err := cmd.Start(); err != nil {
		return Transcript{}, errs.Wrap(errs.KindTranscribeFailed, "launch model runtime", err)
	}

	var result modelRunnerResult
	dec := json.NewDecoder(bufio.NewReader(stdout))
	decodeErr := dec.Decode(&result)
	waitErr := cmd.Wait()

	if waitErr != nil {
		return Transcript{}, errs.Wrap(errs.KindTranscribeFailed, "model runtime exited with error", waitErr)
	}
	if decodeErr != nil {
		return Transcript{}, errs.Wrap(errs.KindTranscribeFailed, "decode model runtime output", decodeErr)
	}

	segments := make([]Segment, 0, len(result.Segments))
	for _, s := range result.Segments {
		segments = append(segments, Segment{StartS: s.Start, EndS: s.End, Text: s.Text})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].StartS < segments[j].StartS })

	if err := validateSegments(segments); err != nil {
		return Transcript{}, err
	}

	logger.Debug().Int("segments", len(segments)).Float64("duration_s", result.Duration).Msg("transcription complete")

	return Transcript{Segments: segments, Duration: result.Duration, Language: result.Language}, nil
}

// validateSegments enforces spec.md §4.3: start <= end, non-overlapping,
// sorted, and printable text.
func validateSegments(segments []Segment) error {
	prevEnd := -1.0
	for i, s := range segments {
		if s.StartS > s.EndS {
			return errs.New(errs.KindTranscribeFailed, fmt.Sprintf("segment %d: start %.3f after end %.3f", i, s.StartS, s.EndS))
		}
		if s.StartS < prevEnd {
			return errs.New(errs.KindTranscribeFailed, fmt.Sprintf("segment %d overlaps previous segment", i))
		}
		prevEnd = s.EndS
		for _, r := range s.Text {
			if r < 0x20 && r != '\t' {
				return errs.New(errs.KindTranscribeFailed, fmt.Sprintf("segment %d contains control character", i))
			}
		}
	}
	return nil
}
