package caption

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/flexcoop/archivist/internal/errs"
)

// sccHeader is the literal Scenarist SCC v1.0 header (spec.md §4.4).
const sccHeader = "Scenarist_SCC V1.0"

// framesPerSecond is the SMPTE rate used for encoding (spec.md §4.4: 30fps,
// non-drop per spec.md §9 Open Question #3).
const framesPerSecond = 30

// prefixCodes and suffixCodes are the fixed EIA-608 control-code pairs
// framing every caption record (spec.md §4.4).
var prefixCodes = []string{"9420", "9420", "94ae", "94ae", "9452", "9452", "97a2", "97a2"}
var suffixCodes = []string{"9420", "9420", "942c", "942c", "8080", "8080"}

// charToHex implements the fixed printable-ASCII mapping: characters in the
// printable ASCII range encode to their own byte value; everything else
// (including control characters) encodes to space (0x20), per spec.md §4.4.
func charToHex(r rune) string {
	if r >= 0x20 && r <= 0x7e {
		return fmt.Sprintf("%02x", byte(r))
	}
	return "20"
}

// hexToChar is the inverse of charToHex, used by ParseSCC.
func hexToChar(hex string) (rune, bool) {
	v, err := strconv.ParseUint(hex, 16, 8)
	if err != nil {
		return 0, false
	}
	b := byte(v)
	if b >= 0x20 && b <= 0x7e {
		return rune(b), true
	}
	return 0, false
}

// formatTimecode renders start_s as "HH:MM:SS;FF" per spec.md §4.4.
func formatTimecode(startS float64) string {
	total := int64(math.Floor(startS))
	hh := total / 3600
	mm := (total % 3600) / 60
	ss := total % 60
	frac := startS - math.Floor(startS)
	ff := int(math.Round(frac * framesPerSecond))
	if ff >= framesPerSecond {
		ff = framesPerSecond - 1
	}
	return fmt.Sprintf("%02d:%02d:%02d;%02d", hh, mm, ss, ff)
}

var timecodeRe = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})[;,.](\d{2})$`)

// parseTimecode accepts "HH:MM:SS" followed by ";", "," or "." and FF,
// lenient per spec.md §9 Open Question #3 — no drop-frame compensation
// is applied during parsing.
func parseTimecode(tc string) (float64, error) {
	m := timecodeRe.FindStringSubmatch(tc)
	if m == nil {
		return 0, fmt.Errorf("malformed timecode %q", tc)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	ss, _ := strconv.Atoi(m[3])
	ff, _ := strconv.Atoi(m[4])
	return float64(hh*3600+mm*60+ss) + float64(ff)/framesPerSecond, nil
}

// encodeText converts plain text into the space-separated hex codes that
// make up the caption payload of one SCC record.
func encodeText(text string) string {
	runes := []rune(text)
	codes := make([]string, len(runes))
	for i, r := range runes {
		codes[i] = charToHex(r)
	}
	return strings.Join(codes, " ")
}

// EncodeSCC writes segments as a Scenarist SCC v1.0 document to w
// (spec.md §4.4). Re-encoding the same segments yields byte-identical
// output, satisfying the idempotence invariant in spec.md §8.
func EncodeSCC(w io.Writer, segments []Segment) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%s\n\n", sccHeader); err != nil {
		return errs.Wrap(errs.KindEncodeFailed, "write header", err)
	}
	for _, seg := range segments {
		line := fmt.Sprintf("%s\t%s %s %s\n",
			formatTimecode(seg.StartS),
			strings.Join(prefixCodes, " "),
			encodeText(seg.Text),
			strings.Join(suffixCodes, " "),
		)
		if _, err := bw.WriteString(line); err != nil {
			return errs.Wrap(errs.KindEncodeFailed, "write record", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return errs.Wrap(errs.KindEncodeFailed, "flush output", err)
	}
	return nil
}

// WriteSCCFile encodes segments and writes them atomically via
// write-to-temp-then-rename (spec.md §4.4, §8 invariant 5), grounded on
// xg2g's jobs.writeXMLTV/renameio pattern.
func WriteSCCFile(ctx context.Context, path string, segments []Segment) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return errs.Wrap(errs.KindEncodeFailed, "create pending SCC file", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if err := EncodeSCC(pending, segments); err != nil {
		return err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return errs.Wrap(errs.KindEncodeFailed, "atomically replace SCC file", err)
	}
	return nil
}

// ParseSCC reads a Scenarist SCC document back into segments, recovering
// start time and (lossy, modulo the printable-ASCII substitution) text.
// End times are not recoverable from the format and are left at zero; this
// is sufficient for linking/analysis use (spec.md §4.4's "parser
// counterpart").
func ParseSCC(r io.Reader) ([]Segment, error) {
	scanner := bufio.NewScanner(r)
	var segments []Segment
	sawHeader := false
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		if !sawHeader {
			if strings.TrimSpace(line) != sccHeader {
				return nil, fmt.Errorf("missing %q header", sccHeader)
			}
			sawHeader = true
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}
		startS, err := parseTimecode(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, err
		}
		text := decodeRecordText(parts[1])
		segments = append(segments, Segment{StartS: startS, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawHeader {
		return nil, fmt.Errorf("empty SCC document")
	}
	return segments, nil
}

// decodeRecordText strips the fixed prefix/suffix control-code pairs and
// decodes the remaining hex codes back into characters.
func decodeRecordText(payload string) string {
	codes := strings.Fields(payload)
	if len(codes) <= len(prefixCodes)+len(suffixCodes) {
		return ""
	}
	body := codes[len(prefixCodes) : len(codes)-len(suffixCodes)]
	var sb strings.Builder
	for _, code := range body {
		if r, ok := hexToChar(code); ok {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}
	return sb.String()
}
