// Package showmatch implements C7: ranking upstream shows as candidates for
// a recorded video, grounded on xg2g's internal/dvr filename-rule parsing
// style and epg.fuzzy.go's lowercasing/normalization helpers.
package showmatch

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// datePattern pairs a regexp against a filename with the Go reference
// layout needed to parse whatever it captures, tried in the fixed order
// spec.md §4.7 specifies.
type datePattern struct {
	re     *regexp.Regexp
	layout string
}

var datePatterns = []datePattern{
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), "2006-01-02"},
	{regexp.MustCompile(`\d{2}-\d{2}-\d{4}`), "01-02-2006"},
	{regexp.MustCompile(`\d{8}`), "20060102"},
	{regexp.MustCompile(`\d{4}_\d{2}_\d{2}`), "2006_01_02"},
	{regexp.MustCompile(`\d{2}_\d{2}_\d{4}`), "01_02_2006"},
}

var separatorRe = regexp.MustCompile(`[_\-.]+`)

// Extracted holds the date and title derived from a recording's filename.
type Extracted struct {
	Date    time.Time
	HasDate bool
	Title   string
}

// ExtractFromFilename applies spec.md §4.7's fixed pattern order and
// returns the first match, plus a title formed from the remainder of the
// filename with separators collapsed to spaces.
func ExtractFromFilename(path string) Extracted {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	var (
		token string
		date  time.Time
		found bool
	)
	for _, p := range datePatterns {
		if loc := p.re.FindStringIndex(name); loc != nil {
			candidate := name[loc[0]:loc[1]]
			t, err := time.Parse(p.layout, candidate)
			if err != nil {
				continue
			}
			token = candidate
			date = t
			found = true
			break
		}
	}

	title := name
	if token != "" {
		title = strings.Replace(title, token, " ", 1)
	}
	title = separatorRe.ReplaceAllString(title, " ")
	title = strings.TrimSpace(title)

	return Extracted{Date: date, HasDate: found, Title: title}
}
