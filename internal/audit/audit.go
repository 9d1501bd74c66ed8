// Package audit implements C13: the daily guarantee that the most recent
// VOD per city carries captions, grounded on xg2g's
// internal/diagnostics.EPGChecker single-purpose daily-check shape (probe,
// classify, report — no remediation).
package audit

import (
	"context"
	"time"

	"github.com/flexcoop/archivist/internal/config"
	"github.com/flexcoop/archivist/internal/log"
)

// ShowFinder locates the most recent scheduled show for a city (C9).
type ShowFinder interface {
	LatestShowForLocation(ctx context.Context, location string) (Show, bool, error)
}

// Show is the subset of upstream.Show the audit needs.
type Show struct {
	ID    string
	Title string
	Date  time.Time
}

// VODFinder locates the most recently mirrored VOD for a show (C8).
type VODFinder interface {
	LatestVODForShow(ctx context.Context, showID string) (vodID string, ok bool, err error)
}

// CaptionPresence asks whether a VOD currently carries a caption sidecar (C9).
type CaptionPresence interface {
	HasCaptions(ctx context.Context, vodID string) (bool, error)
}

// AlertDedup enforces spec.md §7's "at most one alert per (city, vod) per
// day" (C8's audit_alerts table).
type AlertDedup interface {
	AlertedToday(ctx context.Context, cityID, vodID, day string) (bool, error)
	RecordAlert(ctx context.Context, cityID, vodID, day string) error
}

// Alert is the structured payload emitted when a city's latest VOD lacks
// captions (spec.md §4.13).
type Alert struct {
	Level     string
	City      string
	VODID     string
	Timestamp time.Time
}

// Alerter is the external alerting collaborator (spec.md §1: out of core
// scope, interface defined here).
type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// CityOutcome records what the audit determined for one city, for the
// one-shot CLI's JSON report.
type CityOutcome struct {
	CityID       string `json:"city_id"`
	ShowID       string `json:"show_id,omitempty"`
	VODID        string `json:"vod_id,omitempty"`
	HasCaptions  bool   `json:"has_captions"`
	Inconclusive bool   `json:"inconclusive"`
	Reason       string `json:"reason,omitempty"`
	Alerted      bool   `json:"alerted"`
}

// Report is the full audit run's outcome.
type Report struct {
	RunAt    time.Time     `json:"run_at"`
	Cities   []CityOutcome `json:"cities"`
}

// Auditor runs C13's daily check.
type Auditor struct {
	shows   ShowFinder
	vods    VODFinder
	present CaptionPresence
	dedup   AlertDedup
	alerter Alerter
	servers map[string]config.FlexServer
}

// New constructs an Auditor. servers is keyed by city id (spec.md §3
// "Flex Server").
func New(shows ShowFinder, vods VODFinder, present CaptionPresence, dedup AlertDedup, alerter Alerter, servers map[string]config.FlexServer) *Auditor {
	return &Auditor{shows: shows, vods: vods, present: present, dedup: dedup, alerter: alerter, servers: servers}
}

// Run executes one audit pass across every configured city. A failure
// determining any single city's status is "inconclusive" per spec.md §7,
// not a hard failure of the run, and the run continues to the next city
// (mirroring the scheduler's "one bad mount never halts the others").
func (a *Auditor) Run(ctx context.Context) Report {
	now := time.Now().UTC()
	day := now.Format("2006-01-02")

	report := Report{RunAt: now}
	for cityID, fs := range a.servers {
		outcome := a.checkCity(ctx, cityID, fs, day)
		report.Cities = append(report.Cities, outcome)
	}
	return report
}

func (a *Auditor) checkCity(ctx context.Context, cityID string, fs config.FlexServer, day string) CityOutcome {
	logger := log.WithComponent("audit").With().Str("city_id", cityID).Logger()
	outcome := CityOutcome{CityID: cityID}

	show, ok, err := a.shows.LatestShowForLocation(ctx, fs.ChannelID)
	if err != nil {
		outcome.Inconclusive = true
		outcome.Reason = "show lookup failed: " + err.Error()
		logger.Warn().Err(err).Msg("audit: show lookup inconclusive")
		return outcome
	}
	if !ok {
		outcome.Inconclusive = true
		outcome.Reason = "no show found for city"
		return outcome
	}
	outcome.ShowID = show.ID

	vodID, ok, err := a.vods.LatestVODForShow(ctx, show.ID)
	if err != nil {
		outcome.Inconclusive = true
		outcome.Reason = "vod lookup failed: " + err.Error()
		logger.Warn().Err(err).Msg("audit: vod lookup inconclusive")
		return outcome
	}
	if !ok {
		outcome.Inconclusive = true
		outcome.Reason = "no vod mirrored for latest show"
		return outcome
	}
	outcome.VODID = vodID

	has, err := a.present.HasCaptions(ctx, vodID)
	if err != nil {
		outcome.Inconclusive = true
		outcome.Reason = "caption presence check failed: " + err.Error()
		logger.Warn().Err(err).Msg("audit: caption presence inconclusive")
		return outcome
	}
	outcome.HasCaptions = has
	if has {
		return outcome
	}

	already, err := a.dedup.AlertedToday(ctx, cityID, vodID, day)
	if err != nil {
		logger.Warn().Err(err).Msg("audit: alert dedup check failed; alerting anyway")
	}
	if already {
		return outcome
	}

	alert := Alert{Level: "error", City: cityID, VODID: vodID, Timestamp: time.Now().UTC()}
	if err := a.alerter.Alert(ctx, alert); err != nil {
		logger.Error().Err(err).Msg("audit: failed to emit caption-missing alert")
		return outcome
	}
	if err := a.dedup.RecordAlert(ctx, cityID, vodID, day); err != nil {
		logger.Warn().Err(err).Msg("audit: failed to record alert dedup entry")
	}
	outcome.Alerted = true
	return outcome
}
