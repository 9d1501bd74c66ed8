// Package main wires cmd/archivist's one-shot and long-running
// subcommands, grounded on xg2g's cmd/daemon wiring split across
// api_wiring.go/pipeline_wiring.go: dependency construction kept in its
// own file, separate from the cobra command definitions themselves.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/flexcoop/archivist/internal/audit"
	"github.com/flexcoop/archivist/internal/caption"
	"github.com/flexcoop/archivist/internal/config"
	"github.com/flexcoop/archivist/internal/counters"
	"github.com/flexcoop/archivist/internal/flexscan"
	"github.com/flexcoop/archivist/internal/helo"
	"github.com/flexcoop/archivist/internal/jobqueue"
	"github.com/flexcoop/archivist/internal/linkstore"
	"github.com/flexcoop/archivist/internal/log"
	"github.com/flexcoop/archivist/internal/monitor"
	"github.com/flexcoop/archivist/internal/scheduler"
	"github.com/flexcoop/archivist/internal/seenset"
	"github.com/flexcoop/archivist/internal/showmatch"
	"github.com/flexcoop/archivist/internal/upstream"
	"github.com/flexcoop/archivist/internal/vodenrich"
)

// App bundles every component a subcommand might need. Subcommands use
// only the slice of the graph their operation touches.
type App struct {
	Config config.Config
	Logger zerolog.Logger

	Upstream *upstream.Client
	Links    *linkstore.Store
	SeenSet  seenset.Store
	Scanner  *flexscan.Scanner
	Matcher  *showmatch.Matcher
	Model    caption.ModelAdapter
	Enrich   *vodenrich.Enrichment
	Counters *counters.Sink
	Queue    *jobqueue.Queue
	Devices  map[string]*helo.DeviceClient
	Monitor  *monitor.Manager
	Auditor  *audit.Auditor

	redisClients []*redis.Client
}

// Close releases held resources (DB handle, Redis connections). Safe to
// call on a partially built App.
func (a *App) Close() {
	if a.Links != nil {
		_ = a.Links.Close()
	}
	for _, c := range a.redisClients {
		_ = c.Close()
	}
}

// bootstrapLogger configures the process-wide logger once, before any
// component construction, the way xg2g's daemon main() configures
// xglog.Configure with safe defaults ahead of config-dependent wiring.
func bootstrapLogger(cfg config.Config) {
	log.Configure(log.Config{
		Level:   "info",
		Service: "archivist",
		Version: version,
	})
}

// buildApp constructs the full dependency graph from cfg, the way
// buildAPIConstructorDeps assembles daemon.Deps from config.AppConfig.
func buildApp(cfg config.Config) (*App, error) {
	logger := log.WithComponent("app")

	app := &App{Config: cfg, Logger: logger}

	links, err := linkstore.NewStore(cfg.LinkStore.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open link store: %w", err)
	}
	app.Links = links

	app.SeenSet = buildSeenSet(cfg, app)
	app.Counters = buildCounters(cfg, app)

	app.Upstream = upstream.New(upstream.Options{
		BaseURL:     cfg.Upstream.BaseURL,
		User:        cfg.Upstream.User,
		Password:    cfg.Upstream.Password,
		BearerToken: cfg.Upstream.BearerToken,
		Timeout:     time.Duration(cfg.Upstream.Timeout) * time.Second,
		MaxRetries:  cfg.Upstream.MaxRetries,
		RetryBase:   time.Duration(cfg.Upstream.RetryBaseSec) * time.Second,
	})

	app.Scanner = flexscan.New(cfg.FlexServers)
	app.Matcher = showmatch.New(upstream.ShowLister{Client: app.Upstream})
	app.Model = caption.NewCommandAdapter(cfg.CaptionModel.BinaryPath)
	app.Enrich = vodenrich.New(app.Upstream)
	app.Queue = jobqueue.New()

	app.Devices = make(map[string]*helo.DeviceClient, len(cfg.HeloDevices))
	for cityID, d := range cfg.HeloDevices {
		app.Devices[cityID] = helo.NewDeviceClient(helo.DeviceOptions{
			IP:       d.IP,
			User:     d.User,
			Password: d.Password,
		})
	}

	app.Monitor = buildMonitor(cfg, app)
	app.Auditor = audit.New(
		auditShowFinder{client: app.Upstream},
		app.Links,
		app.Upstream,
		app.Links,
		logAlerter{logger: logger},
		cfg.FlexServers,
	)

	return app, nil
}

// buildSeenSet wires C2's composite store: Redis primary (if configured)
// plus an always-present local-file fallback, mirroring xg2g's
// cache.RedisCache-with-graceful-fallback shape.
func buildSeenSet(cfg config.Config, app *App) seenset.Store {
	logger := log.WithComponent("app")
	stores := make([]seenset.Store, 0, 2)

	if cfg.SeenStore.RedisURL != "" {
		rs, err := seenset.NewRedisStore(cfg.SeenStore.RedisURL, "", 0)
		if err != nil {
			logger.Warn().Err(err).Str("redis_url", cfg.SeenStore.RedisURL).
				Msg("seen-set redis unavailable; falling back to local file only")
		} else {
			stores = append(stores, rs)
		}
	}
	stores = append(stores, seenset.NewLocalFileStore(cfg.SeenStore.LocalStatePath))

	return &seenset.Composite{Stores: stores}
}

// buildCounters wires C12's Prometheus-plus-Redis-mirror sink. A nil Redis
// client is a valid Sink (Prometheus-only).
func buildCounters(cfg config.Config, app *App) *counters.Sink {
	if cfg.SeenStore.RedisURL == "" {
		return counters.NewSink(nil)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.SeenStore.RedisURL})
	app.redisClients = append(app.redisClients, client)
	return counters.NewSink(client)
}

// buildMonitor wires C12's health manager: required checks on upstream and
// the link store, optional checks per flex mount and queue depth.
func buildMonitor(cfg config.Config, app *App) *monitor.Manager {
	m := monitor.NewManager(2 * time.Minute)

	m.Register(monitor.NewFuncChecker("upstream", true, func(ctx context.Context) error {
		return app.Upstream.TestConnection(ctx)
	}))
	m.Register(monitor.NewFuncChecker("linkstore", true, func(ctx context.Context) error {
		_, _, err := app.Links.GetLink(ctx, "__healthcheck__")
		return err
	}))

	for _, fs := range cfg.FlexServers {
		m.Register(monitor.FlexMountChecker{City: fs, AsUser: false})
	}

	m.Register(monitor.NewQueueDepthChecker(func() map[string]int {
		stats := app.Queue.Stats()
		out := make(map[string]int, len(stats.CountByState))
		for state, n := range stats.CountByState {
			out[string(state)] = n
		}
		return out
	}))

	return m
}

// heloScheduler builds C11's scheduler over the configured devices. It is
// constructed lazily (not part of buildApp) because only helo-sync and
// worker need it and it requires a CityResolver derived from the flex-server config.
func (a *App) heloScheduler() *helo.Scheduler {
	resolver := helo.CityResolver{
		ChannelToCity:  make(map[string]string, len(a.Config.FlexServers)),
		LocationToCity: make(map[string]string, len(a.Config.FlexServers)),
		CityAliases:    make(map[string][]string, len(a.Config.FlexServers)),
	}
	for cityID, fs := range a.Config.FlexServers {
		if fs.ChannelID != "" {
			resolver.ChannelToCity[fs.ChannelID] = cityID
		}
		resolver.CityAliases[cityID] = fs.Aliases
	}
	if len(a.Devices) == 1 {
		for cityID := range a.Devices {
			resolver.SingleDeviceID = cityID
		}
	}

	return helo.NewScheduler(
		a.Upstream,
		a.Devices,
		resolver,
		time.Duration(a.Config.Helo.LookaheadMinutes)*time.Minute,
		time.Duration(a.Config.Helo.PreRollSec)*time.Second,
	)
}

// newScheduler builds C6's cadence driver for the sweep and helo-sync
// interval tasks, used only by the long-running worker process (the daily
// audit runs on worker's separate anchor loop).
func (a *App) newScheduler() *scheduler.Scheduler {
	return scheduler.New()
}

// auditShowFinder adapts upstream.Client to audit.ShowFinder, converting
// the wire Show type into the audit package's narrow view.
type auditShowFinder struct {
	client *upstream.Client
}

func (f auditShowFinder) LatestShowForLocation(ctx context.Context, location string) (audit.Show, bool, error) {
	s, ok, err := f.client.LatestShowForLocation(ctx, location)
	if err != nil || !ok {
		return audit.Show{}, ok, err
	}
	return audit.Show{ID: s.ID, Title: s.Title, Date: s.Date}, true, nil
}

// logAlerter is the default Alerter: it logs at error level. A future
// integration (email/SMS/chat) can satisfy audit.Alerter without touching
// the Auditor itself.
type logAlerter struct {
	logger zerolog.Logger
}

func (a logAlerter) Alert(ctx context.Context, alert audit.Alert) error {
	a.logger.Error().
		Str("city", alert.City).
		Str("vod_id", alert.VODID).
		Time("timestamp", alert.Timestamp).
		Msg("caption audit: latest VOD has no captions")
	return nil
}
