// Package config's Config aggregates every environment-provided setting
// enumerated in spec.md §6. It is populated once at startup and passed
// explicitly to components as an application context (spec.md §9 — no
// global config singleton), the way xg2g's internal/config.Config is built
// then threaded through daemon.Deps.
package config

import (
	"fmt"
	"strings"
)

// FlexServer describes one of the nine city-specific flex-server mounts
// (spec.md §3 "Flex Server").
type FlexServer struct {
	CityID      string
	DisplayName string
	MountPath   string
	ChannelID   string
	Aliases     []string
}

// HeloDevice describes one AJA HELO capture device (spec.md §3 "HELO Device").
type HeloDevice struct {
	CityID          string
	IP              string
	User            string
	Password        string
	RTMPURL         string
	StreamKey       string
	UpstreamChannel string
}

// CaptionModel configures the pluggable speech-to-text adapter (C3).
type CaptionModel struct {
	Model       string
	BinaryPath  string
	UseGPU      bool
	ComputeHint string
	BatchHint   string
	Language    string
	OutputDir   string
}

// Upstream configures the broadcast/VOD platform client (C9).
type Upstream struct {
	BaseURL      string
	User         string
	Password     string
	BearerToken  string
	LocationID   string
	Timeout      int // seconds
	MaxRetries   int
	RetryBaseSec int
}

// SeenStore configures the idempotence backing stores (C2).
type SeenStore struct {
	RedisURL      string
	TTLSeconds    int
	LocalStatePath string
}

// Scheduler configures cadences (C6).
type Scheduler struct {
	SweepIntervalSec  int
	DailyAnchorLocal  string // "HH:MM" in America/Chicago by default
	AuditIntervalSec  int
	Timezone          string
}

// Helo configures HELO scheduling (C11).
type Helo struct {
	PreRollSec         int
	LookaheadMinutes   int
	EnableRuntimeTrigger bool
	SyncIntervalMinutes int
}

// Worker configures the job queue & worker pool (C5).
type Worker struct {
	Count        int
	MaxRetries   int
	RetryBaseSec int
	RetryCapSec  int
}

// LinkStore configures the show/VOD mirror and link database (C8).
type LinkStore struct {
	DBPath string
}

// Config is the fully resolved application configuration.
type Config struct {
	FlexServers  map[string]FlexServer // keyed by CityID, e.g. "flex-1"
	CaptionModel CaptionModel
	Upstream     Upstream
	HeloDevices  map[string]HeloDevice
	SeenStore    SeenStore
	Scheduler    Scheduler
	Helo         Helo
	Worker       Worker
	LinkStore    LinkStore
}

var cityIDs = []string{"flex-1", "flex-2", "flex-3", "flex-4", "flex-5", "flex-6", "flex-7", "flex-8", "flex-9"}

// envKey turns "flex-3" into "FLEX_3" for building per-city env var names.
func envKey(cityID string) string {
	return strings.ToUpper(strings.ReplaceAll(cityID, "-", "_"))
}

// Load reads Config from the process environment and validates it,
// aggregating every field error into a single report rather than failing
// on the first bad value, mirroring xg2g's config.Validate pattern of
// collecting all problems before returning.
func Load() (Config, error) {
	cfg := Config{
		FlexServers: make(map[string]FlexServer, len(cityIDs)),
		HeloDevices: make(map[string]HeloDevice, len(cityIDs)),
		CaptionModel: CaptionModel{
			Model:       parseString("CAPTION_MODEL", "whisper-base"),
			BinaryPath:  parseString("CAPTION_MODEL_BINARY", "archivist-transcribe"),
			UseGPU:      parseBool("USE_GPU", false),
			ComputeHint: parseString("COMPUTE_HINT", "auto"),
			BatchHint:   parseString("BATCH_HINT", "auto"),
			Language:    parseString("LANGUAGE", "en"),
			OutputDir:   parseString("OUTPUT_DIR", ""),
		},
		Upstream: Upstream{
			BaseURL:      parseString("UPSTREAM_BASE_URL", ""),
			User:         parseString("UPSTREAM_USER", ""),
			Password:     parseString("UPSTREAM_PASSWORD", ""),
			LocationID:   parseString("UPSTREAM_LOCATION_ID", ""),
			Timeout:      parseInt("UPSTREAM_TIMEOUT_S", 30),
			MaxRetries:   parseInt("UPSTREAM_MAX_RETRIES", 3),
			RetryBaseSec: parseInt("UPSTREAM_RETRY_BASE_S", 1),
		},
		SeenStore: SeenStore{
			RedisURL:       parseString("SEEN_STORE_URL", ""),
			TTLSeconds:     parseInt("SEEN_STORE_TTL_S", 7*24*3600),
			LocalStatePath: parseString("LOCAL_STATE_PATH", ".state/autoprioritize_direct.json"),
		},
		Scheduler: Scheduler{
			SweepIntervalSec: parseInt("SCHEDULER_SWEEP_INTERVAL_S", 5*60),
			DailyAnchorLocal: parseString("DAILY_ANCHOR_LOCAL_TIME", "23:00"),
			AuditIntervalSec: parseInt("AUDIT_INTERVAL_S", 24*3600),
			Timezone:         parseString("SCHEDULER_TIMEZONE", "America/Chicago"),
		},
		Helo: Helo{
			PreRollSec:           parseInt("HELO_PREROLL_S", 60),
			LookaheadMinutes:     parseInt("HELO_LOOKAHEAD_MIN", 120),
			EnableRuntimeTrigger: parseBool("HELO_ENABLE_RUNTIME_TRIGGERS", true),
			SyncIntervalMinutes:  parseInt("HELO_SYNC_INTERVAL_MIN", 15),
		},
		Worker: Worker{
			Count:        parseInt("WORKER_COUNT", 2),
			MaxRetries:   parseInt("JOB_MAX_RETRIES", 3),
			RetryBaseSec: parseInt("JOB_RETRY_BASE_S", 60),
			RetryCapSec:  parseInt("JOB_RETRY_CAP_S", 3600),
		},
		LinkStore: LinkStore{
			DBPath: parseString("LINKSTORE_DB_PATH", "./archivist.db"),
		},
	}

	for _, id := range cityIDs {
		k := envKey(id)
		mount := parseString(k+"_MOUNT", "")
		if mount == "" {
			continue // city not configured on this deployment
		}
		cfg.FlexServers[id] = FlexServer{
			CityID:      id,
			DisplayName: parseString(k+"_NAME", id),
			MountPath:   mount,
			ChannelID:   parseString(k+"_CHANNEL", ""),
			Aliases:     parseCSV(k + "_ALIASES"),
		}
		if ip := parseString("HELO_"+k+"_IP", ""); ip != "" {
			cfg.HeloDevices[id] = HeloDevice{
				CityID:          id,
				IP:              ip,
				User:            parseString("HELO_"+k+"_USER", ""),
				Password:        parseString("HELO_"+k+"_PASSWORD", ""),
				RTMPURL:         parseString("HELO_"+k+"_RTMP_URL", ""),
				StreamKey:       parseString("HELO_"+k+"_STREAM_KEY", ""),
				UpstreamChannel: parseString("HELO_"+k+"_UPSTREAM_CHANNEL", ""),
			}
		}
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// Validate checks invariants from spec.md §3 (distinct mount paths, stable
// city identifiers) and returns every problem found, not just the first.
func (c Config) Validate() []string {
	var errs []string

	if len(c.FlexServers) == 0 {
		errs = append(errs, "no flex servers configured (expected at least one FLEX_N_MOUNT)")
	}

	seenMounts := make(map[string]string, len(c.FlexServers))
	for id, fs := range c.FlexServers {
		if fs.MountPath == "" {
			errs = append(errs, fmt.Sprintf("%s: empty mount path", id))
			continue
		}
		if other, ok := seenMounts[fs.MountPath]; ok {
			errs = append(errs, fmt.Sprintf("%s and %s share mount path %q", id, other, fs.MountPath))
		}
		seenMounts[fs.MountPath] = id
	}

	if c.Upstream.BaseURL == "" {
		errs = append(errs, "UPSTREAM_BASE_URL is required")
	}
	if c.Upstream.MaxRetries < 0 {
		errs = append(errs, "UPSTREAM_MAX_RETRIES must be >= 0")
	}
	if c.Worker.Count < 1 {
		errs = append(errs, "WORKER_COUNT must be >= 1")
	}
	if c.LinkStore.DBPath == "" {
		errs = append(errs, "LINKSTORE_DB_PATH must not be empty")
	}

	return errs
}
