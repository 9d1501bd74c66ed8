package upstream

import "time"

// Show mirrors spec.md §3's "Upstream Show" entity.
type Show struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DurationS   int       `json:"duration_s"`
	Date        time.Time `json:"date"`
	LocationID  string    `json:"location_id,omitempty"`
	Channel     string    `json:"channel,omitempty"`
}

// VODState enumerates spec.md §3's VOD processing states.
type VODState string

const (
	VODProcessing  VODState = "processing"
	VODUploading   VODState = "uploading"
	VODTranscoding VODState = "transcoding"
	VODCompleted   VODState = "completed"
	VODError       VODState = "error"
	VODReady       VODState = "ready"
)

// VOD mirrors spec.md §3's "Upstream VOD" entity.
type VOD struct {
	ID         string   `json:"id"`
	ShowID     string   `json:"show_id"`
	FileName   string   `json:"file_name"`
	LengthS    int      `json:"length_s"`
	State      VODState `json:"state"`
	Percent    int      `json:"percent"`
	StreamURL  string   `json:"stream_url,omitempty"`
	EmbedURL   string   `json:"embed_url,omitempty"`
	WebVTTURL  string   `json:"webvtt_url,omitempty"`
	QualityID  string   `json:"quality_id,omitempty"`
}

// Chapter mirrors a VOD chapter marker.
type Chapter struct {
	ID          string  `json:"id,omitempty"`
	VODID       string  `json:"vod_id"`
	Title       string  `json:"title"`
	StartS      float64 `json:"start_s"`
	EndS        float64 `json:"end_s"`
	Description string  `json:"description,omitempty"`
}

// Location is an upstream broadcast location.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Quality is an upstream VOD encode quality profile.
type Quality struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RunEntry is one scheduled run (spec.md §4.11's schedule source).
type RunEntry struct {
	ID         string    `json:"id"`
	ShowID     string    `json:"show_id"`
	Channel    string    `json:"channel"`
	LocationID string    `json:"location_id,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}
