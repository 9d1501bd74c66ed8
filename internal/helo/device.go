// Package helo implements C11: driving AJA HELO capture devices from
// upstream run schedules, grounded structurally on xg2g's
// internal/openwebif.Client (short per-device HTTP calls, same retry
// discipline as the upstream broadcast client).
package helo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flexcoop/archivist/internal/errs"
)

// DeviceOptions configures one DeviceClient.
type DeviceOptions struct {
	IP         string
	User       string
	Password   string
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
}

// DeviceClient drives a single AJA HELO unit's small HTTP control surface.
type DeviceClient struct {
	base       string
	user       string
	password   string
	http       *http.Client
	maxRetries int
	retryBase  time.Duration
}

// NewDeviceClient constructs a client for the device at opts.IP.
func NewDeviceClient(opts DeviceOptions) *DeviceClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	return &DeviceClient{
		base:       "http://" + opts.IP,
		user:       opts.User,
		password:   opts.Password,
		http:       &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBase,
	}
}

func (d *DeviceClient) call(ctx context.Context, method, path string, body interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errs.Wrap(errs.KindDeviceUnavailable, "encode device request", err)
		}
	}

	maxAttempts := d.maxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, d.base+path, reader)
		if err != nil {
			return errs.Wrap(errs.KindDeviceUnavailable, "build device request", err)
		}
		if d.user != "" {
			req.SetBasicAuth(d.user, d.password)
		}

		res, err := d.http.Do(req)
		if err == nil {
			io.Copy(io.Discard, io.LimitReader(res.Body, 4096)) //nolint:errcheck
			res.Body.Close()
			if res.StatusCode >= 200 && res.StatusCode < 300 {
				return nil
			}
			lastErr = fmt.Errorf("device returned status %d", res.StatusCode)
			if res.StatusCode < 500 {
				return errs.Wrap(errs.KindDeviceUnavailable, "device rejected request", lastErr)
			}
		} else {
			lastErr = err
		}

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.retryBase << uint(attempt-1)):
			}
		}
	}
	return errs.Wrap(errs.KindDeviceUnavailable, "device unreachable after retries", lastErr)
}

// StartRecord begins local recording on the device.
func (d *DeviceClient) StartRecord(ctx context.Context) error {
	return d.call(ctx, http.MethodPost, "/control/record/start", nil)
}

// StopRecord stops local recording.
func (d *DeviceClient) StopRecord(ctx context.Context) error {
	return d.call(ctx, http.MethodPost, "/control/record/stop", nil)
}

// StartStream begins RTMP streaming.
func (d *DeviceClient) StartStream(ctx context.Context) error {
	return d.call(ctx, http.MethodPost, "/control/stream/start", nil)
}

// StopStream stops RTMP streaming.
func (d *DeviceClient) StopStream(ctx context.Context) error {
	return d.call(ctx, http.MethodPost, "/control/stream/stop", nil)
}

// SetRTMP configures the destination RTMP URL and stream key.
func (d *DeviceClient) SetRTMP(ctx context.Context, rtmpURL, key string) error {
	return d.call(ctx, http.MethodPost, "/control/rtmp", map[string]string{"url": rtmpURL, "key": key})
}

// Status is the device's reported operating state.
type Status struct {
	Recording bool   `json:"recording"`
	Streaming bool   `json:"streaming"`
	State     string `json:"state"`
}

// Status fetches the device's current operating state.
func (d *DeviceClient) Status(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.base+"/control/status", nil)
	if err != nil {
		return Status{}, errs.Wrap(errs.KindDeviceUnavailable, "build status request", err)
	}
	if d.user != "" {
		req.SetBasicAuth(d.user, d.password)
	}
	res, err := d.http.Do(req)
	if err != nil {
		return Status{}, errs.Wrap(errs.KindDeviceUnavailable, "status request failed", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return Status{}, errs.New(errs.KindDeviceUnavailable, fmt.Sprintf("status returned %d", res.StatusCode))
	}

	var s Status
	if err := json.NewDecoder(res.Body).Decode(&s); err != nil {
		return Status{}, errs.Wrap(errs.KindDeviceUnavailable, "decode status response", err)
	}
	return s, nil
}
