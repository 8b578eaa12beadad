/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in usage events and crash reports. Everything
// is off unless both the opt-in flag and an endpoint URL are configured, and
// nothing here ever blocks or fails a running story: full queues drop, send
// errors are logged at debug and forgotten.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	applog "scenarist/internal/log"
	"scenarist/internal/version"
)

// Config is read from the environment:
//
//	SCN_TELEMETRY_OPT_IN      "1"/"true"/"yes"/"on" enables sending
//	SCN_TELEMETRY_URL         endpoint for JSON usage events
//	SCN_CRASH_UPLOAD_URL      endpoint for plain-text crash reports
//	SCN_TELEMETRY_TIMEOUT_MS  per-request timeout, default 1500
type Config struct {
	OptIn     bool
	EventsURL string
	CrashURL  string
	Timeout   time.Duration
}

func FromEnv() Config {
	cfg := Config{
		OptIn:     optedIn(os.Getenv("SCN_TELEMETRY_OPT_IN")),
		EventsURL: strings.TrimSpace(os.Getenv("SCN_TELEMETRY_URL")),
		CrashURL:  strings.TrimSpace(os.Getenv("SCN_CRASH_UPLOAD_URL")),
		Timeout:   1500 * time.Millisecond,
	}
	if ms := strings.TrimSpace(os.Getenv("SCN_TELEMETRY_TIMEOUT_MS")); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil {
			cfg.Timeout = v
		}
	}
	return cfg
}

func optedIn(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// payload is the wire shape of one usage event. Props must not carry
// anything user-identifying; callers only pass counts and flags.
type payload struct {
	Name    string         `json:"name"`
	TS      string         `json:"ts"`
	Version string         `json:"version"`
	OS      string         `json:"os"`
	Arch    string         `json:"arch"`
	Props   map[string]any `json:"props,omitempty"`
}

// Client queues events onto a bounded channel drained by one worker
// goroutine. Crash uploads bypass the queue; they happen while the process
// is already going down.
type Client struct {
	cfg  Config
	log  *slog.Logger
	http *http.Client

	queue    chan payload
	inflight sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config) *Client {
	c := &Client{
		cfg:   cfg,
		log:   applog.WithComponent("telemetry"),
		http:  &http.Client{Timeout: cfg.Timeout},
		queue: make(chan payload, 64),
		stop:  make(chan struct{}),
	}
	go c.drain()
	return c
}

// Enabled reports whether usage events would actually be sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Event queues one usage event. When the queue is full the event is dropped.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	p := payload{
		Name:    name,
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Version: version.String(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
		Props:   props,
	}
	c.inflight.Add(1)
	select {
	case c.queue <- p:
	default:
		c.inflight.Done()
	}
}

// Flush waits until queued events have been sent, bounded by ctx and a
// half-second cap.
func (c *Client) Flush(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
	}
}

// Close stops the worker; anything still queued is abandoned.
func (c *Client) Close() { c.stopOnce.Do(func() { close(c.stop) }) }

func (c *Client) drain() {
	for {
		select {
		case <-c.stop:
			return
		case p := <-c.queue:
			buf, err := json.Marshal(p)
			if err == nil {
				c.post(c.cfg.EventsURL, "application/json", buf)
			}
			c.inflight.Done()
		}
	}
}

// UploadCrash posts a serialized crash report, asynchronously and best-effort.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	body := append([]byte(nil), report...)
	go c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", body)
}

func (c *Client) post(url, contentType string, body []byte) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("telemetry post failed", slog.String("url", url), slog.Any("err", err))
		return
	}
	_ = resp.Body.Close()
}

var (
	defaultClient *Client
	defaultOnce   sync.Once
)

func fromEnvClient() *Client {
	defaultOnce.Do(func() { defaultClient = New(FromEnv()) })
	return defaultClient
}

// Event queues a usage event on the env-configured default client.
func Event(name string, props map[string]any) { fromEnvClient().Event(name, props) }

// UploadCrash posts a crash report via the env-configured default client.
func UploadCrash(report []byte) { fromEnvClient().UploadCrash(report) }
