/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal HTTP client for the sync API, used by the CLI under
// a feature flag.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a new sync client. baseURL may include a trailing
// slash; it will be normalized.
func NewClient(baseURL string, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server %s %s: %s", method, u.Path, resp.Status)
	}
	if dest == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	return dec.Decode(dest)
}

// Story is a minimal projection for listing.
type Story struct {
	ID        int64     `json:"id"`
	StableID  string    `json:"stable_id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListStories returns the stories known to the server.
func (c *Client) ListStories(ctx context.Context) ([]Story, error) {
	var list []Story
	if err := c.doJSON(ctx, http.MethodGet, "/api/stories", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// SaveEnvelope matches the server response for the latest save of a story.
type SaveEnvelope struct {
	StoryID     int64           `json:"story_id"`
	Fingerprint string          `json:"fingerprint"`
	CreatedAt   string          `json:"created_at"`
	Subject     string          `json:"subject"`
	Snapshot    json.RawMessage `json:"snapshot"`
}

// GetLatestSave fetches the most recent uploaded save for a story.
func (c *Client) GetLatestSave(ctx context.Context, storyID int64) (*SaveEnvelope, error) {
	var env SaveEnvelope
	path := fmt.Sprintf("/api/stories/%d/save", storyID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// PushSave uploads a serialized engine state for a story.
func (c *Client) PushSave(ctx context.Context, storyID int64, fingerprint string, snapshot []byte) error {
	path := fmt.Sprintf("/api/stories/%d/save", storyID)
	body := map[string]any{
		"fingerprint": fingerprint,
		"snapshot":    json.RawMessage(snapshot),
	}
	return c.doJSON(ctx, http.MethodPut, path, body, nil)
}
