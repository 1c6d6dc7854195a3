package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	lastFMEndpoint = "https://ws.audioscrobbler.com/2.0/"

	// lastFMTrackNotFound is the API error code for an unknown track. It is a
	// valid answer, not an outage.
	lastFMTrackNotFound = 6
)

type lastFMImage struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}

type lastFMTrackInfo struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
	Track   struct {
		URL   string `json:"url"`
		Album struct {
			Image []lastFMImage `json:"image"`
		} `json:"album"`
	} `json:"track"`
}

// coverURL returns the last non-empty image, which Last.fm orders from the
// smallest to the largest size.
func (i lastFMTrackInfo) coverURL() string {
	images := i.Track.Album.Image
	for j := len(images) - 1; j >= 0; j-- {
		if images[j].URL != "" {
			return images[j].URL
		}
	}
	return ""
}

// lookupTrack calls track.getInfo for an artist and title.
func (c *Client) lookupTrack(ctx context.Context, artist, title string) (lastFMTrackInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("method", "track.getInfo")
	q.Set("api_key", c.lastFMKey)
	q.Set("artist", artist)
	q.Set("track", title)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.lastFMURL+"?"+q.Encode(), nil)
	if err != nil {
		return lastFMTrackInfo{}, fmt.Errorf("metadata: create last.fm request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return lastFMTrackInfo{}, fmt.Errorf("metadata: last.fm request: %w", err)
	}
	defer resp.Body.Close()

	var info lastFMTrackInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&info); err != nil {
		return lastFMTrackInfo{}, fmt.Errorf("metadata: decode last.fm response (status %d): %w", resp.StatusCode, err)
	}
	switch {
	case info.Error == lastFMTrackNotFound:
		return lastFMTrackInfo{}, nil
	case info.Error != 0:
		return lastFMTrackInfo{}, fmt.Errorf("metadata: last.fm error %d: %s", info.Error, info.Message)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return lastFMTrackInfo{}, fmt.Errorf("metadata: last.fm status %d", resp.StatusCode)
	}
	return info, nil
}
