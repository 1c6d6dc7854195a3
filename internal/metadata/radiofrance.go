package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	radioFranceEndpoint = "https://openapi.radiofrance.fr/v1/graphql"

	// The station is always bound through a variable, never interpolated.
	nowPlayingQuery = `query NowPlaying($station: StationsEnum!) { live(station: $station) { song { end track { title albumTitle mainArtists } } } }`

	maxResponseBytes = 1 << 20
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type liveResponse struct {
	Data *struct {
		Live *struct {
			Song *struct {
				End   int64 `json:"end"`
				Track struct {
					Title       string   `json:"title"`
					AlbumTitle  string   `json:"albumTitle"`
					MainArtists []string `json:"mainArtists"`
				} `json:"track"`
			} `json:"song"`
		} `json:"live"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// fetchLive runs the now-playing GraphQL query for a station.
func (c *Client) fetchLive(ctx context.Context, station string) (TrackInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(graphQLRequest{
		Query:     nowPlayingQuery,
		Variables: map[string]any{"station": station},
	})
	if err != nil {
		return TrackInfo{}, fmt.Errorf("%w: encode query: %w", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.radioFranceURL, bytes.NewReader(body))
	if err != nil {
		return TrackInfo{}, fmt.Errorf("%w: create request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-token", c.radioFranceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TrackInfo{}, fmt.Errorf("%w: radio france request: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return TrackInfo{}, fmt.Errorf("%w: radio france status %d: %s", ErrUnavailable, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var payload liveResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return TrackInfo{}, fmt.Errorf("%w: decode radio france response: %w", ErrUnavailable, err)
	}
	if len(payload.Errors) > 0 {
		return TrackInfo{}, fmt.Errorf("%w: graphql: %s", ErrUnavailable, payload.Errors[0].Message)
	}
	if payload.Data == nil || payload.Data.Live == nil {
		return TrackInfo{}, fmt.Errorf("%w: missing live data for %s", ErrUnavailable, station)
	}
	song := payload.Data.Live.Song
	if song == nil {
		return TrackInfo{}, fmt.Errorf("%w (station %s)", ErrNoLiveSong, station)
	}

	return TrackInfo{
		Title:      song.Track.Title,
		AlbumTitle: song.Track.AlbumTitle,
		Artists:    song.Track.MainArtists,
		End:        song.End,
	}, nil
}
