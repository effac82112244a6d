package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gps_hyperlapse/internal/geo"
	"gps_hyperlapse/internal/hyperlapse"
)

type elevationLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type elevationRequest struct {
	Locations []elevationLocation `json:"locations"`
}

type elevationResponse struct {
	Results []struct {
		Elevation float64 `json:"elevation"`
	} `json:"results"`
}

// openElevation looks up ground elevation with one POST per batch against an
// Open-Elevation compatible lookup endpoint.
type openElevation struct {
	url    string
	client *http.Client
}

func newOpenElevation(cfg ElevationConfig) *openElevation {
	return &openElevation{url: cfg.URL, client: &http.Client{Timeout: 30 * time.Second}}
}

func (e *openElevation) BatchElevation(ctx context.Context, locations []geo.Point) ([]float64, error) {
	body := elevationRequest{Locations: make([]elevationLocation, len(locations))}
	for i, l := range locations {
		body.Locations[i] = elevationLocation{Latitude: l.Lat, Longitude: l.Lng}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevation lookup: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("elevation lookup: %w", hyperlapse.ErrOverQuota)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("elevation lookup: status %d", resp.StatusCode)
	}

	var out elevationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode elevation response: %w", err)
	}
	if len(out.Results) != len(locations) {
		return nil, fmt.Errorf("elevation lookup returned %d results for %d locations", len(out.Results), len(locations))
	}
	elevations := make([]float64, len(out.Results))
	for i, r := range out.Results {
		elevations[i] = r.Elevation
	}
	return elevations, nil
}
