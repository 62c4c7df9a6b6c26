// Copyright 2025 Lexigate
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metering

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lexigate/shared/logger"
	"lexigate/store"
)

const (
	publicIPEndpoint = "https://api.ipify.org?format=json"
	geoEndpoint      = "http://ip-api.com/json/"
)

// HTTPClient is an interface for HTTP client operations (enables testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// GeoResolver enriches ledger entries with request origin data. Every
// lookup is best effort: failures are logged and the record is written
// without location.
type GeoResolver struct {
	client HTTPClient
	log    *logger.Logger
}

// NewGeoResolver builds a resolver with a short-timeout HTTP client.
func NewGeoResolver() *GeoResolver {
	return &GeoResolver{
		client: &http.Client{Timeout: 5 * time.Second},
		log:    logger.New("metering.geo"),
	}
}

// SetHTTPClient sets a custom HTTP client for testing.
func (g *GeoResolver) SetHTTPClient(client HTTPClient) {
	g.client = client
}

// isLocal reports whether the hint cannot be geolocated directly.
func isLocal(ip string) bool {
	return ip == "" ||
		ip == "127.0.0.1" ||
		ip == "::1" ||
		ip == "Unknown" ||
		strings.HasPrefix(ip, "localhost")
}

// Resolve maps an IP hint (usually from x-forwarded-for) to the
// caller's public IP and geolocation. Loopback and unknown hints fall
// back to the gateway's own public address.
func (g *GeoResolver) Resolve(ctx context.Context, ipHint string) (string, *store.GeoLocation) {
	ip := ipHint
	if isLocal(ip) {
		public, err := g.publicIP(ctx)
		if err != nil {
			g.log.Warn("", "", "public IP fallback failed", map[string]interface{}{
				"error": err.Error(),
			})
			if ip == "" {
				ip = "Unknown"
			}
		} else {
			ip = public
		}
	}

	location, err := g.locate(ctx, ip)
	if err != nil {
		g.log.Warn("", "", "geolocation lookup failed", map[string]interface{}{
			"ip":    ip,
			"error": err.Error(),
		})
		return ip, nil
	}
	return ip, location
}

func (g *GeoResolver) publicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, publicIPEndpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var payload struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.IP == "" {
		return "", fmt.Errorf("empty public IP response")
	}
	return payload.IP, nil
}

func (g *GeoResolver) locate(ctx context.Context, ip string) (*store.GeoLocation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, geoEndpoint+ip, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var payload struct {
		Status      string  `json:"status"`
		Lat         float64 `json:"lat"`
		Lon         float64 `json:"lon"`
		City        string  `json:"city"`
		RegionName  string  `json:"regionName"`
		Country     string  `json:"country"`
		CountryCode string  `json:"countryCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Status != "success" {
		return nil, fmt.Errorf("geolocation status %q for %s", payload.Status, ip)
	}

	return &store.GeoLocation{
		Lat:         payload.Lat,
		Lon:         payload.Lon,
		City:        payload.City,
		Region:      payload.RegionName,
		Country:     payload.Country,
		CountryCode: payload.CountryCode,
	}, nil
}
