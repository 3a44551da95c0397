// Package geo resolves visitor IP addresses and GPS coordinates to coarse
// locations (country/city/region) using external HTTP services.
//
// Both lookups are best-effort enrichments: any network failure, timeout, or
// non-success response degrades to an absent result. Callers never see an
// error from this package, and absence must never block session creation or
// message saving.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/automize/chat-support-backend/internal/config"
)

// Location is a coarse visitor location. Fields are left empty when the
// upstream service does not report them.
type Location struct {
	Country     string   `json:"country,omitempty"`
	CountryCode string   `json:"country_code,omitempty"`
	City        string   `json:"city,omitempty"`
	Region      string   `json:"region,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Source      string   `json:"source"`
}

// Resolver performs IP geolocation and reverse geocoding against the
// configured endpoints. The zero value is not usable; construct with New.
type Resolver struct {
	cfg       config.GeoConfig
	ipClient  *http.Client
	revClient *http.Client
}

// New constructs a Resolver with per-service timeouts from cfg.
func New(cfg config.GeoConfig) *Resolver {
	return &Resolver{
		cfg:       cfg,
		ipClient:  &http.Client{Timeout: cfg.IPTimeout},
		revClient: &http.Client{Timeout: cfg.ReverseTimeout},
	}
}

// ipLookupResponse mirrors the ip-api.com JSON shape.
type ipLookupResponse struct {
	Status      string  `json:"status"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// FromIP resolves an IP address to a location with source tag "ip".
// It returns nil for private, loopback, or unparsable addresses and for any
// upstream failure.
func (r *Resolver) FromIP(ctx context.Context, ip string) *Location {
	if !PublicIP(ip) {
		return nil
	}

	u := fmt.Sprintf("%s/%s?fields=status,country,countryCode,regionName,city,lat,lon",
		strings.TrimRight(r.cfg.IPLookupURL, "/"), url.PathEscape(ip))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil
	}
	resp, err := r.ipClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("ip geolocation lookup failed")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var body ipLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil
	}
	if body.Status != "success" {
		return nil
	}

	lat, lon := body.Lat, body.Lon
	return &Location{
		Country:     body.Country,
		CountryCode: strings.ToUpper(body.CountryCode),
		City:        body.City,
		Region:      body.RegionName,
		Latitude:    &lat,
		Longitude:   &lon,
		Source:      "ip",
	}
}

// reverseResponse mirrors the Nominatim reverse-geocoding JSON shape. The
// locality appears under different keys depending on the place type.
type reverseResponse struct {
	Address struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		County       string `json:"county"`
		State        string `json:"state"`
		Province     string `json:"province"`
		Region       string `json:"region"`
		Country      string `json:"country"`
		CountryCode  string `json:"country_code"`
	} `json:"address"`
}

// FromCoordinates reverse-geocodes a latitude/longitude pair to a location
// with source tag "gps". The locality field is normalized across the possible
// response keys by priority: city > town > village > municipality > county;
// the region by state > province > region. Returns nil on any failure.
func (r *Resolver) FromCoordinates(ctx context.Context, lat, lon float64) *Location {
	u := fmt.Sprintf("%s?format=json&lat=%f&lon=%f&zoom=10&accept-language=en",
		r.cfg.ReverseURL, lat, lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil
	}
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}
	resp, err := r.revClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Float64("lat", lat).Float64("lon", lon).Msg("reverse geocode failed")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil
	}
	addr := body.Address
	if addr.Country == "" && addr.City == "" && addr.Town == "" && addr.Village == "" {
		return nil
	}

	return &Location{
		Country:     addr.Country,
		CountryCode: strings.ToUpper(addr.CountryCode),
		City:        firstNonEmpty(addr.City, addr.Town, addr.Village, addr.Municipality, addr.County),
		Region:      firstNonEmpty(addr.State, addr.Province, addr.Region),
		Latitude:    &lat,
		Longitude:   &lon,
		Source:      "gps",
	}
}

// PublicIP reports whether ip parses to a routable unicast address worth
// sending to the geolocation service. Loopback, private, link-local, and
// unspecified addresses are skipped.
func PublicIP(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() ||
		parsed.IsLinkLocalUnicast() || parsed.IsLinkLocalMulticast() {
		return false
	}
	return true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
