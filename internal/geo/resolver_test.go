package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/automize/chat-support-backend/internal/config"
)

func testCfg(ipURL, revURL string) config.GeoConfig {
	return config.GeoConfig{
		IPLookupURL:    ipURL,
		ReverseURL:     revURL,
		IPTimeout:      2 * time.Second,
		ReverseTimeout: 2 * time.Second,
		UserAgent:      "test-agent/1.0",
	}
}

func TestPublicIP(t *testing.T) {
	public := []string{"203.0.113.9", "2001:db8::1", " 8.8.8.8 "}
	for _, ip := range public {
		if !PublicIP(ip) {
			t.Fatalf("%q should be public", ip)
		}
	}
	private := []string{"", "not-an-ip", "127.0.0.1", "10.0.0.5", "192.168.1.1", "172.16.0.1", "0.0.0.0", "::1", "fe80::1"}
	for _, ip := range private {
		if PublicIP(ip) {
			t.Fatalf("%q should be skipped", ip)
		}
	}
}

func TestFromIP_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/203.0.113.9" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","country":"Belgium","countryCode":"be","regionName":"Brussels-Capital","city":"Brussels","lat":50.85,"lon":4.35}`))
	}))
	defer srv.Close()

	r := New(testCfg(srv.URL, ""))
	loc := r.FromIP(context.Background(), "203.0.113.9")
	if loc == nil {
		t.Fatalf("expected location")
	}
	if loc.Country != "Belgium" || loc.CountryCode != "BE" || loc.City != "Brussels" || loc.Region != "Brussels-Capital" {
		t.Fatalf("unexpected location: %+v", loc)
	}
	if loc.Source != "ip" {
		t.Fatalf("source = %q", loc.Source)
	}
	if loc.Latitude == nil || *loc.Latitude != 50.85 {
		t.Fatalf("latitude not carried")
	}
}

func TestFromIP_SkipsPrivateAndFailures(t *testing.T) {
	r := New(testCfg("http://127.0.0.1:0", ""))

	// Private IP: no lookup at all.
	if loc := r.FromIP(context.Background(), "192.168.0.10"); loc != nil {
		t.Fatalf("private ip must resolve to nil")
	}

	// Upstream "fail" status degrades to nil.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail"}`))
	}))
	defer srv.Close()
	r = New(testCfg(srv.URL, ""))
	if loc := r.FromIP(context.Background(), "203.0.113.9"); loc != nil {
		t.Fatalf("fail status must resolve to nil")
	}

	// Non-200 degrades to nil.
	srv500 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv500.Close()
	r = New(testCfg(srv500.URL, ""))
	if loc := r.FromIP(context.Background(), "203.0.113.9"); loc != nil {
		t.Fatalf("500 must resolve to nil")
	}
}

func TestFromCoordinates_LocalityPriority(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "test-agent/1.0" {
			t.Fatalf("user agent not forwarded, got %q", ua)
		}
		// No city key; town should win over village.
		_, _ = w.Write([]byte(`{"address":{"town":"Leuven","village":"Ignored","province":"Flemish Brabant","country":"Belgium","country_code":"be"}}`))
	}))
	defer srv.Close()

	r := New(testCfg("", srv.URL))
	loc := r.FromCoordinates(context.Background(), 50.87, 4.70)
	if loc == nil {
		t.Fatalf("expected location")
	}
	if loc.City != "Leuven" {
		t.Fatalf("locality priority broken, city = %q", loc.City)
	}
	if loc.Region != "Flemish Brabant" {
		t.Fatalf("region priority broken, region = %q", loc.Region)
	}
	if loc.CountryCode != "BE" || loc.Source != "gps" {
		t.Fatalf("unexpected location: %+v", loc)
	}
}

func TestFromCoordinates_EmptyAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"address":{}}`))
	}))
	defer srv.Close()

	r := New(testCfg("", srv.URL))
	if loc := r.FromCoordinates(context.Background(), 0, 0); loc != nil {
		t.Fatalf("empty address must resolve to nil")
	}
}
