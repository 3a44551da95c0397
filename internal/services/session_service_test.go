package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/automize/chat-support-backend/internal/domain"
	"github.com/automize/chat-support-backend/internal/geo"
	"github.com/automize/chat-support-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "svc_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Session{}, &domain.Message{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// fakeGeo is a canned GeoResolver for service tests. It counts lookups so
// tests can assert when the resolver is (not) consulted.
type fakeGeo struct {
	ipLoc  *geo.Location
	gpsLoc *geo.Location

	ipCalls  int
	gpsCalls int
}

func (f *fakeGeo) FromIP(context.Context, string) *geo.Location {
	f.ipCalls++
	return f.ipLoc
}

func (f *fakeGeo) FromCoordinates(context.Context, float64, float64) *geo.Location {
	f.gpsCalls++
	return f.gpsLoc
}

func newSvc(t *testing.T) (*SessionService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return &SessionService{DB: db, ChangedLimit: 50}, db
}

func TestValidSessionToken(t *testing.T) {
	valid := []string{"chat_abcdefgh", "chat_k3j5-h2G8_f9d0", "chat_12345678"}
	for _, tok := range valid {
		if !ValidSessionToken(tok) {
			t.Fatalf("%q should be valid", tok)
		}
	}
	invalid := []string{
		"",
		"abcdefgh",            // missing prefix
		"chat_short",          // under 8 chars after prefix
		"chat_has spaces 123", // illegal characters
		"CHAT_abcdefgh",       // prefix is case-sensitive
		"chat_" + strings.Repeat("a", 120), // over the column width
	}
	for _, tok := range invalid {
		if ValidSessionToken(tok) {
			t.Fatalf("%q should be invalid", tok)
		}
	}
}

func TestSaveMessage_ValidationAndDefaults(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()

	if _, err := svc.SaveMessage(ctx, SaveMessageInput{SessionID: "bad", Content: "hi"}); !errors.Is(err, ErrInvalidSessionID) {
		t.Fatalf("expected ErrInvalidSessionID, got %v", err)
	}
	if _, err := svc.SaveMessage(ctx, SaveMessageInput{SessionID: "chat_abcdefgh", Content: "   "}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}

	// Unknown sender roles are stored as "user".
	m, err := svc.SaveMessage(ctx, SaveMessageInput{SessionID: "chat_abcdefgh", Sender: "assistant", Content: "hello"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if m.Sender != domain.SenderUser {
		t.Fatalf("sender = %q, want user", m.Sender)
	}
}

func TestSaveMessage_EnsuresSessionAndCounts(t *testing.T) {
	svc, db := newSvc(t)
	ctx := context.Background()
	const token = "chat_count123"

	for i := 0; i < 5; i++ {
		sender := domain.SenderUser
		if i%2 == 1 {
			sender = domain.SenderBot
		}
		if _, err := svc.SaveMessage(ctx, SaveMessageInput{
			SessionID: token,
			Sender:    sender,
			Content:   "turn",
			Client:    ClientInfo{IP: "203.0.113.9", UserAgent: "widget/1.0"},
		}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	sess, err := repo.GetSession(ctx, db, token)
	if err != nil {
		t.Fatalf("session should have been created: %v", err)
	}
	if sess.MessagesCount != 5 {
		t.Fatalf("messages_count = %d, want 5", sess.MessagesCount)
	}
	if sess.VisitorIP != "203.0.113.9" {
		t.Fatalf("client attributes not captured: %+v", sess)
	}

	n, _ := repo.CountMessages(ctx, db, token)
	if n != 5 {
		t.Fatalf("stored messages = %d, want 5", n)
	}
}

func TestSaveMessage_GeoLookupOnlyOnCreate(t *testing.T) {
	db := newTestDB(t)
	fg := &fakeGeo{ipLoc: &geo.Location{Country: "Belgium", CountryCode: "BE", Source: "ip"}}
	svc := &SessionService{DB: db, Geo: fg, ChangedLimit: 50}
	ctx := context.Background()
	const token = "chat_geoonce1"

	for i := 0; i < 5; i++ {
		if _, err := svc.SaveMessage(ctx, SaveMessageInput{
			SessionID: token,
			Sender:    domain.SenderUser,
			Content:   "turn",
			Client:    ClientInfo{IP: "203.0.113.9"},
		}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if fg.ipCalls != 1 {
		t.Fatalf("ip lookups = %d after 5 appends, want 1 (first contact only)", fg.ipCalls)
	}

	// The one lookup that did run landed on the row.
	sess, err := repo.GetSession(ctx, db, token)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Country != "Belgium" {
		t.Fatalf("geo enrichment missing: %+v", sess)
	}

	// StartSession on the existing row does not resolve either.
	if _, err := svc.StartSession(ctx, token, ClientInfo{IP: "203.0.113.9"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if fg.ipCalls != 1 {
		t.Fatalf("ip lookups = %d after re-ensure, want 1", fg.ipCalls)
	}
}

func TestStartSession_GeoEnrichment(t *testing.T) {
	db := newTestDB(t)
	lat, lon := 50.85, 4.35
	svc := &SessionService{
		DB: db,
		Geo: &fakeGeo{ipLoc: &geo.Location{
			Country: "Belgium", CountryCode: "BE", City: "Brussels",
			Latitude: &lat, Longitude: &lon, Source: "ip",
		}},
		ChangedLimit: 50,
	}

	sess, err := svc.StartSession(context.Background(), "chat_geo12345", ClientInfo{IP: "203.0.113.9"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.Country != "Belgium" || sess.City != "Brussels" || sess.LocationSrc != domain.LocationSourceIP {
		t.Fatalf("geo enrichment missing: %+v", sess)
	}
}

func TestUpdateStatus_InvalidLeavesRowUnchanged(t *testing.T) {
	svc, db := newSvc(t)
	ctx := context.Background()
	const token = "chat_stat1234"

	if _, err := svc.StartSession(ctx, token, ClientInfo{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.UpdateStatus(ctx, token, "archived"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	sess, _ := repo.GetSession(ctx, db, token)
	if sess.Status != domain.StatusActive {
		t.Fatalf("invalid transition must not change the row, got %s", sess.Status)
	}

	if err := svc.UpdateStatus(ctx, token, domain.StatusCompleted); err != nil {
		t.Fatalf("update: %v", err)
	}
	sess, _ = repo.GetSession(ctx, db, token)
	if sess.Status != domain.StatusCompleted || sess.EndedAt == nil {
		t.Fatalf("terminal transition incomplete: %+v", sess)
	}

	if err := svc.UpdateStatus(ctx, "chat_missing99", domain.StatusCompleted); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestUpdateLocation_GPSReverseGeocode(t *testing.T) {
	db := newTestDB(t)
	svc := &SessionService{
		DB:           db,
		Geo:          &fakeGeo{gpsLoc: &geo.Location{Country: "Belgium", CountryCode: "BE", City: "Leuven", Source: "gps"}},
		ChangedLimit: 50,
	}
	ctx := context.Background()
	const token = "chat_gps12345"

	if _, err := svc.StartSession(ctx, token, ClientInfo{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	lat, lon := 50.87, 4.70
	applied, err := svc.UpdateLocation(ctx, token, LocationInput{Latitude: &lat, Longitude: &lon})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if applied.Source == nil || *applied.Source != domain.LocationSourceGPS {
		t.Fatalf("expected gps source, got %+v", applied.Source)
	}

	sess, _ := repo.GetSession(ctx, db, token)
	if sess.City != "Leuven" || sess.LocationSrc != domain.LocationSourceGPS {
		t.Fatalf("reverse geocode not merged: %+v", sess)
	}
	if sess.Latitude == nil || *sess.Latitude != lat {
		t.Fatalf("coordinates not stored")
	}
}

func TestUpdateLocation_NoData(t *testing.T) {
	svc, _ := newSvc(t)
	if _, err := svc.UpdateLocation(context.Background(), "chat_empty123", LocationInput{}); !errors.Is(err, ErrNoLocation) {
		t.Fatalf("expected ErrNoLocation, got %v", err)
	}
}

func TestSessionDetail_BackfillsContacts(t *testing.T) {
	svc, db := newSvc(t)
	ctx := context.Background()
	const token = "chat_detail01"

	if _, err := svc.SaveMessage(ctx, SaveMessageInput{SessionID: token, Content: "write me at jane@example.com or +32 470 12 34 56"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	sess, messages, err := svc.SessionDetail(ctx, token)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("messages = %d", len(messages))
	}
	if sess.VisitorEmail != "jane@example.com" {
		t.Fatalf("email not backfilled: %+v", sess)
	}
	if sess.VisitorPhone == "" {
		t.Fatalf("phone not backfilled")
	}

	// Backfill is persisted, not just echoed.
	stored, _ := repo.GetSession(ctx, db, token)
	if stored.VisitorEmail != "jane@example.com" {
		t.Fatalf("backfill not stored: %+v", stored)
	}

	if _, _, err := svc.SessionDetail(ctx, "chat_absent99"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestDeleteSessions_RequiresTokens(t *testing.T) {
	svc, _ := newSvc(t)
	if _, err := svc.DeleteSessions(context.Background(), nil); !errors.Is(err, ErrNoSessionIDs) {
		t.Fatalf("expected ErrNoSessionIDs, got %v", err)
	}
}

func TestChanges_FeedAndCheckpoint(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()

	if _, err := svc.SaveMessage(ctx, SaveMessageInput{SessionID: "chat_feed0001", Content: "hello"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	checkpoint := time.Now().UTC().Add(-time.Minute)
	set, err := svc.Changes(ctx, checkpoint, "chat_feed0001")
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	if len(set.Sessions) != 1 || set.Sessions[0].SessionID != "chat_feed0001" {
		t.Fatalf("expected the touched session: %+v", set.Sessions)
	}
	if set.Sessions[0].LastMessage != "hello" || set.Sessions[0].MessagesCount != 1 {
		t.Fatalf("summary incomplete: %+v", set.Sessions[0])
	}
	if len(set.NewMessages) != 1 {
		t.Fatalf("open-session messages missing: %d", len(set.NewMessages))
	}
	if set.ServerTime.IsZero() {
		t.Fatalf("server time must be stamped")
	}

	// Adopting server_time as the next checkpoint drains the feed.
	set2, err := svc.Changes(ctx, set.ServerTime, "chat_feed0001")
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	if len(set2.Sessions) != 0 || len(set2.NewMessages) != 0 {
		t.Fatalf("feed should be drained: %d sessions, %d messages", len(set2.Sessions), len(set2.NewMessages))
	}

	// Without an open session the message list stays empty but present.
	set3, err := svc.Changes(ctx, checkpoint, "")
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	if set3.NewMessages == nil || len(set3.NewMessages) != 0 {
		t.Fatalf("new_messages must be an empty list, got %v", set3.NewMessages)
	}
}

func TestListSessions_SummariesAndPreview(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()

	long := strings.Repeat("x", 80)
	if _, err := svc.SaveMessage(ctx, SaveMessageInput{SessionID: "chat_sum00001", Content: long}); err != nil {
		t.Fatalf("save: %v", err)
	}

	sums, total, err := svc.ListSessions(ctx, repo.SessionFilter{}, 0, 0) // clamped to sane defaults
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(sums) != 1 {
		t.Fatalf("total=%d len=%d", total, len(sums))
	}
	s := sums[0]
	if s.StatusLabel != "Active" {
		t.Fatalf("label = %q", s.StatusLabel)
	}
	if !strings.HasSuffix(s.LastMessage, "...") || len([]rune(s.LastMessage)) != 53 {
		t.Fatalf("preview not truncated: %q", s.LastMessage)
	}
	if s.LastMessageFul != long {
		t.Fatalf("full preview must carry the whole message")
	}
	if !strings.HasSuffix(s.SessionIDShort, "...") {
		t.Fatalf("short token = %q", s.SessionIDShort)
	}
}

func TestExportCSV(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()

	if _, err := svc.StartSession(ctx, "chat_csv00001", ClientInfo{IP: "203.0.113.9"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.UpdateVisitorInfo(ctx, "chat_csv00001", "jane doe", "jane@example.com", "", true); err != nil {
		t.Fatalf("visitor info: %v", err)
	}

	rows, err := svc.ExportCSV(ctx, repo.SessionFilter{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	if rows[0][0] != "Session ID" {
		t.Fatalf("header missing: %v", rows[0])
	}
	row := rows[1]
	if row[0] != "chat_csv00001" || row[1] != "Jane Doe" || row[2] != "jane@example.com" {
		t.Fatalf("row content: %v", row)
	}
	// Empty contact fields render as dashes.
	if row[3] != "-" {
		t.Fatalf("empty phone should be a dash, got %q", row[3])
	}
	if row[4] != "Lead" {
		t.Fatalf("status label: %q", row[4])
	}
}

func TestStats(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()

	if _, err := svc.SaveMessage(ctx, SaveMessageInput{SessionID: "chat_stats123", Content: "hi"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalSessions != 1 || stats.TotalMessages != 1 || stats.ActiveSessions != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
