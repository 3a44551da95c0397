package repo

import (
	"context"
	"testing"
	"time"

	"github.com/automize/chat-support-backend/internal/domain"
)

func TestCollectStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	seed := []domain.Session{
		{SessionID: "chat_st000001", Status: domain.StatusActive, StartedAt: now.Add(-time.Hour), LastMessageAt: now},
		{SessionID: "chat_st000002", Status: domain.StatusActive, StartedAt: now.Add(-3 * 24 * time.Hour), LastMessageAt: now},
		{SessionID: "chat_st000003", Status: domain.StatusCompleted, StartedAt: now.Add(-10 * 24 * time.Hour), LastMessageAt: now},
		{SessionID: "chat_st000004", Status: domain.StatusLead, StartedAt: now.Add(-2 * time.Hour), LastMessageAt: now},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		if _, err := CreateMessage(ctx, db, "chat_st000001", domain.SenderUser, "m", nil, ""); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	stats, err := CollectStats(ctx, db, now)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if stats.TotalSessions != 4 {
		t.Fatalf("total = %d", stats.TotalSessions)
	}
	if stats.ActiveSessions != 2 || stats.CompletedSessions != 1 || stats.Leads != 1 || stats.AbandonedSessions != 0 {
		t.Fatalf("breakdown wrong: %+v", stats)
	}
	if stats.TotalMessages != 5 {
		t.Fatalf("messages = %d", stats.TotalMessages)
	}
	// Today: sessions started on the current UTC calendar day.
	if stats.TodaySessions != 2 {
		t.Fatalf("today = %d", stats.TodaySessions)
	}
	// Rolling 7 days excludes the 10-day-old completed session.
	if stats.ThisWeekSessions != 3 {
		t.Fatalf("week = %d", stats.ThisWeekSessions)
	}
}

func TestSessionMessagesStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	count, maxAt, err := SessionMessagesStats(ctx, db, "chat_nostats1")
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("empty session: count=%d maxAt=%v err=%v", count, maxAt, err)
	}

	_, _ = CreateMessage(ctx, db, "chat_stats001", domain.SenderUser, "a", nil, "")
	last, _ := CreateMessage(ctx, db, "chat_stats001", domain.SenderBot, "b", nil, "")

	count, maxAt, err = SessionMessagesStats(ctx, db, "chat_stats001")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if count != 2 || maxAt == nil {
		t.Fatalf("count=%d maxAt=%v", count, maxAt)
	}
	if maxAt.Before(last.CreatedAt.Add(-time.Second)) {
		t.Fatalf("maxAt %v predates last message %v", maxAt, last.CreatedAt)
	}
}

func TestDeleteTerminalSessionsBefore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	cutoff := time.Now().UTC().AddDate(0, 0, -90)

	seed := []domain.Session{
		// Old and terminal: removed.
		{SessionID: "chat_ret00001", Status: domain.StatusCompleted, StartedAt: cutoff.AddDate(0, 0, -10), LastMessageAt: cutoff.AddDate(0, 0, -10)},
		{SessionID: "chat_ret00002", Status: domain.StatusAbandoned, StartedAt: cutoff.AddDate(0, 0, -5), LastMessageAt: cutoff.AddDate(0, 0, -5)},
		// Old but a lead: kept.
		{SessionID: "chat_ret00003", Status: domain.StatusLead, StartedAt: cutoff.AddDate(0, 0, -10), LastMessageAt: cutoff.AddDate(0, 0, -10)},
		// Terminal but recent: kept.
		{SessionID: "chat_ret00004", Status: domain.StatusCompleted, StartedAt: time.Now().UTC(), LastMessageAt: time.Now().UTC()},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if _, err := CreateMessage(ctx, db, "chat_ret00001", domain.SenderUser, "bye", nil, ""); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	deleted, err := DeleteTerminalSessionsBefore(ctx, db, cutoff)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}
	if _, err := GetSession(ctx, db, "chat_ret00003"); err != nil {
		t.Fatalf("lead must survive retention: %v", err)
	}
	if _, err := GetSession(ctx, db, "chat_ret00004"); err != nil {
		t.Fatalf("recent terminal session must survive: %v", err)
	}
	n, _ := CountMessages(ctx, db, "chat_ret00001")
	if n != 0 {
		t.Fatalf("messages must cascade with retention, count=%d", n)
	}
}
