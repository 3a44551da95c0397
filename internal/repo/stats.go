// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries for the
// dashboard counters and for cheap freshness checks in the HTTP layer.
// Each function is context-aware and safe to call from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/automize/chat-support-backend/internal/domain"
)

// DashboardStats is the aggregate snapshot shown on the admin dashboard.
type DashboardStats struct {
	TotalSessions     int64 `json:"total_sessions"`
	ActiveSessions    int64 `json:"active_sessions"`
	CompletedSessions int64 `json:"completed_sessions"`
	Leads             int64 `json:"leads"`
	AbandonedSessions int64 `json:"abandoned_sessions"`
	TotalMessages     int64 `json:"total_messages"`
	TodaySessions     int64 `json:"today_sessions"`
	ThisWeekSessions  int64 `json:"this_week_sessions"`
}

// CollectStats computes dashboard counters: totals, per-status breakdown, and
// today/this-week session counts. "Today" is the current UTC calendar day and
// "this week" is a rolling 7-day window, matching the admin dashboard's use.
func CollectStats(ctx context.Context, db *gorm.DB, now time.Time) (*DashboardStats, error) {
	stats := &DashboardStats{}
	q := db.WithContext(ctx)

	if err := q.Model(&domain.Session{}).Count(&stats.TotalSessions).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		Status string
		Count  int64
	}
	if err := q.Model(&domain.Session{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		switch r.Status {
		case domain.StatusActive:
			stats.ActiveSessions = r.Count
		case domain.StatusCompleted:
			stats.CompletedSessions = r.Count
		case domain.StatusLead:
			stats.Leads = r.Count
		case domain.StatusAbandoned:
			stats.AbandonedSessions = r.Count
		}
	}

	if err := q.Model(&domain.Message{}).Count(&stats.TotalMessages).Error; err != nil {
		return nil, err
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if err := q.Model(&domain.Session{}).
		Where("started_at >= ?", dayStart).
		Count(&stats.TodaySessions).Error; err != nil {
		return nil, err
	}
	if err := q.Model(&domain.Session{}).
		Where("started_at >= ?", now.Add(-7*24*time.Hour)).
		Count(&stats.ThisWeekSessions).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// SessionMessagesStats returns aggregate metadata for messages within a given
// session: the total number of rows and the maximum CreatedAt timestamp among
// those rows. When the session has no messages, the returned count is 0 and
// maxCreatedAt is nil.
func SessionMessagesStats(ctx context.Context, db *gorm.DB, sessionID string) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("session_id = ?", sessionID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}

// DeleteTerminalSessionsBefore removes completed/abandoned sessions whose last
// activity predates cutoff, cascading to their messages. Used by the retention
// job. Returns the number of sessions removed.
func DeleteTerminalSessionsBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	var tokens []string
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("status IN ? AND last_message_at < ?", []string{domain.StatusCompleted, domain.StatusAbandoned}, cutoff).
		Pluck("session_id", &tokens).Error
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, nil
	}
	return DeleteSessions(ctx, db, tokens)
}
