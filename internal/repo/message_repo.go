// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/automize/chat-support-backend/internal/domain"
)

// CreateMessage inserts a new message row and returns it. The creation
// timestamp is assigned here (UTC) and doubles as the change-feed checkpoint
// key for the owning session.
func CreateMessage(ctx context.Context, db *gorm.DB, sessionID, sender, content string, quickReplies domain.QuickReplies, payload string) (*domain.Message, error) {
	m := &domain.Message{
		SessionID:    sessionID,
		Sender:       sender,
		Content:      content,
		QuickReplies: quickReplies,
		Payload:      payload,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns every message of a session ordered deterministically
// (CreatedAt ASC, ID ASC). Conversations are short by construction, so no
// pagination is applied.
func ListMessages(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// LastMessage fetches the most recent message of a session, or ErrNotFound
// when the session has none.
func LastMessage(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MessagesSince returns messages of a session created strictly after the
// checkpoint, ascending. A zero checkpoint yields an empty result: the feed
// never implies "all messages".
func MessagesSince(ctx context.Context, db *gorm.DB, sessionID string, since time.Time) ([]domain.Message, error) {
	if since.IsZero() {
		return []domain.Message{}, nil
	}
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("session_id = ? AND created_at > ?", sessionID, since).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).
		Scan(&total).Error
	return total, err
}

// DeleteSessionMessages removes every message belonging to a session and
// returns the number of rows removed.
func DeleteSessionMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&domain.Message{})
	return res.RowsAffected, res.Error
}
