// Package domain defines the persistence models for chat sessions and
// messages. These types are mapped with GORM and form the core data layer
// of the support-chat backend.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Session status values. A session starts as StatusActive and moves to a
// terminal status (completed/abandoned) or is promoted to StatusLead when the
// visitor is identified as a prospect.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusLead      = "lead"
	StatusAbandoned = "abandoned"
)

// Location source tags, ordered by precision: GPS-derived fields overwrite
// IP-derived ones when both are available.
const (
	LocationSourceIP     = "ip"
	LocationSourceGPS    = "gps"
	LocationSourceManual = "manual"
)

// Message sender roles.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// ValidStatus reports whether s is one of the fixed session status values.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusCompleted, StatusLead, StatusAbandoned:
		return true
	}
	return false
}

// ValidLocationSource reports whether s is a recognized location source tag.
func ValidLocationSource(s string) bool {
	switch s {
	case LocationSourceIP, LocationSourceGPS, LocationSourceManual:
		return true
	}
	return false
}

// TerminalStatus reports whether s ends a conversation (stamps EndedAt).
func TerminalStatus(s string) bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// StatusLabel returns the human-readable label for a status key, or the key
// itself when unknown. Keys are the wire contract; labels are presentation.
func StatusLabel(status string) string {
	switch status {
	case StatusActive:
		return "Active"
	case StatusCompleted:
		return "Completed"
	case StatusLead:
		return "Lead"
	case StatusAbandoned:
		return "Abandoned"
	}
	return status
}

// Session represents one visitor conversation, identified by an opaque
// client-issued token. Visitor and location attributes are filled in lazily
// (geolocation lookup, webhook callbacks, contact extraction) after creation.
//
// Fields:
//   - ID: surrogate auto-increment key.
//   - SessionID: the client-generated token; unique, immutable once created.
//   - VisitorName/Email/Phone: optional contact details, merged in later.
//   - VisitorIP / UserAgent / PageURL: captured once at creation.
//   - Location fields: coarse geolocation plus the source tag that produced it.
//   - Status: active | completed | lead | abandoned.
//   - StartedAt / LastMessageAt / EndedAt: lifecycle timestamps.
//   - MessagesCount: incrementally maintained message counter (display hint).
type Session struct {
	ID            uint64     `json:"id"              gorm:"primaryKey;autoIncrement"`
	SessionID     string     `json:"session_id"      gorm:"type:varchar(100);not null;uniqueIndex:ux_sessions_token"`
	VisitorName   string     `json:"visitor_name"    gorm:"type:varchar(255)"`
	VisitorEmail  string     `json:"visitor_email"   gorm:"type:varchar(255)"`
	VisitorPhone  string     `json:"visitor_phone"   gorm:"type:varchar(50)"`
	VisitorIP     string     `json:"visitor_ip"      gorm:"type:varchar(45)"`
	Country       string     `json:"visitor_country"       gorm:"type:varchar(100)"`
	CountryCode   string     `json:"visitor_country_code"  gorm:"type:varchar(5);index"`
	City          string     `json:"visitor_city"    gorm:"type:varchar(100)"`
	Region        string     `json:"visitor_region"  gorm:"type:varchar(100)"`
	Latitude      *float64   `json:"visitor_latitude,omitempty"`
	Longitude     *float64   `json:"visitor_longitude,omitempty"`
	LocationSrc   string     `json:"location_source" gorm:"type:varchar(10);default:ip"`
	UserAgent     string     `json:"user_agent"      gorm:"type:text"`
	PageURL       string     `json:"page_url"        gorm:"type:text"`
	Status        string     `json:"status"          gorm:"type:varchar(16);not null;default:active;index"`
	StartedAt     time.Time  `json:"started_at"      gorm:"index"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	LastMessageAt time.Time  `json:"last_message_at" gorm:"index"`
	MessagesCount int        `json:"messages_count"  gorm:"not null;default:0"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// QuickReply is one structured suggested-response option attached to a bot
// message: an opaque label/payload pair.
type QuickReply struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

// QuickReplies is a JSON-serialized list of QuickReply stored in a single
// text column. A nil slice maps to SQL NULL.
type QuickReplies []QuickReply

// Value implements driver.Valuer: marshals the slice to JSON for storage.
func (q QuickReplies) Value() (driver.Value, error) {
	if len(q) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner: unmarshals the stored JSON back into the slice.
func (q *QuickReplies) Scan(src any) error {
	if src == nil {
		*q = nil
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("quick_replies: unsupported scan type")
	}
	if len(b) == 0 {
		*q = nil
		return nil
	}
	return json.Unmarshal(b, q)
}

// Message represents a single turn within a session, authored either by the
// "user" or the "bot". SessionID is a soft reference: no FK constraint is
// enforced, so orphaned rows are tolerated (spec'd behavior of the original
// schema; cascading removal is done explicitly by the session store).
//
// CreatedAt is the ordering and change-feed checkpoint key; ties at sub-second
// granularity are possible and consumers must tolerate them.
type Message struct {
	ID           uint64       `json:"id"            gorm:"primaryKey;autoIncrement"`
	SessionID    string       `json:"session_id"    gorm:"type:varchar(100);not null;index"`
	Sender       string       `json:"sender"        gorm:"type:varchar(10);not null;check:sender IN ('user','bot');index"`
	Content      string       `json:"message"       gorm:"column:message;type:text;not null"`
	QuickReplies QuickReplies `json:"quick_replies,omitempty" gorm:"type:text"`
	Payload      string       `json:"payload,omitempty" gorm:"type:varchar(255)"`
	CreatedAt    time.Time    `json:"created_at"    gorm:"index"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
