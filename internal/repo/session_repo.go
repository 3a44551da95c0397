// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Session model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a session is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Concurrency:
//   - EnsureSession relies on the unique index over session_id to arbitrate
//     racing creators: the losing insert is detected and resolved by
//     re-reading the winner's row, never surfaced as an error.
//   - IncrementMessageCount issues a single relative UPDATE so concurrent
//     message appends to the same session cannot lose counter updates.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/automize/chat-support-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// changedDefaultWindow is the lookback applied when a change-feed consumer
// supplies no checkpoint.
const changedDefaultWindow = time.Minute

// SessionSeed carries the request-scoped attributes captured once when a
// session row is first created. All fields are optional.
type SessionSeed struct {
	VisitorIP string
	UserAgent string
	PageURL   string

	// Location enrichment resolved from the visitor IP, if any.
	Location *LocationUpdate
}

// LocationUpdate is a partial-merge payload for the session location columns.
// Nil fields are left untouched. CountryCode is normalized to uppercase.
type LocationUpdate struct {
	Country     *string
	CountryCode *string
	City        *string
	Region      *string
	Latitude    *float64
	Longitude   *float64
	Source      *string // one of domain.LocationSource*; invalid values fall back to "ip"
}

// SeedFunc produces the creation attributes for a new session row. It is
// called only when EnsureSession takes the insert path, so callers can defer
// expensive enrichment (the IP geolocation lookup) until first contact.
type SeedFunc func() SessionSeed

// SessionFilter narrows ListSessions results. Zero values mean "no filter".
// DateFrom/DateTo bound StartedAt (inclusive).
type SessionFilter struct {
	Status   string
	Search   string // matched against session_id, visitor_name, visitor_email, visitor_phone
	DateFrom time.Time
	DateTo   time.Time
}

// EnsureSession returns the session row for token, creating it from the seed
// provider if absent. The provider runs only on the insert path; lookups for
// existing sessions never invoke it. The created return reports whether this
// call inserted the row.
//
// Concurrent callers for the same unseen token may race to insert; the unique
// constraint on session_id makes at most one row win, and the loser resolves
// by reading the winner's row.
func EnsureSession(ctx context.Context, db *gorm.DB, token string, seed SeedFunc) (*domain.Session, bool, error) {
	var existing domain.Session
	err := db.WithContext(ctx).Where("session_id = ?", token).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	var sd SessionSeed
	if seed != nil {
		sd = seed()
	}
	now := time.Now().UTC()
	s := &domain.Session{
		SessionID:     token,
		VisitorIP:     sd.VisitorIP,
		UserAgent:     sd.UserAgent,
		PageURL:       sd.PageURL,
		Status:        domain.StatusActive,
		LocationSrc:   domain.LocationSourceIP,
		StartedAt:     now,
		LastMessageAt: now,
	}
	if loc := sd.Location; loc != nil {
		applyLocation(s, loc)
	}

	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		// A racing creator may have won the unique index; treat the duplicate
		// as "already exists" and return the winner.
		var winner domain.Session
		if lookupErr := db.WithContext(ctx).Where("session_id = ?", token).First(&winner).Error; lookupErr == nil {
			return &winner, false, nil
		}
		return nil, false, err
	}
	return s, true, nil
}

// applyLocation copies non-nil LocationUpdate fields onto the model.
func applyLocation(s *domain.Session, loc *LocationUpdate) {
	if loc.Country != nil {
		s.Country = *loc.Country
	}
	if loc.CountryCode != nil {
		s.CountryCode = strings.ToUpper(*loc.CountryCode)
	}
	if loc.City != nil {
		s.City = *loc.City
	}
	if loc.Region != nil {
		s.Region = *loc.Region
	}
	if loc.Latitude != nil {
		s.Latitude = loc.Latitude
	}
	if loc.Longitude != nil {
		s.Longitude = loc.Longitude
	}
	if loc.Source != nil {
		if domain.ValidLocationSource(*loc.Source) {
			s.LocationSrc = *loc.Source
		} else {
			s.LocationSrc = domain.LocationSourceIP
		}
	}
}

// GetSession fetches a single session by its token. If the record does not
// exist, it returns ErrNotFound. On other DB errors, the raw error is returned.
func GetSession(ctx context.Context, db *gorm.DB, token string) (*domain.Session, error) {
	var s domain.Session
	if err := db.WithContext(ctx).Where("session_id = ?", token).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns a page of sessions matching the filter plus the total
// matching count, ordered by last-message time descending.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListSessions(ctx context.Context, db *gorm.DB, f SessionFilter, offset, limit int) ([]domain.Session, int64, error) {
	q := sessionFilterQuery(db.WithContext(ctx).Model(&domain.Session{}), f)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Session{}, 0, nil
	}

	var out []domain.Session
	err := q.
		Order("last_message_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, total, err
}

// sessionFilterQuery composes the WHERE clause shared by ListSessions and the
// CSV export path.
func sessionFilterQuery(q *gorm.DB, f SessionFilter) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where(
			"session_id LIKE ? OR visitor_name LIKE ? OR visitor_email LIKE ? OR visitor_phone LIKE ?",
			like, like, like, like,
		)
	}
	if !f.DateFrom.IsZero() {
		q = q.Where("started_at >= ?", f.DateFrom)
	}
	if !f.DateTo.IsZero() {
		q = q.Where("started_at <= ?", f.DateTo)
	}
	return q
}

// UpdateSessionStatus sets the status of a session. Terminal statuses
// (completed/abandoned) also stamp EndedAt. The status value must have been
// validated by the caller against domain.ValidStatus; this function only
// guards persistence. Returns ErrNotFound when no row matches the token.
func UpdateSessionStatus(ctx context.Context, db *gorm.DB, token, status string) error {
	updates := map[string]any{"status": status}
	if domain.TerminalStatus(status) {
		updates["ended_at"] = time.Now().UTC()
	}
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("session_id = ?", token).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateSessionLocation merges the provided location fields into a session
// row. Nil fields are untouched; CountryCode is uppercased. Returns
// ErrNotFound when no row matches the token, and nil without touching the
// database when the update carries no fields.
func UpdateSessionLocation(ctx context.Context, db *gorm.DB, token string, loc LocationUpdate) error {
	updates := map[string]any{}
	if loc.Country != nil {
		updates["country"] = *loc.Country
	}
	if loc.CountryCode != nil {
		updates["country_code"] = strings.ToUpper(*loc.CountryCode)
	}
	if loc.City != nil {
		updates["city"] = *loc.City
	}
	if loc.Region != nil {
		updates["region"] = *loc.Region
	}
	if loc.Latitude != nil {
		updates["latitude"] = *loc.Latitude
	}
	if loc.Longitude != nil {
		updates["longitude"] = *loc.Longitude
	}
	if loc.Source != nil {
		src := *loc.Source
		if !domain.ValidLocationSource(src) {
			src = domain.LocationSourceIP
		}
		updates["location_src"] = src
	}
	if len(updates) == 0 {
		return nil
	}

	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("session_id = ?", token).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateVisitorInfo merges non-empty contact fields into a session row and
// optionally promotes the session to lead status. Empty fields are untouched,
// so repeated backfill passes are harmless. Returns ErrNotFound when no row
// matches, and nil without touching the database when nothing would change.
func UpdateVisitorInfo(ctx context.Context, db *gorm.DB, token, name, email, phone string, promoteToLead bool) error {
	updates := map[string]any{}
	if name != "" {
		updates["visitor_name"] = name
	}
	if email != "" {
		updates["visitor_email"] = email
	}
	if phone != "" {
		updates["visitor_phone"] = phone
	}
	if len(updates) == 0 {
		return nil
	}
	if promoteToLead {
		updates["status"] = domain.StatusLead
	}

	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("session_id = ?", token).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IncrementMessageCount bumps the message counter and last-message timestamp
// for a session in one relative UPDATE. The counter arithmetic happens inside
// the database, so concurrent appends cannot lose updates.
func IncrementMessageCount(ctx context.Context, db *gorm.DB, token string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("session_id = ?", token).
		UpdateColumns(map[string]any{
			"messages_count":  gorm.Expr("messages_count + 1"),
			"last_message_at": at,
		}).Error
}

// DeleteSessions removes the given sessions and, first, every message
// referencing them. Unknown tokens are a no-op. Returns the number of session
// rows actually removed.
func DeleteSessions(ctx context.Context, db *gorm.DB, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}

	var deleted int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id IN ?", tokens).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("session_id IN ?", tokens).Delete(&domain.Session{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}

// SessionsChangedSince returns sessions whose start time or last-message time
// exceeds the checkpoint, most recently touched first, capped at limit. A zero
// checkpoint defaults the window to the last minute rather than the full table.
func SessionsChangedSince(ctx context.Context, db *gorm.DB, since time.Time, limit int) ([]domain.Session, error) {
	if since.IsZero() {
		since = time.Now().UTC().Add(-changedDefaultWindow)
	}
	if limit <= 0 {
		limit = 50
	}
	var out []domain.Session
	err := db.WithContext(ctx).
		Where("last_message_at > ? OR started_at > ?", since, since).
		Order("last_message_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
