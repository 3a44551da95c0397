// Package services – SessionService
//
// This file implements SessionService, the single gateway mutating and
// reading the session and message stores. It validates session tokens and
// sender roles at the boundary, ensures sessions exist before message writes,
// maintains the per-session message counter, and assembles the change feed
// consumed by the dashboard poller.
//
// The ensure → append → increment sequence is one logical unit that spans two
// tables without a wrapping transaction: if the counter bump fails after the
// message insert, the message stays persisted and the counter is a stale
// display hint. That degraded state is accepted and logged, never fatal.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include the session token and pagination parameters where applicable.
package services

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/automize/chat-support-backend/internal/domain"
	"github.com/automize/chat-support-backend/internal/geo"
	"github.com/automize/chat-support-backend/internal/repo"
)

// sessionTokenRE is the accepted shape of client-issued session tokens:
// the "chat_" prefix followed by at least 8 URL-safe characters.
var sessionTokenRE = regexp.MustCompile(`^chat_[A-Za-z0-9_\-]{8,}$`)

// maxSessionTokenLen matches the session_id column width.
const maxSessionTokenLen = 100

// previewRunes caps the last-message preview shown in session listings.
const previewRunes = 50

// GeoResolver is the geolocation contract required by SessionService.
// Both methods are best-effort and return nil on any failure.
type GeoResolver interface {
	FromIP(ctx context.Context, ip string) *geo.Location
	FromCoordinates(ctx context.Context, lat, lon float64) *geo.Location
}

// ClientInfo carries the request-scoped visitor attributes captured when a
// session row is first created.
type ClientInfo struct {
	IP        string
	UserAgent string
	PageURL   string
}

// SaveMessageInput is the gateway payload for persisting one chat turn.
type SaveMessageInput struct {
	SessionID    string
	Sender       string
	Content      string
	QuickReplies domain.QuickReplies
	Payload      string
	Client       ClientInfo
}

// LocationInput is the gateway payload for a location update. Coordinates
// trigger a reverse-geocode; direct fields are merged as-is.
type LocationInput struct {
	Latitude  *float64
	Longitude *float64

	Country     *string
	CountryCode *string
	City        *string
	Region      *string
}

// SessionSummary is the listing/change-feed projection of a session row,
// enriched with a preview of its most recent message.
type SessionSummary struct {
	SessionID      string    `json:"session_id"`
	SessionIDShort string    `json:"session_id_short"`
	VisitorName    string    `json:"visitor_name,omitempty"`
	City           string    `json:"visitor_city"`
	Country        string    `json:"visitor_country"`
	CountryCode    string    `json:"visitor_country_code"`
	MessagesCount  int       `json:"messages_count"`
	LastMessage    string    `json:"last_message"`
	LastMessageFul string    `json:"last_message_full"`
	Status         string    `json:"status"`
	StatusLabel    string    `json:"status_label"`
	StartedAt      time.Time `json:"started_at"`
	LastMessageAt  time.Time `json:"last_message_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ChangeSet is one change-feed response: sessions touched since the
// checkpoint, new messages for the open session (when one was named), and the
// server clock the consumer must adopt as its next checkpoint.
type ChangeSet struct {
	Sessions    []SessionSummary `json:"updated_sessions"`
	NewMessages []domain.Message `json:"new_messages"`
	ServerTime  time.Time        `json:"server_time"`
}

// SessionService coordinates session/message persistence, geolocation
// enrichment, and the change feed. It is the only writer of the two stores.
type SessionService struct {
	DB  *gorm.DB
	Geo GeoResolver

	// ChangedLimit bounds sessions returned per change-feed poll.
	ChangedLimit int
}

// ValidSessionToken reports whether token matches the accepted client-issued
// shape. Exposed so transports can reject malformed input before any store
// access.
func ValidSessionToken(token string) bool {
	return len(token) <= maxSessionTokenLen && sessionTokenRE.MatchString(token)
}

// seed returns a provider building the creation attributes for a new session.
// The provider runs only when a row is actually inserted, so the external IP
// geolocation lookup is never made for sessions that already exist.
func (s *SessionService) seed(ctx context.Context, client ClientInfo) repo.SeedFunc {
	return func() repo.SessionSeed {
		seed := repo.SessionSeed{
			VisitorIP: client.IP,
			UserAgent: client.UserAgent,
			PageURL:   client.PageURL,
		}
		if s.Geo != nil {
			if loc := s.Geo.FromIP(ctx, client.IP); loc != nil {
				seed.Location = locationUpdateFrom(loc)
			}
		}
		return seed
	}
}

// locationUpdateFrom converts a resolver result into a repo merge payload.
func locationUpdateFrom(loc *geo.Location) *repo.LocationUpdate {
	upd := &repo.LocationUpdate{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	}
	if loc.Country != "" {
		upd.Country = &loc.Country
	}
	if loc.CountryCode != "" {
		upd.CountryCode = &loc.CountryCode
	}
	if loc.City != "" {
		upd.City = &loc.City
	}
	if loc.Region != "" {
		upd.Region = &loc.Region
	}
	if loc.Source != "" {
		upd.Source = &loc.Source
	}
	return upd
}

// StartSession ensures a session row exists for the token, creating it with
// captured client attributes and best-effort geolocation when absent.
func (s *SessionService) StartSession(ctx context.Context, token string, client ClientInfo) (*domain.Session, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "StartSession",
		trace.WithAttributes(attribute.String("session.id", token)),
	)
	defer span.End()

	if !ValidSessionToken(token) {
		return nil, ErrInvalidSessionID
	}
	sess, created, err := repo.EnsureSession(ctx, s.DB, token, s.seed(ctx, client))
	if err != nil {
		return nil, err
	}
	if created {
		log.Info().Str("session_id", token).Str("ip", client.IP).Msg("session created")
	}
	return sess, nil
}

// SaveMessage persists one chat turn: it validates the token and sender,
// ensures the session exists, appends the message, and bumps the session
// counter. Unknown sender roles default to "user". A counter failure after a
// successful append is logged and swallowed.
func (s *SessionService) SaveMessage(ctx context.Context, in SaveMessageInput) (*domain.Message, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "SaveMessage",
		trace.WithAttributes(
			attribute.String("session.id", in.SessionID),
			attribute.String("message.sender", in.Sender),
		),
	)
	defer span.End()

	if !ValidSessionToken(in.SessionID) {
		return nil, ErrInvalidSessionID
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	sender := in.Sender
	if sender != domain.SenderUser && sender != domain.SenderBot {
		sender = domain.SenderUser
	}

	if _, _, err := repo.EnsureSession(ctx, s.DB, in.SessionID, s.seed(ctx, in.Client)); err != nil {
		return nil, err
	}

	msg, err := repo.CreateMessage(ctx, s.DB, in.SessionID, sender, content, in.QuickReplies, in.Payload)
	if err != nil {
		return nil, err
	}
	messagesSaved.WithLabelValues(sender).Inc()

	// The message is durable at this point; a failed counter bump leaves a
	// stale display hint, not a broken conversation.
	if err := repo.IncrementMessageCount(ctx, s.DB, in.SessionID, msg.CreatedAt); err != nil {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("message counter update failed")
	}

	return msg, nil
}

// UpdateStatus validates and applies a status transition. Terminal statuses
// stamp the session end time in the store.
func (s *SessionService) UpdateStatus(ctx context.Context, token, status string) error {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "UpdateStatus",
		trace.WithAttributes(
			attribute.String("session.id", token),
			attribute.String("session.status", status),
		),
	)
	defer span.End()

	if !ValidSessionToken(token) {
		return ErrInvalidSessionID
	}
	if !domain.ValidStatus(status) {
		return ErrInvalidStatus
	}
	err := repo.UpdateSessionStatus(ctx, s.DB, token, status)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// UpdateLocation merges a location update into a session. When coordinates
// are supplied the source becomes "gps" and a best-effort reverse geocode
// fills the named fields, overriding any prior IP-derived values. Direct
// fields are merged as provided. Returns the applied update for echoing.
func (s *SessionService) UpdateLocation(ctx context.Context, token string, in LocationInput) (*repo.LocationUpdate, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "UpdateLocation",
		trace.WithAttributes(attribute.String("session.id", token)),
	)
	defer span.End()

	if !ValidSessionToken(token) {
		return nil, ErrInvalidSessionID
	}

	upd := repo.LocationUpdate{
		Country:     in.Country,
		CountryCode: in.CountryCode,
		City:        in.City,
		Region:      in.Region,
	}

	if in.Latitude != nil && in.Longitude != nil {
		upd.Latitude = in.Latitude
		upd.Longitude = in.Longitude
		src := domain.LocationSourceGPS
		upd.Source = &src

		if s.Geo != nil {
			if loc := s.Geo.FromCoordinates(ctx, *in.Latitude, *in.Longitude); loc != nil {
				if upd.Country == nil && loc.Country != "" {
					upd.Country = &loc.Country
				}
				if upd.CountryCode == nil && loc.CountryCode != "" {
					upd.CountryCode = &loc.CountryCode
				}
				if upd.City == nil && loc.City != "" {
					upd.City = &loc.City
				}
				if upd.Region == nil && loc.Region != "" {
					upd.Region = &loc.Region
				}
			}
		}
	}

	if upd == (repo.LocationUpdate{}) {
		return nil, ErrNoLocation
	}

	err := repo.UpdateSessionLocation(ctx, s.DB, token, upd)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &upd, nil
}

// UpdateVisitorInfo merges non-empty contact fields into a session, optionally
// promoting it to lead status. Names are normalized before storage.
func (s *SessionService) UpdateVisitorInfo(ctx context.Context, token, name, email, phone string, promoteToLead bool) error {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "UpdateVisitorInfo",
		trace.WithAttributes(attribute.String("session.id", token)),
	)
	defer span.End()

	if !ValidSessionToken(token) {
		return ErrInvalidSessionID
	}
	err := repo.UpdateVisitorInfo(ctx, s.DB, token, NormalizeVisitorName(name), strings.TrimSpace(email), strings.TrimSpace(phone), promoteToLead)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// ListSessions returns a page of session summaries matching the filter plus
// the total matching count.
func (s *SessionService) ListSessions(ctx context.Context, f repo.SessionFilter, page, perPage int) ([]SessionSummary, int64, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "ListSessions",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("per_page", perPage),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	sessions, total, err := repo.ListSessions(ctx, s.DB, f, offset, perPage)
	if err != nil {
		return nil, 0, err
	}
	return s.summarize(ctx, sessions), total, nil
}

// summarize projects session rows into listing summaries with last-message
// previews. Preview lookups are best-effort; a read failure leaves the
// preview empty rather than failing the listing.
func (s *SessionService) summarize(ctx context.Context, sessions []domain.Session) []SessionSummary {
	out := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		sum := SessionSummary{
			SessionID:      sess.SessionID,
			SessionIDShort: shortToken(sess.SessionID),
			VisitorName:    sess.VisitorName,
			City:           sess.City,
			Country:        sess.Country,
			CountryCode:    sess.CountryCode,
			MessagesCount:  sess.MessagesCount,
			Status:         sess.Status,
			StatusLabel:    domain.StatusLabel(sess.Status),
			StartedAt:      sess.StartedAt,
			LastMessageAt:  sess.LastMessageAt,
			UpdatedAt:      sess.UpdatedAt,
		}
		if last, err := repo.LastMessage(ctx, s.DB, sess.SessionID); err == nil {
			sum.LastMessageFul = last.Content
			sum.LastMessage = truncateRunes(last.Content, previewRunes)
		}
		out = append(out, sum)
	}
	return out
}

// SessionDetail returns a session with its full message history. When the
// visitor has no stored email or phone yet, a best-effort extraction pass
// over the history backfills whatever it finds (gaps only, so re-running is
// harmless).
func (s *SessionService) SessionDetail(ctx context.Context, token string) (*domain.Session, []domain.Message, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "SessionDetail",
		trace.WithAttributes(attribute.String("session.id", token)),
	)
	defer span.End()

	sess, err := repo.GetSession(ctx, s.DB, token)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	messages, err := repo.ListMessages(ctx, s.DB, token)
	if err != nil {
		return nil, nil, err
	}

	if sess.VisitorEmail == "" || sess.VisitorPhone == "" {
		info := ExtractContactInfo(messages)
		email, phone := "", ""
		if sess.VisitorEmail == "" {
			email = info.Email
		}
		if sess.VisitorPhone == "" {
			phone = info.Phone
		}
		if email != "" || phone != "" {
			if err := repo.UpdateVisitorInfo(ctx, s.DB, token, "", email, phone, false); err != nil {
				log.Warn().Err(err).Str("session_id", token).Msg("contact backfill failed")
			} else {
				if email != "" {
					sess.VisitorEmail = email
				}
				if phone != "" {
					sess.VisitorPhone = phone
				}
			}
		}
	}

	return sess, messages, nil
}

// DeleteSessions removes the named sessions and their messages, returning the
// number of sessions actually deleted. Unknown tokens are skipped silently.
func (s *SessionService) DeleteSessions(ctx context.Context, tokens []string) (int64, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "DeleteSessions",
		trace.WithAttributes(attribute.Int("session.count", len(tokens))),
	)
	defer span.End()

	if len(tokens) == 0 {
		return 0, ErrNoSessionIDs
	}
	return repo.DeleteSessions(ctx, s.DB, tokens)
}

// Changes assembles one change-feed response for a polling consumer: sessions
// touched since the checkpoint and, when openSession names a session held
// open in a detail view, its messages since the same checkpoint. ServerTime
// is the authoritative next checkpoint; consumers must not substitute their
// own clock.
func (s *SessionService) Changes(ctx context.Context, checkpoint time.Time, openSession string) (*ChangeSet, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Changes",
		trace.WithAttributes(attribute.String("open_session.id", openSession)),
	)
	defer span.End()

	// Stamp before the reads so anything mutated during the query window is
	// re-delivered on the next poll instead of falling into a gap.
	serverTime := time.Now().UTC()

	changed, err := repo.SessionsChangedSince(ctx, s.DB, checkpoint, s.ChangedLimit)
	if err != nil {
		return nil, err
	}

	newMessages := []domain.Message{}
	if openSession != "" {
		newMessages, err = repo.MessagesSince(ctx, s.DB, openSession, checkpoint)
		if err != nil {
			return nil, err
		}
	}

	changeFeedPolls.Inc()
	return &ChangeSet{
		Sessions:    s.summarize(ctx, changed),
		NewMessages: newMessages,
		ServerTime:  serverTime,
	}, nil
}

// Stats returns the aggregate dashboard counters.
func (s *SessionService) Stats(ctx context.Context) (*repo.DashboardStats, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Stats")
	defer span.End()

	return repo.CollectStats(ctx, s.DB, time.Now().UTC())
}

// csvExportLimit caps export size; matches the original dashboard export.
const csvExportLimit = 10000

// ExportCSV renders sessions matching the filter as CSV rows: a header row
// followed by one row per session.
func (s *SessionService) ExportCSV(ctx context.Context, f repo.SessionFilter) ([][]string, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "ExportCSV")
	defer span.End()

	sessions, _, err := repo.ListSessions(ctx, s.DB, f, 0, csvExportLimit)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(sessions)+1)
	rows = append(rows, []string{
		"Session ID", "Name", "Email", "Phone", "Status",
		"Messages", "Started At", "Last Message At", "IP",
	})
	for _, sess := range sessions {
		rows = append(rows, []string{
			sess.SessionID,
			orDash(sess.VisitorName),
			orDash(sess.VisitorEmail),
			orDash(sess.VisitorPhone),
			domain.StatusLabel(sess.Status),
			strconv.Itoa(sess.MessagesCount),
			sess.StartedAt.UTC().Format(time.DateTime),
			sess.LastMessageAt.UTC().Format(time.DateTime),
			sess.VisitorIP,
		})
	}
	return rows, nil
}

// --- small helpers ---

// shortToken abbreviates a session token for table display.
func shortToken(token string) string {
	const keep = 12
	if utf8.RuneCountInString(token) <= keep {
		return token
	}
	return string([]rune(token)[:keep]) + "..."
}

// truncateRunes clips s to max runes, appending an ellipsis when clipped.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
