// Package services – retention cleanup
//
// CleanupService removes completed and abandoned sessions (with their
// messages) once they age past the configured retention window. Active and
// lead sessions are never touched: leads are the product, and an active
// session may still receive messages.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/automize/chat-support-backend/internal/repo"
)

// CleanupService deletes terminal sessions older than RetentionDays.
type CleanupService struct {
	DB            *gorm.DB
	RetentionDays int
}

// Run performs one cleanup pass, returning the number of sessions removed.
func (c *CleanupService) Run(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -c.RetentionDays)

	deleted, err := repo.DeleteTerminalSessionsBefore(ctx, c.DB, cutoff)
	if err != nil {
		log.Error().Err(err).Time("cutoff", cutoff).Msg("retention cleanup failed")
		return 0, err
	}
	if deleted > 0 {
		retentionDeleted.Add(float64(deleted))
		log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("retention cleanup done")
	}
	return deleted, nil
}
