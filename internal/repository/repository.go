package repository

import (
	"context"
	"log/slog"

	"github.com/UnknownOlympus/gaia/internal/models"
)

// MaxTaggingAttempts is the number of failed attempts after which a record is
// no longer fetched for tagging.
const MaxTaggingAttempts = 5

type Repository struct {
	db  Database
	log *slog.Logger
}

type Interface interface {
	FetchUntaggedRecords(ctx context.Context, limit int) ([]models.StoredRecord, error)
	SaveGeoTag(ctx context.Context, id int64, data []byte, tag *models.GeoTag) error
	IncrementFailureCount(ctx context.Context, id int64, errMsg string) error
}

// NewRepository creates a new instance of Repository with the provided Database.
// It returns a pointer to the newly created Repository.
func NewRepository(db Database, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log}
}
