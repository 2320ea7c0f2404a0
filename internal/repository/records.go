package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/UnknownOlympus/gaia/internal/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS records (
		id               BIGINT PRIMARY KEY,
		data             JSONB NOT NULL,
		geo_tag          JSONB,
		geo_tagged_at    TIMESTAMPTZ,
		tagging_attempts INT NOT NULL DEFAULT 0,
		tagging_error    TEXT
	);
`

// EnsureSchema creates the records table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create records table: %w", err)
	}
	return nil
}

// FetchUntaggedRecords retrieves records that have not been processed yet.
// Records that already failed MaxTaggingAttempts times are skipped. The results
// are ordered by id and limited to the specified count.
func (r *Repository) FetchUntaggedRecords(ctx context.Context, limit int) ([]models.StoredRecord, error) {
	var records []models.StoredRecord
	query := `
		SELECT id, data
		FROM records
		WHERE
			geo_tagged_at IS NULL
			AND tagging_attempts < $1
		ORDER BY id ASC
		LIMIT $2;
	`

	rows, err := r.db.Query(ctx, query, MaxTaggingAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query untagged records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var record models.StoredRecord
		if errScan := rows.Scan(&record.ID, &record.Data); errScan != nil {
			return nil, fmt.Errorf("failed to scan untagged record: %w", errScan)
		}
		r.log.DebugContext(ctx, "An untagged record has been received.", "ID", record.ID)
		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read row: %w", err)
	}

	return records, nil
}

// SaveGeoTag stores the tagged record JSON and marks it processed. A nil tag
// stores an SQL NULL geo_tag: the record was processed but could not be tagged.
func (r *Repository) SaveGeoTag(ctx context.Context, id int64, data []byte, tag *models.GeoTag) error {
	query := `
		UPDATE records
		SET
			data = $1,
			geo_tag = $2,
			geo_tagged_at = now(),
			tagging_error = NULL
		WHERE
			id = $3;
	`

	var tagJSON []byte
	if tag != nil {
		var err error
		if tagJSON, err = json.Marshal(tag); err != nil {
			return fmt.Errorf("failed to encode geo tag: %w", err)
		}
	}

	if _, err := r.db.Exec(ctx, query, data, tagJSON, id); err != nil {
		return fmt.Errorf("failed to save record geo tag: %w", err)
	}

	return nil
}

// IncrementFailureCount increments the tagging attempt count of a record and
// stores the error message.
func (r *Repository) IncrementFailureCount(ctx context.Context, id int64, errMsg string) error {
	query := `
		UPDATE records
		SET
			tagging_attempts = tagging_attempts + 1,
			tagging_error = $1
		WHERE id = $2;
	`

	_, err := r.db.Exec(ctx, query, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to update tagging error and number of attempts: %w", err)
	}

	return nil
}
