package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/UnknownOlympus/gaia/internal/metrics"
	"github.com/UnknownOlympus/gaia/internal/models"
	"github.com/UnknownOlympus/gaia/internal/repository"
)

// ErrTagTimeout is recorded as the failure reason of a record whose tagging
// did not finish within the per-record deadline.
var ErrTagTimeout = errors.New("tagging deadline exceeded")

// Tagger attaches a geo tag to a record. *geotag.Engine implements it.
type Tagger interface {
	Tag(record *models.Record) *models.GeoTag
}

// TaggingService polls the record store for untagged records and tags them
// on a pool of workers.
type TaggingService struct {
	log          *slog.Logger         // Logger for logging service activities
	repo         repository.Interface // Interface for record store access
	tagger       Tagger               // Inference engine
	metrics      *metrics.Metrics     // Metrics for tracking service performance
	numWorkers   int                  // Number of concurrent workers for processing
	pollInterval time.Duration        // Interval for polling untagged records
	batchSize    int                  // Maximum number of records fetched per poll
	tagTimeout   time.Duration        // Deadline for tagging a single record
}

// NewTaggingService creates a new instance of TaggingService.
func NewTaggingService(
	log *slog.Logger,
	repo repository.Interface,
	tagger Tagger,
	metrics *metrics.Metrics,
	numWorkers int,
	pollInterval time.Duration,
	batchSize int,
	tagTimeout time.Duration,
) *TaggingService {
	return &TaggingService{
		log:          log,
		repo:         repo,
		tagger:       tagger,
		metrics:      metrics,
		numWorkers:   numWorkers,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		tagTimeout:   tagTimeout,
	}
}

// Run starts the tagging service, which periodically polls for untagged records.
// It listens for a cancellation signal from the context to gracefully stop the service.
func (ts *TaggingService) Run(ctx context.Context) {
	ticker := time.NewTicker(ts.pollInterval)
	defer ticker.Stop()

	ts.log.InfoContext(ctx, "Tagging service started...")

	for {
		select {
		case <-ctx.Done():
			ts.log.InfoContext(ctx, "Tagging service stopped.")
			return
		case <-ticker.C:
			ts.log.InfoContext(ctx, "Polling for untagged records...")
			ts.processBatch(ctx)
		}
	}
}

// processBatch fetches untagged records, starts a worker pool to tag them and
// waits for all workers to finish.
func (ts *TaggingService) processBatch(ctx context.Context) {
	records, err := ts.repo.FetchUntaggedRecords(ctx, ts.batchSize)
	if err != nil {
		ts.metrics.RepositoryErrors.Inc()
		ts.log.ErrorContext(ctx, "Failed to fetch records", "error", err)
		return
	}
	if len(records) == 0 {
		ts.log.InfoContext(ctx, "No records to process.")
		return
	}

	ts.log.InfoContext(
		ctx,
		"Found records to process. Starting worker pool.",
		"jobs", len(records),
		"num_workers", ts.numWorkers,
	)

	jobs := make(chan models.StoredRecord, len(records))
	var wgr sync.WaitGroup

	for i := 1; i <= ts.numWorkers; i++ {
		wgr.Add(1)
		go ts.worker(ctx, i, &wgr, jobs)
	}

	for _, record := range records {
		jobs <- record
	}
	close(jobs)

	wgr.Wait()
	ts.log.InfoContext(ctx, "Processing batch finished")
}

// worker tags records from the jobs channel. A record that cannot be decoded
// or tagged in time has its failure count incremented; every other record is
// saved, tagged or not.
func (ts *TaggingService) worker(ctx context.Context, idx int, wg *sync.WaitGroup, jobs <-chan models.StoredRecord) {
	defer wg.Done()
	for stored := range jobs {
		ts.metrics.ActiveWorkers.Inc()
		ts.log.DebugContext(ctx, "Processing record", "worker", idx, "record", stored.ID)

		data, tag, err := ts.tagRecord(ctx, stored)
		if err != nil {
			ts.log.ErrorContext(ctx, "Failed to tag record", "worker", idx, "record", stored.ID, "error", err)
			ts.metrics.RecordsProcessed.WithLabelValues("failure").Inc()

			if err = ts.repo.IncrementFailureCount(ctx, stored.ID, err.Error()); err != nil {
				ts.metrics.RepositoryErrors.Inc()
				ts.log.ErrorContext(
					ctx,
					"Could not update failure count for record",
					"worker", idx,
					"record", stored.ID,
					"error", err,
				)
			}
			ts.metrics.ActiveWorkers.Dec()
			continue
		}

		status := "tagged"
		if tag == nil {
			status = "untagged"
		}
		ts.metrics.RecordsProcessed.WithLabelValues(status).Inc()

		if err = ts.repo.SaveGeoTag(ctx, stored.ID, data, tag); err != nil {
			ts.metrics.RepositoryErrors.Inc()
			ts.log.ErrorContext(
				ctx,
				"Failed to save geo tag for record",
				"worker", idx,
				"record", stored.ID,
				"error", err,
			)
		} else {
			ts.log.DebugContext(ctx, "Worker successfully processed the record",
				"worker", idx, "record", stored.ID, "status", status)
		}

		ts.metrics.ActiveWorkers.Dec()
	}
}

// tagRecord decodes and tags one record under the per-record deadline. The
// tagging goroutine is abandoned on timeout; it owns its record copy.
func (ts *TaggingService) tagRecord(ctx context.Context, stored models.StoredRecord) ([]byte, *models.GeoTag, error) {
	var record models.Record
	if err := json.Unmarshal(stored.Data, &record); err != nil {
		return nil, nil, err
	}

	tctx, cancel := context.WithTimeout(ctx, ts.tagTimeout)
	defer cancel()

	done := make(chan *models.GeoTag, 1)
	go func() {
		done <- ts.tagger.Tag(&record)
	}()

	var tag *models.GeoTag
	select {
	case tag = <-done:
	case <-tctx.Done():
		return nil, nil, fmt.Errorf("%w after %s", ErrTagTimeout, ts.tagTimeout)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode tagged record: %w", err)
	}

	return data, tag, nil
}
