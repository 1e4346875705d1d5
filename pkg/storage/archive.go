package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

const resultsPrefix = "results"

// ResultArchive keeps every finished extraction as results/<traceId>.json.
type ResultArchive struct {
	store  Storage
	logger logger.Logger
}

func NewResultArchive(store Storage, log logger.Logger) *ResultArchive {
	if log == nil {
		log = logger.NewNop()
	}
	return &ResultArchive{store: store, logger: log.Named("archive")}
}

var (
	// ErrInvalidTraceID rejects ids that could leave the results prefix.
	ErrInvalidTraceID = errors.New("invalid trace id")
	// ErrAlreadyArchived is returned by Save when the trace id is taken.
	ErrAlreadyArchived = errors.New("result already archived")
)

// ResultKey maps a trace id to its object key.
func ResultKey(traceID string) (string, error) {
	if !logger.ValidTraceID(traceID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTraceID, traceID)
	}
	return path.Join(resultsPrefix, traceID+".json"), nil
}

// Save archives result once; an existing result under the same trace id is
// never replaced.
func (a *ResultArchive) Save(ctx context.Context, result *models.ExtractionResult) error {
	key, err := ResultKey(result.TraceID)
	if err != nil {
		return err
	}
	rc, err := a.store.Get(ctx, key)
	switch {
	case err == nil:
		rc.Close()
		return fmt.Errorf("%w: %s", ErrAlreadyArchived, result.TraceID)
	case !errors.Is(err, ErrNotFound):
		return fmt.Errorf("failed to check archived result: %w", err)
	}
	return PutJSON(ctx, a.store, key, result)
}

// Load returns ErrNotFound when no result was archived under traceID,
// including ids that could never have been archived.
func (a *ResultArchive) Load(ctx context.Context, traceID string) (*models.ExtractionResult, error) {
	key, err := ResultKey(traceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var result models.ExtractionResult
	if err := GetJSON(ctx, a.store, key, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Prune removes results archived before now-retention.
func (a *ResultArchive) Prune(ctx context.Context, retention time.Duration) error {
	threshold := time.Now().Add(-retention)
	a.logger.Info("Pruning archived results", logger.Time("before", threshold))
	return a.store.CleanupBefore(ctx, threshold)
}

func PutJSON(ctx context.Context, store Storage, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if _, err := store.Store(ctx, bytes.NewReader(data), key); err != nil {
		return err
	}
	return nil
}

func GetJSON(ctx context.Context, store Storage, key string, v any) error {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
