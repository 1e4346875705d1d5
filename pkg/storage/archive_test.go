package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
)

func TestResultArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	archive := NewResultArchive(NewMemoryStorage(), nil)

	result := &models.ExtractionResult{
		TraceID:    "trace-1",
		Label:      "oab",
		Fields:     map[string]models.ExtractedField{"cpf": {Value: "123.456.789-10", Confidence: 0.95, Method: "pattern:cpf", Stage: models.StagePattern}},
		Confidence: 0.95,
	}
	if err := archive.Save(ctx, result); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := archive.Load(ctx, "trace-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Fields["cpf"] != result.Fields["cpf"] || got.Label != "oab" {
		t.Errorf("Load() = %+v", got)
	}
}

func TestResultArchiveMissing(t *testing.T) {
	archive := NewResultArchive(NewMemoryStorage(), nil)
	if _, err := archive.Load(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
	if err := archive.Save(context.Background(), &models.ExtractionResult{}); err == nil {
		t.Error("Save() must reject a result without trace id")
	}
}

func TestMemoryStorageCleanupBefore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return base }
	if err := PutJSON(ctx, store, mustKey(t, "old"), map[string]string{"a": "b"}); err != nil {
		t.Fatal(err)
	}
	store.now = func() time.Time { return base.Add(48 * time.Hour) }
	if err := PutJSON(ctx, store, mustKey(t, "new"), map[string]string{"a": "b"}); err != nil {
		t.Fatal(err)
	}

	if err := store.CleanupBefore(ctx, base.Add(24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, mustKey(t, "old")); !errors.Is(err, ErrNotFound) {
		t.Error("old result must be pruned")
	}
	if _, err := store.Get(ctx, mustKey(t, "new")); err != nil {
		t.Errorf("new result pruned: %v", err)
	}
}

func mustKey(t *testing.T, traceID string) string {
	t.Helper()
	key, err := ResultKey(traceID)
	if err != nil {
		t.Fatalf("ResultKey(%q) error = %v", traceID, err)
	}
	return key
}

func TestResultKeyRejectsUnsafeIDs(t *testing.T) {
	for _, id := range []string{"", "../../secret", "a/b", "..", "trace.1", "id with space"} {
		if key, err := ResultKey(id); !errors.Is(err, ErrInvalidTraceID) {
			t.Errorf("ResultKey(%q) = %q, %v, want ErrInvalidTraceID", id, key, err)
		}
	}
	if got := mustKey(t, "0b9c2f6e-1d7a-4c1e-9a51-2f1f8d3c6b10"); got != "results/0b9c2f6e-1d7a-4c1e-9a51-2f1f8d3c6b10.json" {
		t.Errorf("ResultKey() = %q", got)
	}
}

func TestResultArchiveNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	archive := NewResultArchive(NewMemoryStorage(), nil)

	if err := archive.Save(ctx, &models.ExtractionResult{TraceID: "victim", Label: "original"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	err := archive.Save(ctx, &models.ExtractionResult{TraceID: "victim", Label: "forged"})
	if !errors.Is(err, ErrAlreadyArchived) {
		t.Fatalf("second Save() error = %v, want ErrAlreadyArchived", err)
	}
	got, err := archive.Load(ctx, "victim")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Label != "original" {
		t.Errorf("Label = %q, want original", got.Label)
	}

	if err := archive.Save(ctx, &models.ExtractionResult{TraceID: "../../secret"}); !errors.Is(err, ErrInvalidTraceID) {
		t.Errorf("Save() error = %v, want ErrInvalidTraceID", err)
	}
	if _, err := archive.Load(ctx, "../victim"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}
