package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/mergegate/pkg/models"
)

func record(pr int, details string) models.DecisionRecord {
	return models.DecisionRecord{
		PRNumber:       pr,
		AIScore:        80,
		SonarIssues:    2,
		Mode:           models.ModeAtLeast,
		AIThreshold:    75,
		SonarThreshold: 5,
		Decision:       models.DecisionWillMerge,
		Details:        details,
	}
}

func TestMemoryStore_NewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 1; i <= 3; i++ {
		if err := store.Append(ctx, record(7, fmt.Sprintf("run %d", i))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	records, err := store.List(ctx, 7)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[0].Details != "run 3" || records[2].Details != "run 1" {
		t.Errorf("Expected newest first, got %q .. %q", records[0].Details, records[2].Details)
	}
}

func TestMemoryStore_CapEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 1; i <= MaxRecordsPerPR+5; i++ {
		if err := store.Append(ctx, record(3, fmt.Sprintf("run %d", i))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	records, err := store.List(ctx, 3)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(records) != MaxRecordsPerPR {
		t.Fatalf("Expected %d records after eviction, got %d", MaxRecordsPerPR, len(records))
	}
	if records[0].Details != fmt.Sprintf("run %d", MaxRecordsPerPR+5) {
		t.Errorf("Expected the newest record first, got %q", records[0].Details)
	}
	if records[len(records)-1].Details != "run 6" {
		t.Errorf("Expected runs 1-5 evicted, oldest kept is %q", records[len(records)-1].Details)
	}
}

func TestMemoryStore_PerPRIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Append(ctx, record(1, "pr one")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, record(2, "pr two")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	records, _ := store.List(ctx, 1)
	if len(records) != 1 || records[0].Details != "pr one" {
		t.Errorf("Expected only PR 1 records, got %+v", records)
	}

	records, _ = store.List(ctx, 99)
	if len(records) != 0 {
		t.Errorf("Expected no records for an unknown PR, got %d", len(records))
	}
}

func TestMemoryStore_SetsCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Append(ctx, record(4, "stamped")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	records, _ := store.List(ctx, 4)
	if records[0].CreatedAt.IsZero() {
		t.Error("Expected Append to stamp CreatedAt")
	}
}
