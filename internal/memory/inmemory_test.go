package memory

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryStoreCreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	rec, err := store.Create(ctx, "favorite color", "the user's favorite color is blue")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.ID == "" {
		t.Fatalf("record ID should not be empty")
	}
	if !rec.UpdatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("UpdatedAt = %v, want equal to CreatedAt %v", rec.UpdatedAt, rec.CreatedAt)
	}

	got, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatalf("Get() = nil, want record")
	}
	if got.Description != rec.Description || got.Content != rec.Content {
		t.Fatalf("round-trip mismatch: %+v vs %+v", got, rec)
	}
}

func TestInMemoryStoreGetMissing(t *testing.T) {
	store := NewInMemoryStore()
	got, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Get(missing) = %+v, want nil", got)
	}
}

func TestInMemoryStoreUpdatePartial(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	rec, _ := store.Create(ctx, "coffee order", "flat white")
	time.Sleep(time.Millisecond)

	newContent := "oat milk latte"
	updated, err := store.Update(ctx, rec.ID, UpdateFields{Content: &newContent})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated == nil {
		t.Fatalf("Update() = nil, want record")
	}
	if updated.Description != "coffee order" {
		t.Fatalf("Description changed on content-only update: %q", updated.Description)
	}
	if updated.Content != newContent {
		t.Fatalf("Content = %q, want %q", updated.Content, newContent)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Fatalf("UpdatedAt = %v, want after CreatedAt %v", updated.UpdatedAt, updated.CreatedAt)
	}
}

func TestInMemoryStoreUpdateMissing(t *testing.T) {
	desc := "x"
	updated, err := NewInMemoryStore().Update(context.Background(), "nope", UpdateFields{Description: &desc})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated != nil {
		t.Fatalf("Update(missing) = %+v, want nil", updated)
	}
}

func TestInMemoryStoreDeleteRemovesFromAll(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	rec, _ := store.Create(ctx, "scratch", "temporary fact")

	removed, err := store.Delete(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !removed {
		t.Fatalf("Delete() = false, want true")
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("All() = %d records after delete, want 0", len(all))
	}

	got, _ := store.Get(ctx, rec.ID)
	if got != nil {
		t.Fatalf("Get(deleted) = %+v, want nil", got)
	}

	if removed, _ := store.Delete(ctx, rec.ID); removed {
		t.Fatalf("second Delete() = true, want false")
	}
}

func TestInMemoryStoreAllPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	first, _ := store.Create(ctx, "a", "first")
	second, _ := store.Create(ctx, "b", "second")
	third, _ := store.Create(ctx, "c", "third")

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("All() = %d records, want 3", len(all))
	}
	if all[0].ID != first.ID || all[1].ID != second.ID || all[2].ID != third.ID {
		t.Fatalf("iteration order is not insertion order: %v", []string{all[0].ID, all[1].ID, all[2].ID})
	}
}

func TestInMemoryStoreSearchCaseInsensitiveSubstring(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	empty, err := store.Search(ctx, "anything")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("Search(empty store) = %d records, want 0", len(empty))
	}

	store.Create(ctx, "favorite color", "blue")
	store.Create(ctx, "hometown", "grew up in Lisbon")
	store.Create(ctx, "misc", "Favorite season is autumn")

	got, err := store.Search(ctx, "FAVORITE")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search() = %d records, want 2", len(got))
	}
	// Matches come back in insertion order, not relevance order.
	if got[0].Description != "favorite color" || got[1].Description != "misc" {
		t.Fatalf("unexpected search order: %q, %q", got[0].Description, got[1].Description)
	}
}

func TestInMemoryStoreCopiesOut(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	rec, _ := store.Create(ctx, "desc", "content")

	got, _ := store.Get(ctx, rec.ID)
	got.Content = "mutated by caller"

	again, _ := store.Get(ctx, rec.ID)
	if again.Content != "content" {
		t.Fatalf("caller mutation leaked into store: %q", again.Content)
	}
}
