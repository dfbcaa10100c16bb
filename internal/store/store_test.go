package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"repub/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
func intPtr(i int64) *int64   { return &i }

func createArticle(t *testing.T, s *Store, title, date string) *core.Article {
	t.Helper()

	in := Input{Title: strPtr(title)}
	if date != "" {
		in.Date = strPtr(date)
	}
	article, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create(%q) failed: %v", title, err)
	}
	return article
}

func TestCreate_AssignsUniqueIDsAndTimestamps(t *testing.T) {
	store := newTestStore(t)

	seen := map[int64]bool{}
	for i := 0; i < 5; i++ {
		article := createArticle(t, store, "Article", "")

		if seen[article.ID] {
			t.Errorf("ID %d assigned twice", article.ID)
		}
		seen[article.ID] = true

		if article.CreatedAt.After(article.UpdatedAt) {
			t.Errorf("created_at %v is after updated_at %v", article.CreatedAt, article.UpdatedAt)
		}
	}
}

func TestCreate_DefaultsSourceURL(t *testing.T) {
	store := newTestStore(t)

	article := createArticle(t, store, "No provenance", "")
	if article.SourceURL != core.DefaultSourceURL {
		t.Errorf("Expected default source_url %q, got %q", core.DefaultSourceURL, article.SourceURL)
	}

	custom, err := store.Create(context.Background(), Input{
		Title:     strPtr("With provenance"),
		SourceURL: strPtr("https://example.com/origin"),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if custom.SourceURL != "https://example.com/origin" {
		t.Errorf("Expected explicit source_url to win, got %q", custom.SourceURL)
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	store := newTestStore(t)

	cases := []struct {
		name  string
		in    Input
		field string
	}{
		{"missing title", Input{}, "title"},
		{"empty title", Input{Title: strPtr("   ")}, "title"},
		{"malformed link", Input{Title: strPtr("ok"), Link: strPtr("not-a-url")}, "link"},
		{"non-http source_url", Input{Title: strPtr("ok"), SourceURL: strPtr("ftp://example.com")}, "source_url"},
		{"malformed date", Input{Title: strPtr("ok"), Date: strPtr("next tuesday")}, "date"},
		{"dangling original", Input{Title: strPtr("ok"), OriginalArticleID: intPtr(9999)}, "original_article_id"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Create(context.Background(), tc.in)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if _, ok := verr.Fields[tc.field]; !ok {
				t.Errorf("Expected error on field %q, got %v", tc.field, verr.Fields)
			}
		})
	}
}

func TestCreate_LongTitleRejected(t *testing.T) {
	store := newTestStore(t)

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	_, err := store.Create(context.Background(), Input{Title: strPtr(string(long))})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError for oversized title, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGet_EagerLoadsRelations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	original := createArticle(t, store, "Original", "2024-01-01")
	derived, err := store.Create(ctx, Input{
		Title:             strPtr("Original (Enhanced)"),
		IsUpdated:         boolPtr(true),
		OriginalArticleID: intPtr(original.ID),
		ReferenceArticles: []core.ReferenceArticle{{Title: "Ref", URL: "https://example.com/ref"}},
	})
	if err != nil {
		t.Fatalf("Create derived failed: %v", err)
	}

	got, err := store.Get(ctx, derived.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.OriginalArticle == nil || got.OriginalArticle.ID != original.ID {
		t.Errorf("Expected eager-loaded original %d, got %+v", original.ID, got.OriginalArticle)
	}
	if len(got.ReferenceArticles) != 1 || got.ReferenceArticles[0].URL != "https://example.com/ref" {
		t.Errorf("Reference articles not round-tripped: %+v", got.ReferenceArticles)
	}

	gotOriginal, err := store.Get(ctx, original.ID)
	if err != nil {
		t.Fatalf("Get original failed: %v", err)
	}
	if len(gotOriginal.UpdatedVersions) != 1 || gotOriginal.UpdatedVersions[0].ID != derived.ID {
		t.Errorf("Expected derived version %d on original, got %+v", derived.ID, gotOriginal.UpdatedVersions)
	}
}

func TestList_OrdersByDateThenCreation(t *testing.T) {
	store := newTestStore(t)

	// Insert out of order; listing must come back newest date first.
	createArticle(t, store, "middle", "2024-02-01")
	createArticle(t, store, "newest", "2024-03-01")
	createArticle(t, store, "oldest", "2024-01-01")

	articles, total, err := store.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected total 3, got %d", total)
	}

	wantOrder := []string{"newest", "middle", "oldest"}
	for i, want := range wantOrder {
		if articles[i].Title != want {
			t.Errorf("Position %d: expected %q, got %q", i, want, articles[i].Title)
		}
	}
}

func TestList_FiltersAndPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	original := createArticle(t, store, "Original", "2024-01-01")
	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, Input{
			Title:             strPtr("Derived"),
			IsUpdated:         boolPtr(true),
			OriginalArticleID: intPtr(original.ID),
		})
		if err != nil {
			t.Fatalf("Create derived failed: %v", err)
		}
	}

	updated, total, err := store.List(ctx, Filter{IsUpdated: boolPtr(true)})
	if err != nil {
		t.Fatalf("List with is_updated failed: %v", err)
	}
	if total != 3 || len(updated) != 3 {
		t.Errorf("Expected 3 updated articles, got total=%d len=%d", total, len(updated))
	}

	byOriginal, _, err := store.List(ctx, Filter{OriginalArticleID: intPtr(original.ID)})
	if err != nil {
		t.Fatalf("List by original failed: %v", err)
	}
	if len(byOriginal) != 3 {
		t.Errorf("Expected 3 derivatives for original %d, got %d", original.ID, len(byOriginal))
	}

	page, total, err := store.List(ctx, Filter{PerPage: 2, Page: 2})
	if err != nil {
		t.Fatalf("Paginated list failed: %v", err)
	}
	if total != 4 {
		t.Errorf("Expected total 4 across pages, got %d", total)
	}
	if len(page) != 2 {
		t.Errorf("Expected 2 articles on page 2 with per_page 2, got %d", len(page))
	}
}

func TestList_WithVersions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	original := createArticle(t, store, "Original", "2024-01-01")
	_, err := store.Create(ctx, Input{
		Title:             strPtr("Derived"),
		IsUpdated:         boolPtr(true),
		OriginalArticleID: intPtr(original.ID),
	})
	if err != nil {
		t.Fatalf("Create derived failed: %v", err)
	}

	articles, _, err := store.List(ctx, Filter{IsUpdated: boolPtr(false), WithVersions: true})
	if err != nil {
		t.Fatalf("List with versions failed: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Expected 1 original, got %d", len(articles))
	}
	if len(articles[0].UpdatedVersions) != 1 {
		t.Errorf("Expected versions eager-loaded, got %+v", articles[0].UpdatedVersions)
	}
}

func TestUpdate_PartialMerge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	article := createArticle(t, store, "Before", "2024-01-01")

	updated, err := store.Update(ctx, article.ID, Input{Content: strPtr("teaser text")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Title != "Before" {
		t.Errorf("Title should be untouched, got %q", updated.Title)
	}
	if updated.Content != "teaser text" {
		t.Errorf("Content not merged, got %q", updated.Content)
	}
	if updated.CreatedAt.After(updated.UpdatedAt) {
		t.Errorf("created_at %v after updated_at %v", updated.CreatedAt, updated.UpdatedAt)
	}
}

func TestUpdate_EmptyTitleRejectedAndUnchanged(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	article := createArticle(t, store, "Keep me", "")

	_, err := store.Update(ctx, article.ID, Input{Title: strPtr("")})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}

	got, err := store.Get(ctx, article.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "Keep me" {
		t.Errorf("Title changed despite rejection: %q", got.Title)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Update(context.Background(), 777, Input{Content: strPtr("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDelete_CascadesToDerivatives(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	original := createArticle(t, store, "Original", "2024-01-01")
	var derivedIDs []int64
	for i := 0; i < 2; i++ {
		derived, err := store.Create(ctx, Input{
			Title:             strPtr("Derived"),
			IsUpdated:         boolPtr(true),
			OriginalArticleID: intPtr(original.ID),
		})
		if err != nil {
			t.Fatalf("Create derived failed: %v", err)
		}
		derivedIDs = append(derivedIDs, derived.ID)
	}

	if err := store.Delete(ctx, original.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.Get(ctx, original.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Original should be gone, got %v", err)
	}
	for _, id := range derivedIDs {
		if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Derivative %d should be cascade-deleted, got %v", id, err)
		}
	}
}

func TestDelete_NotFound(t *testing.T) {
	store := newTestStore(t)

	if err := store.Delete(context.Background(), 123); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLatestOriginal_SkipsDerivatives(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	yesterday := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)
	today := time.Now().UTC().Format(time.RFC3339)

	original := createArticle(t, store, "Original", yesterday)
	_, err := store.Create(ctx, Input{
		Title:             strPtr("Original (Enhanced)"),
		Date:              strPtr(today),
		IsUpdated:         boolPtr(true),
		OriginalArticleID: intPtr(original.ID),
	})
	if err != nil {
		t.Fatalf("Create derived failed: %v", err)
	}

	latest, err := store.LatestOriginal(ctx)
	if err != nil {
		t.Fatalf("LatestOriginal failed: %v", err)
	}
	if latest.IsUpdated {
		t.Error("LatestOriginal returned a derivative")
	}
	if latest.ID != original.ID {
		t.Errorf("Expected original %d, got %d", original.ID, latest.ID)
	}
}

func TestLatestOriginal_Empty(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LatestOriginal(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on empty store, got %v", err)
	}
}
