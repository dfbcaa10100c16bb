package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"repub/internal/core"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound reports a lookup for an id that has no row. Callers treat it as
// a modeled outcome, not a failure.
var ErrNotFound = errors.New("article not found")

// ValidationError carries field-level problems with a create or update payload.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msgs := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(msgs, "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Input is the fillable subset of Article attributes accepted by Create and
// Update. Nil pointers mean "not provided", which Update leaves untouched.
type Input struct {
	Title             *string                 `json:"title"`
	Content           *string                 `json:"content"`
	FullContent       *string                 `json:"full_content"`
	Link              *string                 `json:"link"`
	Date              *string                 `json:"date"`
	SourceURL         *string                 `json:"source_url"`
	IsUpdated         *bool                   `json:"is_updated"`
	OriginalArticleID *int64                  `json:"original_article_id"`
	ReferenceArticles []core.ReferenceArticle `json:"reference_articles"`
}

// Filter narrows and paginates List results.
type Filter struct {
	IsUpdated         *bool
	OriginalArticleID *int64
	WithVersions      bool
	Page              int
	PerPage           int
}

const (
	defaultPerPage = 15
	maxPerPage     = 100
	maxTitleLen    = 255
)

// Store is the sqlite-backed article store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a store instance backed by a sqlite database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "repub.db")
	// Foreign keys enforce the original -> derivative cascade at the engine level.
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the articles table and its indexes.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		content TEXT,
		full_content TEXT,
		link TEXT,
		date DATETIME,
		source_url TEXT,
		is_updated BOOLEAN NOT NULL DEFAULT 0,
		original_article_id INTEGER,
		reference_articles TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (original_article_id) REFERENCES articles (id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_articles_is_updated ON articles (is_updated);
	CREATE INDEX IF NOT EXISTS idx_articles_date ON articles (date);
	CREATE INDEX IF NOT EXISTS idx_articles_original ON articles (original_article_id);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create articles table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the location of the database file.
func (s *Store) Path() string {
	return s.path
}

var articleColumns = []string{
	"id", "title", "content", "full_content", "link", "date", "source_url",
	"is_updated", "original_article_id", "reference_articles", "created_at", "updated_at",
}

// List returns articles matching the filter, newest date first with creation
// time as tiebreak, plus the total row count for pagination.
func (s *Store) List(ctx context.Context, f Filter) ([]core.Article, int, error) {
	perPage := f.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}

	base := sq.Select().From("articles")
	if f.IsUpdated != nil {
		base = base.Where(sq.Eq{"is_updated": *f.IsUpdated})
	}
	if f.OriginalArticleID != nil {
		base = base.Where(sq.Eq{"original_article_id": *f.OriginalArticleID})
	}

	countQuery, countArgs, err := base.Columns("COUNT(*)").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count articles: %w", err)
	}

	query, args, err := base.
		Columns(articleColumns...).
		OrderBy("date IS NULL", "date DESC", "created_at DESC", "id DESC").
		Limit(uint64(perPage)).
		Offset(uint64((page - 1) * perPage)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	articles := []core.Article{}
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, 0, err
		}
		articles = append(articles, *article)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate articles: %w", err)
	}

	if f.WithVersions {
		for i := range articles {
			versions, err := s.versionsOf(ctx, articles[i].ID)
			if err != nil {
				return nil, 0, err
			}
			articles[i].UpdatedVersions = versions
		}
	}

	return articles, total, nil
}

// Create validates the input and persists a new article, returning the stored
// row with its generated id and timestamps.
func (s *Store) Create(ctx context.Context, in Input) (*core.Article, error) {
	if err := s.validate(ctx, in, true); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	article := core.Article{
		Title:             strings.TrimSpace(*in.Title),
		SourceURL:         core.DefaultSourceURL,
		ReferenceArticles: in.ReferenceArticles,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.Content != nil {
		article.Content = *in.Content
	}
	if in.FullContent != nil {
		article.FullContent = *in.FullContent
	}
	if in.Link != nil {
		article.Link = *in.Link
	}
	if in.SourceURL != nil && *in.SourceURL != "" {
		article.SourceURL = *in.SourceURL
	}
	if in.IsUpdated != nil {
		article.IsUpdated = *in.IsUpdated
	}
	article.OriginalArticleID = in.OriginalArticleID
	if in.Date != nil && *in.Date != "" {
		parsed, _ := parseDate(*in.Date) // validated above
		article.Date = &parsed
	}

	refs, err := encodeReferences(article.ReferenceArticles)
	if err != nil {
		return nil, err
	}

	query, args, err := sq.Insert("articles").
		Columns("title", "content", "full_content", "link", "date", "source_url",
			"is_updated", "original_article_id", "reference_articles", "created_at", "updated_at").
		Values(article.Title, article.Content, article.FullContent, article.Link,
			nullableTime(article.Date), article.SourceURL, article.IsUpdated,
			article.OriginalArticleID, refs, article.CreatedAt, article.UpdatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert article: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted id: %w", err)
	}
	article.ID = id

	return &article, nil
}

// Get returns the article with its original (if any) and derivative versions
// eager-loaded. Returns ErrNotFound when the id has no row.
func (s *Store) Get(ctx context.Context, id int64) (*core.Article, error) {
	article, err := s.getOne(ctx, id)
	if err != nil {
		return nil, err
	}

	if article.OriginalArticleID != nil {
		original, err := s.getOne(ctx, *article.OriginalArticleID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		article.OriginalArticle = original
	}

	versions, err := s.versionsOf(ctx, id)
	if err != nil {
		return nil, err
	}
	article.UpdatedVersions = versions

	return article, nil
}

// Update merges the provided fields onto the existing row and returns the
// refreshed article.
func (s *Store) Update(ctx context.Context, id int64, in Input) (*core.Article, error) {
	existing, err := s.getOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, in, false); err != nil {
		return nil, err
	}

	update := sq.Update("articles").Where(sq.Eq{"id": id})
	if in.Title != nil {
		update = update.Set("title", strings.TrimSpace(*in.Title))
	}
	if in.Content != nil {
		update = update.Set("content", *in.Content)
	}
	if in.FullContent != nil {
		update = update.Set("full_content", *in.FullContent)
	}
	if in.Link != nil {
		update = update.Set("link", *in.Link)
	}
	if in.SourceURL != nil {
		update = update.Set("source_url", *in.SourceURL)
	}
	if in.IsUpdated != nil {
		update = update.Set("is_updated", *in.IsUpdated)
	}
	if in.OriginalArticleID != nil {
		update = update.Set("original_article_id", *in.OriginalArticleID)
	}
	if in.Date != nil && *in.Date != "" {
		parsed, _ := parseDate(*in.Date)
		update = update.Set("date", parsed)
	}
	if in.ReferenceArticles != nil {
		refs, err := encodeReferences(in.ReferenceArticles)
		if err != nil {
			return nil, err
		}
		update = update.Set("reference_articles", refs)
	}

	// Keep created_at <= updated_at even on sub-second clocks.
	updatedAt := time.Now().UTC()
	if updatedAt.Before(existing.CreatedAt) {
		updatedAt = existing.CreatedAt
	}
	update = update.Set("updated_at", updatedAt)

	query, args, err := update.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update article: %w", err)
	}

	return s.Get(ctx, id)
}

// Delete removes the article. Rows referencing it through original_article_id
// are removed in the same transaction, mirroring the schema's cascade rule so
// the behavior is explicit rather than engine magic.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.getOne(ctx, id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM articles WHERE original_article_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete derived articles: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM articles WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// LatestOriginal returns the most recent non-derivative article, the seed for
// an enhancement run. Returns ErrNotFound when no originals exist.
func (s *Store) LatestOriginal(ctx context.Context) (*core.Article, error) {
	query, args, err := sq.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"is_updated": false}).
		OrderBy("date IS NULL", "date DESC", "created_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build latest query: %w", err)
	}

	article, err := scanArticle(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return article, nil
}

func (s *Store) getOne(ctx context.Context, id int64) (*core.Article, error) {
	query, args, err := sq.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	article, err := scanArticle(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return article, nil
}

func (s *Store) versionsOf(ctx context.Context, id int64) ([]core.Article, error) {
	query, args, err := sq.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"original_article_id": id}).
		OrderBy("date IS NULL", "date DESC", "created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build versions query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load versions: %w", err)
	}
	defer rows.Close()

	var versions []core.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *article)
	}
	return versions, rows.Err()
}

// validate applies the create/update payload rules. forCreate requires title;
// updates only check title when it is present.
func (s *Store) validate(ctx context.Context, in Input, forCreate bool) error {
	verr := &ValidationError{}

	if forCreate && in.Title == nil {
		verr.add("title", "title is required")
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			verr.add("title", "title must not be empty")
		} else if len(title) > maxTitleLen {
			verr.add("title", fmt.Sprintf("title must be at most %d characters", maxTitleLen))
		}
	}

	if in.Link != nil && *in.Link != "" && !validURL(*in.Link) {
		verr.add("link", "link must be a valid http(s) URL")
	}
	if in.SourceURL != nil && *in.SourceURL != "" && !validURL(*in.SourceURL) {
		verr.add("source_url", "source_url must be a valid http(s) URL")
	}

	if in.Date != nil && *in.Date != "" {
		if _, err := parseDate(*in.Date); err != nil {
			verr.add("date", "date must be a valid date")
		}
	}

	if in.OriginalArticleID != nil {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM articles WHERE id = ?)", *in.OriginalArticleID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check original article: %w", err)
		}
		if !exists {
			verr.add("original_article_id", "original_article_id must reference an existing article")
		}
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*core.Article, error) {
	var (
		article    core.Article
		content    sql.NullString
		full       sql.NullString
		link       sql.NullString
		date       sql.NullTime
		sourceURL  sql.NullString
		originalID sql.NullInt64
		refs       sql.NullString
	)

	err := row.Scan(&article.ID, &article.Title, &content, &full, &link, &date,
		&sourceURL, &article.IsUpdated, &originalID, &refs,
		&article.CreatedAt, &article.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}

	article.Content = content.String
	article.FullContent = full.String
	article.Link = link.String
	article.SourceURL = sourceURL.String
	if date.Valid {
		d := date.Time.UTC()
		article.Date = &d
	}
	if originalID.Valid {
		id := originalID.Int64
		article.OriginalArticleID = &id
	}
	if refs.Valid && refs.String != "" {
		if err := json.Unmarshal([]byte(refs.String), &article.ReferenceArticles); err != nil {
			return nil, fmt.Errorf("failed to decode reference articles: %w", err)
		}
	}

	return &article, nil
}

func encodeReferences(refs []core.ReferenceArticle) (string, error) {
	if len(refs) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("failed to encode reference articles: %w", err)
	}
	return string(encoded), nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func validURL(raw string) bool {
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
