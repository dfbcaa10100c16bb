package core

import "time"

// DefaultSourceURL is the provenance applied when an article is stored without one.
const DefaultSourceURL = "https://beyondchats.com/blogs/"

// ReferenceArticle is a single style/citation source attached to an enhanced article.
type ReferenceArticle struct {
	Title string `json:"title"` // Display title of the reference page
	URL   string `json:"url"`   // Absolute URL of the reference page
}

// Article is the only persisted entity. An article is either an original
// (IsUpdated false) or a machine-enhanced derivative of exactly one original
// (IsUpdated true, OriginalArticleID set).
type Article struct {
	ID                int64              `json:"id"`
	Title             string             `json:"title"`
	Content           string             `json:"content,omitempty"`      // Short/teaser text
	FullContent       string             `json:"full_content,omitempty"` // Complete body; Content stands in when empty
	Link              string             `json:"link,omitempty"`         // URL of the article itself
	Date              *time.Time         `json:"date,omitempty"`         // Logical publish date, distinct from CreatedAt
	SourceURL         string             `json:"source_url,omitempty"`   // Provenance URL
	IsUpdated         bool               `json:"is_updated"`
	OriginalArticleID *int64             `json:"original_article_id,omitempty"`
	ReferenceArticles []ReferenceArticle `json:"reference_articles,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`

	// Eager-loaded relations; populated by the store, never persisted directly.
	OriginalArticle *Article  `json:"original_article,omitempty"`
	UpdatedVersions []Article `json:"updated_versions,omitempty"`
}

// EffectiveBody returns the complete body text: FullContent when present,
// otherwise Content.
func (a *Article) EffectiveBody() string {
	if a.FullContent != "" {
		return a.FullContent
	}
	return a.Content
}
