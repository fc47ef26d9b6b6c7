package models

// AuthorDetail carries optional JSON-LD Person attributes attached when a
// Person entity matches the resolved author by name.
type AuthorDetail struct {
	Description  string `json:"description,omitempty"`
	JobTitle     string `json:"job_title,omitempty"`
	Image        string `json:"image,omitempty"`
	URL          string `json:"url,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// DocumentMeta is the fused page metadata emitted as Markdown front-matter.
// Derived purely from HTML; empty fields are dropped on serialization.
type DocumentMeta struct {
	Title         string        `json:"title,omitempty"`
	Description   string        `json:"description,omitempty"`
	Author        string        `json:"author,omitempty"`
	AuthorDetail  *AuthorDetail `json:"author_detail,omitempty"`
	Publisher     string        `json:"publisher,omitempty"`
	PublisherLogo string        `json:"publisher_logo,omitempty"`
	DatePublished string        `json:"date_published,omitempty"`
	DateModified  string        `json:"date_modified,omitempty"`
	Keywords      []string      `json:"keywords,omitempty"`
	Canonical     string        `json:"canonical,omitempty"`
	Language      string        `json:"language,omitempty"`
	Image         string        `json:"image,omitempty"`
	Section       string        `json:"section,omitempty"`
	License       string        `json:"license,omitempty"`
	AudioDuration string        `json:"audio_duration,omitempty"`
}
