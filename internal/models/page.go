package models

import "time"

// ContentStatus is the lifecycle field gating enrichment. It is authoritative
// in the store; only the enrichment service moves it away from raw.
type ContentStatus string

const (
	// ContentStatusRaw marks extracted Markdown awaiting enrichment
	ContentStatusRaw ContentStatus = "raw"
	// ContentStatusContexted marks successfully enriched Markdown
	ContentStatusContexted ContentStatus = "contexted"
	// ContentStatusRateLimited marks a page abandoned on HTTP 429 from the model
	ContentStatusRateLimited ContentStatus = "rate_limited"
	// ContentStatusTimeout marks a page abandoned on model timeout
	ContentStatusTimeout ContentStatus = "timeout"
	// ContentStatusFailed marks a page with permanently failed batches
	ContentStatusFailed ContentStatus = "failed"
	// ContentStatusProcessing marks a page claimed by a parallel enrichment worker
	ContentStatusProcessing ContentStatus = "processing"
)

// RetryableStatuses are the failure states the cleanup phase retries.
func RetryableStatuses() []ContentStatus {
	return []ContentStatus{ContentStatusRateLimited, ContentStatusTimeout, ContentStatusFailed}
}

// Page is a crawled URL's durable record. The key is the normalized URL.
type Page struct {
	URL           string        `badgerhold:"key" json:"url"`
	ETag          string        `json:"etag,omitempty"`
	LastModified  string        `json:"last_modified,omitempty"`
	ContentHash   uint32        `json:"content_hash,omitempty"` // Hash of extracted Markdown, not raw HTML
	Status        int           `json:"status"`                 // Last HTTP status; 0 = fetch error
	LastCrawled   time.Time     `json:"last_crawled"`
	LastUpdated   time.Time     `json:"last_updated"`
	Title         string        `json:"title,omitempty"`
	FilePath      string        `json:"file_path,omitempty"`
	ContentStatus ContentStatus `badgerholdIndex:"ContentStatus" json:"content_status,omitempty"`
	PDFPages      int           `json:"pdf_pages,omitempty"` // Page count for saved PDF documents
}

// Eligible reports whether the page can enter enrichment from its current state.
func (p *Page) Eligible() bool {
	switch p.ContentStatus {
	case ContentStatusRaw, ContentStatusFailed, ContentStatusProcessing:
		return true
	}
	return false
}

// PageUpdate carries the fields of an upsert; nil pointers leave the stored
// value untouched (merge semantics per the store contract).
type PageUpdate struct {
	ETag          *string
	LastModified  *string
	ContentHash   *uint32
	Status        *int
	LastCrawled   *time.Time
	LastUpdated   *time.Time
	Title         *string
	FilePath      *string
	ContentStatus *ContentStatus
	PDFPages      *int
}

// Apply merges the update into a page in place.
func (u *PageUpdate) Apply(p *Page) {
	if u.ETag != nil {
		p.ETag = *u.ETag
	}
	if u.LastModified != nil {
		p.LastModified = *u.LastModified
	}
	if u.ContentHash != nil {
		p.ContentHash = *u.ContentHash
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.LastCrawled != nil {
		p.LastCrawled = *u.LastCrawled
	}
	if u.LastUpdated != nil {
		p.LastUpdated = *u.LastUpdated
	}
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.FilePath != nil {
		p.FilePath = *u.FilePath
	}
	if u.ContentStatus != nil {
		p.ContentStatus = *u.ContentStatus
	}
	if u.PDFPages != nil {
		p.PDFPages = *u.PDFPages
	}
}

// Ptr returns a pointer to v; convenience for building PageUpdate literals.
func Ptr[T any](v T) *T {
	return &v
}
