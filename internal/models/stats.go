package models

// DetectorStats counts change-detector outcomes by tier.
type DetectorStats struct {
	SkippedByAge          int `json:"skipped_by_age"`
	SkippedByETag         int `json:"skipped_by_etag"`
	SkippedByLastModified int `json:"skipped_by_last_modified"`
	SkippedByHash         int `json:"skipped_by_hash"`
	New                   int `json:"new"`
	Updated               int `json:"updated"`
}

// CrawlStats summarizes one crawl phase.
type CrawlStats struct {
	Crawled   int `json:"crawled"`
	Fresh     int `json:"fresh"` // 304 / unchanged, last_crawled bumped only
	Binaries  int `json:"binaries"`
	Errors    int `json:"errors"`
	Written   int `json:"written"` // Markdown files written
}

// EnrichStats summarizes one enrichment phase.
type EnrichStats struct {
	Documents  int     `json:"documents"`
	Enriched   int     `json:"enriched"`
	Failed     int     `json:"failed"`
	Paragraphs int     `json:"paragraphs"`
	Annotated  int     `json:"annotated"`
	Tokens     int64   `json:"tokens"`
	Cost       float64 `json:"cost"`
}
