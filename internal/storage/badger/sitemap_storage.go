package badger

import (
	"fmt"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/site2rag/internal/models"
)

// SitemapStorage persists sitemap-discovered URLs.
type SitemapStorage struct {
	db      *BadgerDB
	logger  arbor.ILogger
	writeMu sync.Mutex
}

// NewSitemapStorage creates a new SitemapStorage instance
func NewSitemapStorage(db *BadgerDB, logger arbor.ILogger) *SitemapStorage {
	return &SitemapStorage{
		db:     db,
		logger: logger,
	}
}

// InsertBatch upserts a batch of sitemap URLs inside a single badger
// transaction, as sitemap ingestion can run to tens of thousands of rows.
func (s *SitemapStorage) InsertBatch(urls []*models.SitemapURL) error {
	if len(urls) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now()
	err := s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		for _, u := range urls {
			if u.URL == "" {
				continue
			}
			if u.AddedAt.IsZero() {
				u.AddedAt = now
			}
			if err := s.db.Store().TxUpsert(tx, u.URL, u); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert sitemap batch: %w", err)
	}

	s.logger.Debug().Int("count", len(urls)).Msg("Sitemap URLs persisted")
	return nil
}

// Get returns a sitemap URL record, or nil when absent.
func (s *SitemapStorage) Get(url string) (*models.SitemapURL, error) {
	var rec models.SitemapURL
	if err := s.db.Store().Get(url, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sitemap URL: %w", err)
	}
	return &rec, nil
}

// Unprocessed returns discovered URLs the crawl has not yet visited.
func (s *SitemapStorage) Unprocessed() ([]*models.SitemapURL, error) {
	var recs []models.SitemapURL
	if err := s.db.Store().Find(&recs, badgerhold.Where("Processed").Eq(false)); err != nil {
		return nil, fmt.Errorf("failed to find unprocessed sitemap URLs: %w", err)
	}
	result := make([]*models.SitemapURL, len(recs))
	for i := range recs {
		result[i] = &recs[i]
	}
	return result, nil
}

// MarkProcessed flips the processed flag after the crawl visits the URL.
func (s *SitemapStorage) MarkProcessed(url string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec, err := s.Get(url)
	if err != nil || rec == nil {
		return err
	}
	rec.Processed = true
	if err := s.db.Store().Upsert(url, rec); err != nil {
		return fmt.Errorf("failed to mark sitemap URL processed: %w", err)
	}
	return nil
}

// Count returns the number of stored sitemap URLs.
func (s *SitemapStorage) Count() (int, error) {
	count, err := s.db.Store().Count(&models.SitemapURL{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count sitemap URLs: %w", err)
	}
	return int(count), nil
}
