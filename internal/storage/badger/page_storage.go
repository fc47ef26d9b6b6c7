package badger

import (
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/site2rag/internal/models"
)

// PageStorage persists Page rows keyed by normalized URL. Writes are
// serialized behind a mutex; reads go straight to badgerhold.
type PageStorage struct {
	db      *BadgerDB
	logger  arbor.ILogger
	writeMu sync.Mutex
}

// NewPageStorage creates a new PageStorage instance
func NewPageStorage(db *BadgerDB, logger arbor.ILogger) *PageStorage {
	return &PageStorage{
		db:     db,
		logger: logger,
	}
}

// GetPage returns the page row for a normalized URL, or nil when absent.
func (s *PageStorage) GetPage(url string) (*models.Page, error) {
	var page models.Page
	if err := s.db.Store().Get(url, &page); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return &page, nil
}

// UpsertPage merges the update into the existing row, creating it when
// missing. Unspecified fields are preserved.
func (s *PageStorage) UpsertPage(url string, update *models.PageUpdate) (*models.Page, error) {
	if url == "" {
		return nil, fmt.Errorf("page URL is required")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	page, err := s.GetPage(url)
	if err != nil {
		return nil, err
	}
	if page == nil {
		page = &models.Page{URL: url}
	}
	if update != nil {
		update.Apply(page)
	}

	if err := s.db.Store().Upsert(url, page); err != nil {
		return nil, fmt.Errorf("failed to upsert page: %w", err)
	}
	return page, nil
}

// SetContentStatus writes a single content_status transition.
func (s *PageStorage) SetContentStatus(url string, status models.ContentStatus) error {
	_, err := s.UpsertPage(url, &models.PageUpdate{ContentStatus: &status})
	return err
}

// PagesByStatus returns all pages with the given content status.
func (s *PageStorage) PagesByStatus(status models.ContentStatus) ([]*models.Page, error) {
	var pages []models.Page
	if err := s.db.Store().Find(&pages, badgerhold.Where("ContentStatus").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to find pages by status: %w", err)
	}
	return toPointers(pages), nil
}

// CountPagesByStatus counts pages with the given content status.
func (s *PageStorage) CountPagesByStatus(status models.ContentStatus) (int, error) {
	count, err := s.db.Store().Count(&models.Page{}, badgerhold.Where("ContentStatus").Eq(status))
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return int(count), nil
}

// PagesMatching returns pages whose URL is in urls and whose content status
// is one of statuses. Used to scope enrichment to the current session's
// crawled set.
func (s *PageStorage) PagesMatching(urls []string, statuses []models.ContentStatus) ([]*models.Page, error) {
	wanted := make(map[models.ContentStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	var result []*models.Page
	for _, url := range urls {
		page, err := s.GetPage(url)
		if err != nil {
			return nil, err
		}
		if page == nil {
			continue
		}
		if len(wanted) == 0 || wanted[page.ContentStatus] {
			result = append(result, page)
		}
	}
	return result, nil
}

// AllPages returns every stored page.
func (s *PageStorage) AllPages() ([]*models.Page, error) {
	var pages []models.Page
	if err := s.db.Store().Find(&pages, nil); err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	return toPointers(pages), nil
}

// TouchLastCrawled bumps last_crawled only, leaving every other field intact.
// This is the write path for the change detector's "unchanged" outcome.
func (s *PageStorage) TouchLastCrawled(url string, at time.Time) error {
	_, err := s.UpsertPage(url, &models.PageUpdate{LastCrawled: &at})
	return err
}

func toPointers(pages []models.Page) []*models.Page {
	result := make([]*models.Page, len(pages))
	for i := range pages {
		result[i] = &pages[i]
	}
	return result
}
