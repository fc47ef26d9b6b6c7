package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/site2rag/internal/common"
)

// Manager aggregates the per-entity storages over one Badger connection.
type Manager struct {
	db      *BadgerDB
	pages   *PageStorage
	sitemap *SitemapStorage
	logger  arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:      db,
		pages:   NewPageStorage(db, logger),
		sitemap: NewSitemapStorage(db, logger),
		logger:  logger,
	}

	logger.Debug().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// Pages returns the Page storage
func (m *Manager) Pages() *PageStorage {
	return m.pages
}

// Sitemap returns the sitemap URL storage
func (m *Manager) Sitemap() *SitemapStorage {
	return m.sitemap
}

// Close closes the database connection. Idempotent.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
