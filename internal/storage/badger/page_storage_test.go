package badger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/site2rag/internal/common"
	"github.com/ternarybob/site2rag/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mgr, err := NewManager(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestUpsertPageMergeSemantics(t *testing.T) {
	mgr := newTestManager(t)
	pages := mgr.Pages()

	url := "https://example.com/a"
	_, err := pages.UpsertPage(url, &models.PageUpdate{
		ETag:          models.Ptr(`W/"abc"`),
		Status:        models.Ptr(200),
		Title:         models.Ptr("First"),
		ContentStatus: models.Ptr(models.ContentStatusRaw),
	})
	require.NoError(t, err)

	// Partial update must preserve unspecified fields
	_, err = pages.UpsertPage(url, &models.PageUpdate{Status: models.Ptr(304)})
	require.NoError(t, err)

	page, err := pages.GetPage(url)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, `W/"abc"`, page.ETag)
	assert.Equal(t, 304, page.Status)
	assert.Equal(t, "First", page.Title)
	assert.Equal(t, models.ContentStatusRaw, page.ContentStatus)
}

func TestGetPageMissing(t *testing.T) {
	mgr := newTestManager(t)

	page, err := mgr.Pages().GetPage("https://example.com/missing")
	require.NoError(t, err)
	assert.Nil(t, page)
}

func TestPagesByStatusAndCount(t *testing.T) {
	mgr := newTestManager(t)
	pages := mgr.Pages()

	for _, fixture := range []struct {
		url    string
		status models.ContentStatus
	}{
		{"https://example.com/1", models.ContentStatusRaw},
		{"https://example.com/2", models.ContentStatusRaw},
		{"https://example.com/3", models.ContentStatusContexted},
	} {
		_, err := pages.UpsertPage(fixture.url, &models.PageUpdate{ContentStatus: &fixture.status})
		require.NoError(t, err)
	}

	raw, err := pages.PagesByStatus(models.ContentStatusRaw)
	require.NoError(t, err)
	assert.Len(t, raw, 2)

	count, err := pages.CountPagesByStatus(models.ContentStatusContexted)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPagesMatchingScopesToSession(t *testing.T) {
	mgr := newTestManager(t)
	pages := mgr.Pages()

	for url, status := range map[string]models.ContentStatus{
		"https://example.com/raw":       models.ContentStatusRaw,
		"https://example.com/done":      models.ContentStatusContexted,
		"https://example.com/failed":    models.ContentStatusFailed,
		"https://example.com/elsewhere": models.ContentStatusRaw,
	} {
		st := status
		_, err := pages.UpsertPage(url, &models.PageUpdate{ContentStatus: &st})
		require.NoError(t, err)
	}

	session := []string{
		"https://example.com/raw",
		"https://example.com/done",
		"https://example.com/failed",
		"https://example.com/never-crawled",
	}
	matched, err := pages.PagesMatching(session, []models.ContentStatus{
		models.ContentStatusRaw, models.ContentStatusFailed, models.ContentStatusProcessing,
	})
	require.NoError(t, err)

	urls := make([]string, len(matched))
	for i, p := range matched {
		urls[i] = p.URL
	}
	assert.ElementsMatch(t, []string{"https://example.com/raw", "https://example.com/failed"}, urls)
}

func TestTouchLastCrawledPreservesContentStatus(t *testing.T) {
	mgr := newTestManager(t)
	pages := mgr.Pages()

	url := "https://example.com/contexted"
	_, err := pages.UpsertPage(url, &models.PageUpdate{
		ContentStatus: models.Ptr(models.ContentStatusContexted),
		ContentHash:   models.Ptr(uint32(42)),
	})
	require.NoError(t, err)

	at := time.Now().Truncate(time.Second)
	require.NoError(t, pages.TouchLastCrawled(url, at))

	page, err := pages.GetPage(url)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusContexted, page.ContentStatus)
	assert.Equal(t, uint32(42), page.ContentHash)
	assert.WithinDuration(t, at, page.LastCrawled, time.Second)
}

func TestSitemapBatchInsert(t *testing.T) {
	mgr := newTestManager(t)
	sm := mgr.Sitemap()

	batch := []*models.SitemapURL{
		{URL: "https://example.com/a", Sitemap: "https://example.com/sitemap.xml", Language: "en"},
		{URL: "https://example.com/b", Sitemap: "https://example.com/sitemap.xml", Language: "de"},
	}
	require.NoError(t, sm.InsertBatch(batch))

	count, err := sm.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	unprocessed, err := sm.Unprocessed()
	require.NoError(t, err)
	assert.Len(t, unprocessed, 2)

	require.NoError(t, sm.MarkProcessed("https://example.com/a"))
	unprocessed, err = sm.Unprocessed()
	require.NoError(t, err)
	assert.Len(t, unprocessed, 1)
	assert.Equal(t, "https://example.com/b", unprocessed[0].URL)
}

func TestManagerCloseIdempotent(t *testing.T) {
	mgr, err := NewManager(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	assert.NoError(t, mgr.Close())
	assert.NoError(t, mgr.Close())
}
