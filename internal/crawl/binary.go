package crawl

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/site2rag/internal/common"
	"github.com/ternarybob/site2rag/internal/fetch"
	"github.com/ternarybob/site2rag/internal/urlutil"
)

// binaryContentTypes are the content-type prefixes routed to the document
// saver instead of the HTML pipeline.
var binaryContentTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument",
	"application/zip",
	"application/octet-stream",
	"image/",
	"audio/",
	"video/",
}

func isBinaryContentType(contentType string) bool {
	for _, prefix := range binaryContentTypes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

type savedBinary struct {
	Path     string
	PDFPages int
}

// binaryStore saves binary documents under <outputDir>/documents and
// detects duplicate content across URLs by body hash.
type binaryStore struct {
	config *common.CrawlConfig
	logger arbor.ILogger

	mu     sync.Mutex
	hashes map[uint32]string // body hash -> saved path
}

func newBinaryStore(config *common.CrawlConfig, logger arbor.ILogger) *binaryStore {
	return &binaryStore{
		config: config,
		logger: logger,
		hashes: make(map[uint32]string),
	}
}

func (b *binaryStore) save(rawURL string, resp *fetch.Response) (*savedBinary, error) {
	if int64(len(resp.Body)) > b.config.MaxDocumentSize {
		return nil, fmt.Errorf("document %s exceeds size cap (%d bytes)", rawURL, len(resp.Body))
	}

	hash := ContentHash(string(resp.Body))

	b.mu.Lock()
	if existing, ok := b.hashes[hash]; ok {
		b.mu.Unlock()
		b.logger.Debug().Str("url", rawURL).Str("path", existing).Msg("Duplicate document content, reusing file")
		return &savedBinary{Path: existing}, nil
	}
	b.mu.Unlock()

	dir := filepath.Join(b.config.OutputDir, "documents")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create documents dir: %w", err)
	}

	name := binaryFilename(rawURL, resp.ContentType())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, resp.Body, 0o644); err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	b.mu.Lock()
	b.hashes[hash] = path
	b.mu.Unlock()

	saved := &savedBinary{Path: path}
	if strings.HasSuffix(strings.ToLower(path), ".pdf") {
		saved.PDFPages = b.pdfPageCount(path)
	}

	b.logger.Debug().Str("url", rawURL).Str("path", path).Int("bytes", len(resp.Body)).Msg("Document saved")
	return saved, nil
}

// pdfPageCount inspects the saved PDF; failures log and return 0 rather
// than failing the save.
func (b *binaryStore) pdfPageCount(path string) int {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		b.logger.Warn().Err(err).Str("path", path).Msg("Failed to read PDF for page count")
		return 0
	}
	return pdfCtx.PageCount
}

// binaryFilename derives a safe on-disk name, preserving the extension from
// the URL path or, failing that, from the content type.
func binaryFilename(rawURL, contentType string) string {
	ext := ""
	if u, err := url.Parse(rawURL); err == nil {
		if resource := u.Query().Get("resource"); resource != "" {
			ext = filepath.Ext(resource)
		}
		if ext == "" {
			ext = filepath.Ext(u.Path)
		}
	}
	if ext == "" && contentType == "application/pdf" {
		ext = ".pdf"
	}

	return urlutil.FlatFilename(rawURL) + ext
}
