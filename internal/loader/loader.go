// Package loader reads source documents into page-level text units.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/cloo-solutions/tenantpal/internal/domain"
)

// MaxDocumentSize caps how large a local document may be.
const MaxDocumentSize = 200 << 20

const pageBreak = "\f"

// ObjectGetter fetches objects from S3-compatible storage.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// Loader loads local files and s3:// objects. PDFs produce one document per
// page; any other file is read as UTF-8 text split into pages on form feeds.
type Loader struct {
	objects ObjectGetter
	logger  *zap.Logger
}

// New creates a Loader. objects may be nil when s3:// paths are not used.
func New(objects ObjectGetter, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{objects: objects, logger: logger}
}

// Load returns the page-level documents of path. Unreadable or empty input
// is a LOAD_ERROR.
func (l *Loader) Load(ctx context.Context, p string) ([]domain.Document, error) {
	data, name, err := l.read(ctx, p)
	if err != nil {
		return nil, unreadable(p, err)
	}

	var docs []domain.Document
	if strings.EqualFold(path.Ext(name), ".pdf") {
		docs, err = parsePDF(data, p, l.logger)
		if err != nil {
			return nil, unreadable(p, err)
		}
	} else {
		docs = parseText(data, p)
	}

	for _, d := range docs {
		if !d.IsBlank() {
			return docs, nil
		}
	}
	return nil, domain.NewDomainErrorWithCause(domain.ErrCodeLoad, domain.ErrDocumentEmpty.Message,
		fmt.Errorf("%s", p))
}

func (l *Loader) read(ctx context.Context, p string) ([]byte, string, error) {
	if strings.HasPrefix(p, "s3://") {
		bucket, key, err := ParseS3URI(p)
		if err != nil {
			return nil, "", err
		}
		if l.objects == nil {
			return nil, "", fmt.Errorf("object storage is not configured")
		}
		data, err := l.objects.GetObject(ctx, bucket, key)
		if err != nil {
			return nil, "", err
		}
		return data, key, nil
	}

	stat, err := os.Stat(p)
	if err != nil {
		return nil, "", err
	}
	if stat.IsDir() {
		return nil, "", fmt.Errorf("%s is a directory", p)
	}
	if stat.Size() > MaxDocumentSize {
		return nil, "", fmt.Errorf("document is larger than %d bytes", MaxDocumentSize)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, "", err
	}
	return data, p, nil
}

// ParseS3URI splits s3://bucket/key into its parts.
func ParseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid object URI %q: %w", uri, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid object URI %q", uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("object URI %q has no key", uri)
	}
	return u.Host, key, nil
}

func parseText(data []byte, source string) []domain.Document {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	pages := strings.Split(text, pageBreak)
	docs := make([]domain.Document, 0, len(pages))
	for i, page := range pages {
		docs = append(docs, domain.Document{SourceID: source, Page: i + 1, Text: page})
	}
	return docs
}

func parsePDF(data []byte, source string, logger *zap.Logger) (docs []domain.Document, err error) {
	// The PDF parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	pages := reader.NumPage()
	docs = make([]domain.Document, 0, pages)
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("failed to extract text from page", zap.Int("page", i), zap.Error(err))
			continue
		}
		docs = append(docs, domain.Document{SourceID: source, Page: i, Text: text})
	}
	return docs, nil
}

func unreadable(p string, err error) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeLoad, domain.ErrDocumentUnreadable.Message,
		fmt.Errorf("%s: %w", p, err))
}
