package service

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cloo-solutions/tenantpal/internal/domain"
)

// ChunkConfig controls how documents are split before embedding.
type ChunkConfig struct {
	Size    int
	Overlap int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    1000,
		Overlap: 200,
	}
}

// Validate rejects configurations that cannot make progress.
func (c ChunkConfig) Validate() error {
	if c.Size <= 0 || c.Overlap < 0 || c.Overlap >= c.Size {
		return domain.NewDomainErrorWithCause(
			domain.ErrCodeConfig,
			domain.ErrInvalidChunkParams.Message,
			fmt.Errorf("chunk_size=%d chunk_overlap=%d", c.Size, c.Overlap),
		)
	}
	return nil
}

type boundaryFunc func(runes []rune, cut int) bool

// Boundary kinds in priority order.
var boundaries = []boundaryFunc{
	isParagraphBoundary,
	isSentenceBoundary,
	isWordBoundary,
}

func isParagraphBoundary(runes []rune, cut int) bool {
	return cut >= 2 && runes[cut-1] == '\n' && runes[cut-2] == '\n'
}

func isSentenceBoundary(runes []rune, cut int) bool {
	if cut < 2 || !unicode.IsSpace(runes[cut-1]) {
		return false
	}
	switch runes[cut-2] {
	case '.', '!', '?':
		return true
	}
	return false
}

func isWordBoundary(runes []rune, cut int) bool {
	return cut >= 1 && unicode.IsSpace(runes[cut-1])
}

// Chunker splits page text into overlapping chunks. Chunk i+1 starts exactly
// Overlap runes before the end of chunk i, so the original text can always be
// rebuilt from the chunks.
type Chunker struct {
	cfg ChunkConfig
}

// NewChunker validates cfg and returns a Chunker.
func NewChunker(cfg ChunkConfig) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// Split returns the [start, end) rune spans of each chunk of text.
func (c *Chunker) Split(text string) [][2]int {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	size, overlap := c.cfg.Size, c.cfg.Overlap
	minAdvance := size / 2
	if minAdvance <= overlap {
		minAdvance = overlap + 1
	}

	spans := make([][2]int, 0, n/(size-overlap)+1)
	start := 0
	for {
		limit := start + size
		if limit >= n {
			spans = append(spans, [2]int{start, n})
			return spans
		}

		end := limit
		lower := start + minAdvance
	search:
		for _, matches := range boundaries {
			for cut := limit; cut >= lower; cut-- {
				if matches(runes, cut) {
					end = cut
					break search
				}
			}
		}

		spans = append(spans, [2]int{start, end})
		start = end - overlap
	}
}

// ChunkDocument splits one page-level document into chunks, numbering them
// from firstIndex.
func (c *Chunker) ChunkDocument(doc domain.Document, firstIndex int) []domain.Chunk {
	spans := c.Split(doc.Text)
	if len(spans) == 0 {
		return nil
	}
	runes := []rune(doc.Text)
	chunks := make([]domain.Chunk, 0, len(spans))
	for i, span := range spans {
		chunks = append(chunks, domain.Chunk{
			Source:     doc.SourceID,
			Page:       doc.Page,
			ChunkIndex: firstIndex + i,
			Start:      span[0],
			End:        span[1],
			Content:    string(runes[span[0]:span[1]]),
		})
	}
	return chunks
}

// ChunkDocuments chunks every non-blank page, numbering chunks across pages.
func (c *Chunker) ChunkDocuments(docs []domain.Document) []domain.Chunk {
	var all []domain.Chunk
	for _, doc := range docs {
		if doc.IsBlank() {
			continue
		}
		all = append(all, c.ChunkDocument(doc, len(all))...)
	}
	return all
}

// Reconstruct concatenates chunks of one page with their overlaps removed.
func Reconstruct(chunks []domain.Chunk, overlap int) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i == 0 {
			b.WriteString(ch.Content)
			continue
		}
		runes := []rune(ch.Content)
		if overlap > len(runes) {
			continue
		}
		b.WriteString(string(runes[overlap:]))
	}
	return b.String()
}
