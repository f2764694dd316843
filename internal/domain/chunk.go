package domain

// Chunk is a bounded slice of a Document. Start and End are rune offsets
// into the page text, End exclusive.
type Chunk struct {
	ID         string
	Source     string
	Page       int
	ChunkIndex int
	Start      int
	End        int
	Content    string
	Embedding  []float32
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// Metadata returns the metadata persisted alongside the chunk.
func (c Chunk) Metadata() ChunkMetadata {
	return ChunkMetadata{
		Source:     c.Source,
		Page:       c.Page,
		ChunkIndex: c.ChunkIndex,
	}
}

// ChunkMetadata is the metadata attached to every indexed chunk.
type ChunkMetadata struct {
	Source     string `json:"source"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
}
