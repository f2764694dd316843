package domain

// IngestStatus reports what an ingestion run did.
type IngestStatus string

const (
	IngestStatusCreated IngestStatus = "created"
	IngestStatusSkipped IngestStatus = "skipped"
)

// SkipReasonAlreadyIngested is reported when the target collection already exists.
const SkipReasonAlreadyIngested = "already_ingested"

// IngestResult summarises one ingestion attempt.
type IngestResult struct {
	Status     IngestStatus
	Reason     string
	Collection string
	PageCount  int
	ChunkCount int
}

// Skipped reports whether the ingestion was a no-op.
func (r *IngestResult) Skipped() bool {
	return r != nil && r.Status == IngestStatusSkipped
}
