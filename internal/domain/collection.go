package domain

import (
	"fmt"
	"time"
)

// SimilarityMetric is fixed per collection at creation time.
type SimilarityMetric string

const (
	MetricCosine       SimilarityMetric = "cosine"
	MetricL2           SimilarityMetric = "l2"
	MetricInnerProduct SimilarityMetric = "inner_product"
)

// ParseSimilarityMetric validates a metric name. The empty string selects cosine.
func ParseSimilarityMetric(s string) (SimilarityMetric, error) {
	switch SimilarityMetric(s) {
	case "":
		return MetricCosine, nil
	case MetricCosine, MetricL2, MetricInnerProduct:
		return SimilarityMetric(s), nil
	}
	return "", NewDomainErrorWithCause(ErrCodeConfig, ErrInvalidMetric.Message, fmt.Errorf("metric %q", s))
}

// Collection is a named partition of the vector index holding one ingested corpus.
type Collection struct {
	ID         string
	Name       string
	Metric     SimilarityMetric
	Dimensions int
	Source     string
	ChunkCount int
	CreatedAt  time.Time
}

// CollectionSpec describes a collection to be created.
type CollectionSpec struct {
	Name       string
	Metric     SimilarityMetric
	Dimensions int
	Source     string
}

// CreateOutcome reports the result of an atomic create-if-absent.
type CreateOutcome struct {
	Created        bool
	AlreadyExisted bool
	Collection     *Collection
}

// QueryResult is one ranked match from a similarity query.
type QueryResult struct {
	Content  string
	Score    float64
	Metadata ChunkMetadata
}
