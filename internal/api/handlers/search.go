package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cloo-solutions/tenantpal/internal/api"
	"github.com/cloo-solutions/tenantpal/internal/domain"
)

const maxSearchK = 50

type SearchService interface {
	Query(ctx context.Context, collection, text string, k int) ([]domain.QueryResult, error)
	Collections(ctx context.Context) ([]domain.Collection, error)
}

type SearchHandler struct {
	svc               SearchService
	defaultCollection string
	defaultK          int
}

func NewSearchHandler(svc SearchService, defaultCollection string, defaultK int) *SearchHandler {
	return &SearchHandler{svc: svc, defaultCollection: defaultCollection, defaultK: defaultK}
}

type SearchRequest struct {
	Query      string `json:"query"`
	Collection string `json:"collection"`
	K          int    `json:"k"`
}

type PassageResponse struct {
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	Source     string  `json:"source"`
	Page       int     `json:"page"`
	ChunkIndex int     `json:"chunk_index"`
}

type SearchResponse struct {
	Collection string            `json:"collection"`
	Results    []PassageResponse `json:"results"`
}

type CollectionResponse struct {
	Name       string `json:"name"`
	Metric     string `json:"metric"`
	Dimensions int    `json:"dimensions"`
	Source     string `json:"source"`
	ChunkCount int    `json:"chunk_count"`
	CreatedAt  string `json:"created_at"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.K < 0 || req.K > maxSearchK {
		api.Error(w, http.StatusBadRequest, "k must be between 1 and 50")
		return
	}

	collection := req.Collection
	if collection == "" {
		collection = h.defaultCollection
	}
	k := req.K
	if k == 0 {
		k = h.defaultK
	}

	results, err := h.svc.Query(r.Context(), collection, req.Query, k)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := SearchResponse{Collection: collection, Results: make([]PassageResponse, 0, len(results))}
	for _, res := range results {
		resp.Results = append(resp.Results, PassageResponse{
			Content:    res.Content,
			Score:      res.Score,
			Source:     res.Metadata.Source,
			Page:       res.Metadata.Page,
			ChunkIndex: res.Metadata.ChunkIndex,
		})
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *SearchHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := h.svc.Collections(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]CollectionResponse, 0, len(cols))
	for _, c := range cols {
		resp = append(resp, CollectionResponse{
			Name:       c.Name,
			Metric:     string(c.Metric),
			Dimensions: c.Dimensions,
			Source:     c.Source,
			ChunkCount: c.ChunkCount,
			CreatedAt:  c.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	api.Success(w, http.StatusOK, resp)
}
