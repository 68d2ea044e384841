package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/elastic/go-elasticsearch/v8"
	milvusclient "github.com/milvus-io/milvus-sdk-go/v2/client"

	"recon-engine/logic/ingestion/transform/score"
	"recon-engine/storage/es"
	"recon-engine/storage/milvus"
	"recon-engine/vars"
)

// SearchService 条款混合检索：Milvus 向量 + ES 关键词，Reranker 融合
type SearchService struct {
	embedder     embedding.Embedder
	milvusClient milvusclient.Client
	esClient     *elasticsearch.Client
}

func NewSearchService(embedder embedding.Embedder, milvusClient milvusclient.Client, esClient *elasticsearch.Client) *SearchService {
	return &SearchService{
		embedder:     embedder,
		milvusClient: milvusClient,
		esClient:     esClient,
	}
}

// ClauseSearchRequest 条款检索入参
type ClauseSearchRequest struct {
	Query       string   `json:"query" binding:"required"`
	TenantID    string   `json:"tenant_id"`
	DocID       string   `json:"doc_id"`
	ClauseTypes []string `json:"clause_types"`
	TopK        int      `json:"top_k"`
}

// ClauseHit 融合后的单条命中
type ClauseHit struct {
	ClauseID   string   `json:"clause_id"`
	DocID      string   `json:"doc_id"`
	ClauseType string   `json:"clause_type"`
	Content    string   `json:"content"`
	Score      float64  `json:"score"`
	Sources    []string `json:"sources"`
}

// Search 混合检索条款
func (s *SearchService) Search(ctx context.Context, req *ClauseSearchRequest) ([]*ClauseHit, error) {
	searchStart := time.Now()
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	// 1. Milvus 向量检索
	milvusStart := time.Now()
	milvusDocs, err := milvus.Retriever(ctx, s.milvusClient, vars.CLAUSECOLLECTION, req.Query, &milvus.Filter{
		TenantID:    req.TenantID,
		DocID:       req.DocID,
		ClauseTypes: req.ClauseTypes,
	}, s.embedder, topK)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	fmt.Printf(">>> [Milvus] 找到 %d 个结果, 耗时: %v\n", len(milvusDocs), time.Since(milvusStart))

	// 2. ES 关键词检索
	esStart := time.Now()
	esFilter := &es.Filter{
		TenantID:    req.TenantID,
		ClauseTypes: req.ClauseTypes,
	}
	if req.DocID != "" {
		esFilter.DocIDs = []string{req.DocID}
	}
	esDocs, err := es.Retriever(ctx, s.esClient, vars.ESCLAUSEINDEX, req.Query, esFilter, topK)
	if err != nil {
		return nil, fmt.Errorf("es search failed: %w", err)
	}
	fmt.Printf(">>> [ES] 找到 %d 个结果, 耗时: %v\n", len(esDocs), time.Since(esStart))

	// 3. Reranker 融合两个结果集（归一化、去重、加权融合）
	reranked := score.HybridReranker(milvusDocs, esDocs, &score.HybridRerankerConfig{
		MilvusWeight: 0.6,
		ESWeight:     0.4,
		TopK:         topK,
	})

	hits := make([]*ClauseHit, 0, len(reranked))
	for _, doc := range reranked {
		hit := &ClauseHit{
			ClauseID: doc.ID,
			Content:  truncate(doc.Content, 1000),
			Score:    doc.FinalScore,
			Sources:  doc.Sources,
		}
		if v, ok := doc.MetaData["doc_id"].(string); ok {
			hit.DocID = v
		}
		if v, ok := doc.MetaData["clause_type"].(string); ok {
			hit.ClauseType = v
		}
		hits = append(hits, hit)
	}

	fmt.Printf(">>> [性能总览] 条款检索总耗时: %v, 融合后 %d 条\n", time.Since(searchStart), len(hits))
	return hits, nil
}

// truncate 截断字符串
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
