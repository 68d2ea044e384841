package es

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Filter ES 条款检索的过滤条件
type Filter struct {
	TenantID      string   // 租户隔离
	ClauseTypes   []string // 条款类型过滤
	DocIDs        []string // 限定文档范围（混合检索用）
	ConfidenceMin *float64 // 分类置信度下限
}

// Retriever 对条款索引执行 BM25 检索
// query: 关键词查询语句
// filters: 可选的过滤条件（nil 表示无过滤）
// topK: 返回结果数量
func Retriever(ctx context.Context, client *elasticsearch.Client, index string, query string, filters *Filter, topK int) ([]*schema.Document, error) {

	// 1. 构建查询语句
	esQuery := buildESQuery(query, filters, topK)

	// 2. 序列化查询
	var buf strings.Builder
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("error encoding query: %s", err)
	}

	log.Printf(">>> [ES] Query: %s", buf.String())

	// 3. 执行搜索
	req := esapi.SearchRequest{
		Index: []string{index},
		Body:  strings.NewReader(buf.String()),
	}

	res, err := req.Do(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("error getting response: %s", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error response: %s", res.String())
	}

	// 4. 解析结果
	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error parsing response body: %s", err)
	}

	// 5. 提取 hits
	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid response format")
	}

	hitsList, ok := hits["hits"].([]interface{})
	if !ok {
		return []*schema.Document{}, nil // 无结果
	}

	// 6. 转换为 []*schema.Document
	docs := make([]*schema.Document, 0, len(hitsList))
	for _, hit := range hitsList {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}

		id, _ := hitMap["_id"].(string)
		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}

		var score float64
		if scoreVal, ok := hitMap["_score"].(float64); ok {
			score = scoreVal
		}

		doc := &schema.Document{
			ID:       id,
			Content:  toString(source["content"]),
			MetaData: make(map[string]any),
		}
		doc = doc.WithScore(score)

		for _, field := range []string{"doc_id", "clause_id", "tenant_id", "clause_type", "confidence"} {
			if val, ok := source[field]; ok {
				doc.MetaData[field] = val
			}
		}

		docs = append(docs, doc)
	}

	log.Printf(">>> [ES] Retrieved %d results", len(docs))
	return docs, nil
}

// buildESQuery 构建 ES 查询语句（BM25 + 过滤）
func buildESQuery(query string, filters *Filter, topK int) map[string]interface{} {
	mustQueries := []map[string]interface{}{
		{
			"match": map[string]interface{}{
				"content": map[string]interface{}{
					"query": query,
				},
			},
		},
	}

	filterQueries := buildFilterQueries(filters)

	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   mustQueries,
				"filter": filterQueries,
			},
		},
		"size": topK,
	}

	return esQuery
}

// buildFilterQueries 构建过滤条件列表
func buildFilterQueries(filters *Filter) []map[string]interface{} {
	if filters == nil {
		return nil
	}

	var filterQueries []map[string]interface{}

	if filters.TenantID != "" {
		filterQueries = append(filterQueries, map[string]interface{}{
			"term": map[string]interface{}{
				"tenant_id": filters.TenantID,
			},
		})
	}

	if len(filters.ClauseTypes) > 0 {
		filterQueries = append(filterQueries, map[string]interface{}{
			"terms": map[string]interface{}{
				"clause_type": filters.ClauseTypes,
			},
		})
	}

	if len(filters.DocIDs) > 0 {
		filterQueries = append(filterQueries, map[string]interface{}{
			"terms": map[string]interface{}{
				"doc_id": filters.DocIDs,
			},
		})
	}

	if filters.ConfidenceMin != nil {
		filterQueries = append(filterQueries, map[string]interface{}{
			"range": map[string]interface{}{
				"confidence": map[string]interface{}{
					"gte": *filters.ConfidenceMin,
				},
			},
		})
	}

	return filterQueries
}

// toString 安全地将任意类型转为 string
func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", v)
}
